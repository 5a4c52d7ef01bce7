package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Path binds fields tagged `path:"name"` using extractor, typically
// chi.URLParam:
//
//	type request struct {
//		PlanID uuid.UUID `path:"planID" json:"-"`
//	}
//
//	r.Post("/plans/{planID}/versions", handler.Wrap(h,
//		handler.WithBinders[handler.Context, request](binder.BindJSON(), binder.Path(chi.URLParam)),
//	))
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	if extractor == nil {
		panic("binder: nil path extractor")
	}
	return func(r *http.Request, v any) error {
		return structFields(v, func(field reflect.Value, sf reflect.StructField) error {
			name, ok := tagName(sf, "path")
			if !ok {
				return nil
			}
			value := extractor(r, name)
			if value == "" {
				return nil
			}
			if err := setField(field, []string{value}); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidPath, name, err)
			}
			return nil
		})
	}
}
