package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// BindQuery binds fields tagged `query:"name"`. Slice fields accept repeated
// keys and comma separated values.
func BindQuery() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		return structFields(v, func(field reflect.Value, sf reflect.StructField) error {
			name, ok := tagName(sf, "query")
			if !ok {
				return nil
			}
			if err := setField(field, values[name]); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidQuery, name, err)
			}
			return nil
		})
	}
}
