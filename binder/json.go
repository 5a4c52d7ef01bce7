// Package binder populates request structs from JSON bodies, query strings
// and router path parameters.
package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxBodySize caps request bodies at 1 MiB.
const DefaultMaxBodySize int64 = 1 << 20

// BindJSON decodes an application/json body in strict mode: unknown fields
// and trailing data are rejected.
func BindJSON() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, ct)
		}

		body, err := readLimited(r.Body, DefaultMaxBodySize)
		if err != nil {
			return err
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			}
			return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		var extra json.RawMessage
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}
		return nil
	}
}

// Payload holds an unparsed request body.
type Payload interface {
	SetPayload([]byte)
}

// RawBody reads up to limit bytes into a request implementing Payload.
// Webhook receivers need the exact bytes for signature checks.
func RawBody(limit int64) func(r *http.Request, v any) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	return func(r *http.Request, v any) error {
		p, ok := v.(Payload)
		if !ok {
			return fmt.Errorf("binder: %T does not accept a raw payload", v)
		}
		body, err := readLimited(r.Body, limit)
		if err != nil {
			return err
		}
		p.SetPayload(body)
		return nil
	}
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, limit)
	}
	return b, nil
}
