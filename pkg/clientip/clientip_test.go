package clientip_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkshelf/linkshelf/pkg/clientip"
)

func TestResolver_FromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers []string
		set     map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, nil, "203.0.113.7:4321", "203.0.113.7"},
		{"remote without port", nil, nil, "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", nil, map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1", "198.51.100.1"},
		{"skips junk", nil, map[string]string{"X-Forwarded-For": "unknown, 198.51.100.2"}, "10.0.0.2:1", "198.51.100.2"},
		{"real ip", nil, map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.2:1", "198.51.100.3"},
		{"ipv6", nil, map[string]string{"X-Real-IP": " 2001:db8::1 "}, "10.0.0.2:1", "2001:db8::1"},
		{"ipv4 mapped", nil, nil, "[::ffff:192.0.2.9]:80", "192.0.2.9"},
		{"untrusted header ignored", []string{"cf-connecting-ip"}, map[string]string{"X-Forwarded-For": "198.51.100.4"}, "10.0.0.2:1", "10.0.0.2"},
		{"custom header", []string{"cf-connecting-ip"}, map[string]string{"CF-Connecting-IP": "198.51.100.5"}, "10.0.0.2:1", "198.51.100.5"},
		{"nothing valid", nil, nil, "pipe", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.set {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.New(tt.headers...).FromRequest(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.New().Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = clientip.FromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.9")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "198.51.100.9", got)

	attr, ok := clientip.LogExtractor()(clientip.WithContext(context.Background(), got))
	assert.True(t, ok)
	assert.Equal(t, "client_ip", attr.Key)

	_, ok = clientip.LogExtractor()(context.Background())
	assert.False(t, ok)
}
