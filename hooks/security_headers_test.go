package hooks_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmcleod/edgehook/hooks"
)

func TestSecurityHeaders(t *testing.T) {
	h := hooks.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeadersPermissionsPolicy(t *testing.T) {
	h := hooks.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/maps/", nil))

	policy := rec.Header().Get("Permissions-Policy")
	assert.Contains(t, policy, "geolocation=(self)")
	assert.Contains(t, policy, "fullscreen=(self)")
	for _, off := range []string{"camera=()", "microphone=()", "payment=()", "usb=()"} {
		assert.Contains(t, policy, off)
	}
}

func TestSecurityHeadersHSTSWhenSecure(t *testing.T) {
	h := hooks.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rec, req)

	assert.Equal(t, "max-age=63072000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestIsSecure(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   bool
	}{
		{"plain", "", "", false},
		{"x-forwarded-proto", "X-Forwarded-Proto", "HTTPS", true},
		{"x-forwarded-proto http", "X-Forwarded-Proto", "http", false},
		{"forwarded", "Forwarded", "for=192.0.2.60;proto=https;by=203.0.113.43", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.want, hooks.RequestIsSecure(req))
		})
	}
}
