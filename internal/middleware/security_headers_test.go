package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithSecurityHeaders(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/your-files", func(c echo.Context) error {
		return c.HTML(http.StatusOK, "<p>ok</p>")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	rec := serveWithSecurityHeaders(t, httptest.NewRequest(http.MethodGet, "/your-files", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "geolocation=(), microphone=(), camera=()", rec.Header().Get("Permissions-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_ContentSecurityPolicyIsSelfOnly(t *testing.T) {
	rec := serveWithSecurityHeaders(t, httptest.NewRequest(http.MethodGet, "/your-files", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	assert.Equal(t, "default-src 'self'; "+
		"script-src 'self' 'unsafe-inline'; "+
		"style-src 'self' 'unsafe-inline'; "+
		"img-src 'self' data:; "+
		"connect-src 'self'; "+
		"frame-ancestors 'none'; "+
		"base-uri 'self'; "+
		"form-action 'self'", csp)

	// The browser page ships its own assets; no remote source is allowed.
	assert.NotContains(t, csp, "https://")
	assert.NotContains(t, csp, "http://")
	assert.NotContains(t, csp, "cdn.tailwindcss.com")
	assert.NotContains(t, csp, "fonts.")

	for _, directive := range strings.Split(csp, ";") {
		fields := strings.Fields(directive)
		require.NotEmpty(t, fields)
		for _, source := range fields[1:] {
			assert.Contains(t, []string{"'self'", "'unsafe-inline'", "'none'", "data:"}, source,
				"unexpected source %q in %s", source, fields[0])
		}
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name   string
		secure func(*http.Request)
		want   string
	}{
		{"plain http", func(*http.Request) {}, ""},
		{"tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "max-age=31536000; includeSubDomains"},
		{"forwarded https", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, "max-age=31536000; includeSubDomains"},
		{"forwarded http", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "http") }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/your-files", nil)
			tt.secure(req)
			rec := serveWithSecurityHeaders(t, req)
			assert.Equal(t, tt.want, rec.Header().Get("Strict-Transport-Security"))
		})
	}
}
