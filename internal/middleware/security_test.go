package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cirrus-mro/cirrus-api/internal/config"
)

func applySecurityHeaders(cfg SecurityHeadersConfig) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

// ---------------------------------------------------------------------------
// SecurityHeadersMiddleware
// ---------------------------------------------------------------------------

func TestSecurityHeaders_APIDefaults(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig())

	want := map[string]string{
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-origin",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeaders_HSTSDisabled(t *testing.T) {
	w := applySecurityHeaders(SecurityHeadersConfig{})
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("Strict-Transport-Security = %q, want empty", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func newCORSRouter(cfg config.CORSConfig) *gin.Engine {
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/api/v1/cities", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS_AllowedOrigin(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://shop.cirrus.aero"}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
	req.Header.Set("Origin", "https://shop.cirrus.aero")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.cirrus.aero" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID, X-Session-ID" {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{AllowedOrigins: []string{"https://shop.cirrus.aero"}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := newCORSRouter(config.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT"},
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cities", nil)
	req.Header.Set("Origin", "https://shop.cirrus.aero")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, PUT" {
		t.Errorf("Allow-Methods = %q", got)
	}
}
