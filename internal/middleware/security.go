// security.go provides the response-hardening middleware: security headers for the JSON API
// and CORS for the single-page client.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cirrus-mro/cirrus-api/internal/config"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// HSTSMaxAge is the max-age for Strict-Transport-Security in seconds; 0 disables the header
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptionsValue     string
	ContentSecurityPolicy string
	ReferrerPolicy        string
}

// APISecurityHeadersConfig returns security headers suitable for JSON endpoints
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		FrameOptionsValue:     "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if config.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", config.FrameOptionsValue)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		c.Header("Cross-Origin-Resource-Policy", "same-origin")

		c.Next()
	}
}

// CORSMiddleware answers preflight requests and sets CORS headers for allowed origins. The
// session and user headers are allowed so the web client can carry its audit identity.
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	allowedHeaders := strings.Join([]string{
		"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader, SessionIDHeader, UserIDHeader,
	}, ", ")
	exposedHeaders := strings.Join([]string{RequestIDHeader, SessionIDHeader}, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", allowedHeaders)
			c.Header("Access-Control-Expose-Headers", exposedHeaders)
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
