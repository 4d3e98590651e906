// Package middleware provides the Gin middleware of the MRO API. Everything here is registered
// in internal/api/router.go, in this order:
//
//	Recovery → RequestID → RequestContext → Metrics → Logger → CORS → SecurityHeaders → RateLimit → Auth
//
// RequestContext runs before anything that can write so that every audit record sees the
// caller. Rate limiting runs before auth to reject floods before any token verification.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirrus-mro/cirrus-api/internal/telemetry"
)

// unmatchedRoute labels requests that did not match a route so raw URLs never become labels
const unmatchedRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds. The path
// label is the matched route template from c.FullPath(), e.g. /api/v1/work-orders/:id.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
