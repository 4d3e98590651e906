package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
)

const (
	// RequestIDHeader is the canonical HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored.
	RequestIDKey = "request_id"

	// UserIDHeader carries the acting user for callers that are not authenticated by token.
	UserIDHeader = "X-User-ID"

	// SessionIDHeader carries the client session; a new one is generated when absent.
	SessionIDHeader = "X-Session-ID"
)

// RequestIDMiddleware ensures every request carries an X-Request-ID. An inbound value set by
// a load balancer or caller is reused; otherwise a UUID v4 is generated. The id is stored under
// RequestIDKey and echoed in the response header so clients can correlate with server logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestContextMiddleware builds the audit.RequestContext for the request and stores it in
// both the gin context and the request's context.Context, before any handler can write.
//
//   - user_id: X-User-ID header; AuthMiddleware replaces it with the authenticated principal
//   - session_id: X-Session-ID header, or a new UUID v4 echoed back in the response
//   - ip_address: gin's ClientIP
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(SessionIDHeader)
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		c.Header(SessionIDHeader, sessionID)

		rc := audit.NewRequestContext(c.GetHeader(UserIDHeader), sessionID, c.ClientIP())
		audit.SetGin(c, rc)

		c.Next()
	}
}
