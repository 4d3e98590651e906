package audit

import (
	"context"

	"github.com/gin-gonic/gin"
)

// GinContextKey is the gin.Context key under which the request context is stored
const GinContextKey = "audit_request_context"

type requestContextKey struct{}

// RequestContext identifies who performed a write. It is built once per request and carried by
// the request's context.Context, so concurrent requests never observe each other's values.
type RequestContext struct {
	UserID    *string `json:"user_id"`
	SessionID string  `json:"session_id"`
	IPAddress *string `json:"ip_address"`
}

// NewRequestContext builds a RequestContext, mapping empty user and IP values to nil
func NewRequestContext(userID, sessionID, ipAddress string) RequestContext {
	rc := RequestContext{SessionID: sessionID}
	if userID != "" {
		rc.UserID = &userID
	}
	if ipAddress != "" {
		rc.IPAddress = &ipAddress
	}
	return rc
}

// WithUserID returns a copy of rc with the user id replaced
func (rc RequestContext) WithUserID(userID string) RequestContext {
	if userID == "" {
		rc.UserID = nil
		return rc
	}
	rc.UserID = &userID
	return rc
}

// WithRequestContext returns a child context carrying rc
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the request context carried by ctx. ok is false when none was set, for
// example in background jobs and migrations.
func FromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}

// FromGin returns the request context stored on c by the request context middleware
func FromGin(c *gin.Context) (RequestContext, error) {
	v, exists := c.Get(GinContextKey)
	if !exists {
		return RequestContext{}, &RequestContextUninitializedError{}
	}
	rc, ok := v.(RequestContext)
	if !ok {
		return RequestContext{}, &RequestContextUninitializedError{}
	}
	return rc, nil
}

// SetGin stores rc on both the gin context and the request's context.Context
func SetGin(c *gin.Context, rc RequestContext) {
	c.Set(GinContextKey, rc)
	c.Request = c.Request.WithContext(WithRequestContext(c.Request.Context(), rc))
}
