package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
	"github.com/cirrus-mro/cirrus-api/internal/auth"
)

const (
	// PrincipalKey is the gin.Context key holding the *auth.Principal of an authenticated request
	PrincipalKey = "principal"

	// UserIDKey is the gin.Context key holding the acting user id
	UserIDKey = "user_id"
)

// bearerToken extracts the token from an Authorization header. ok is false when the header
// is missing; msg is non-empty when it is present but malformed.
func bearerToken(c *gin.Context) (token string, ok bool, msg string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false, ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", true, "Authorization header must start with 'Bearer '"
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", true, "Authorization token is empty"
	}
	return token, true, ""
}

// AuthMiddleware requires a valid bearer token. The verified principal is stored under
// PrincipalKey and its identity replaces the user id of the audit request context, so audit
// records and created_by fields name the authenticated caller rather than a client header.
func AuthMiddleware(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present, msg := bearerToken(c)
		if !present {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			return
		}
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				slog.Error("token verification failed", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// setPrincipal records the principal on the request and rebinds the audit request context
func setPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(PrincipalKey, p)
	c.Set(UserIDKey, p.Identity())

	rc, err := audit.FromGin(c)
	if err != nil {
		// RequestContextMiddleware did not run; start a context from the transport fields
		rc = audit.NewRequestContext("", c.GetHeader(SessionIDHeader), c.ClientIP())
	}
	audit.SetGin(c, rc.WithUserID(p.Identity()))
}

// GetPrincipal returns the authenticated principal, or nil on unauthenticated routes
func GetPrincipal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
