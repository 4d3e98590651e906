package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned by verifiers for tokens that fail signature, issuer, audience or
// expiry checks
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller
type Principal struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// Identity returns the value recorded as the acting user: the email when present, otherwise
// the subject
func (p *Principal) Identity() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}

// TokenVerifier turns a bearer token into a Principal
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}
