// Package azuread verifies Azure Active Directory (Entra ID) access tokens issued to the MRO
// web client. Signing keys are fetched from the tenant's JWKS endpoint and cached by go-oidc.
package azuread

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/cirrus-mro/cirrus-api/internal/auth"
	"github.com/cirrus-mro/cirrus-api/internal/config"
)

// IssuerURL returns the v2.0 issuer of a tenant
func IssuerURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantID)
}

// Verifier checks Azure AD tokens for one tenant and application
type Verifier struct {
	verifier *oidc.IDTokenVerifier
	tenantID string
}

// azureClaims are the identity claims Azure AD puts in v2.0 tokens. Work accounts usually
// carry preferred_username; email is only present when the optional claim is configured.
type azureClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
	Name              string `json:"name"`
	TenantID          string `json:"tid"`
}

// NewVerifier discovers the tenant's OIDC metadata and returns a verifier for access tokens
// whose audience is cfg.ClientID
func NewVerifier(ctx context.Context, cfg *config.AzureADConfig) (*Verifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("Azure AD is not enabled")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("Azure AD tenant ID is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("Azure AD client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, IssuerURL(cfg.TenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to discover Azure AD provider: %w", err)
	}

	return &Verifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		tenantID: cfg.TenantID,
	}, nil
}

// NewVerifierWithKeySet builds a verifier from a fixed key set without discovery
func NewVerifierWithKeySet(tenantID, clientID string, keySet oidc.KeySet) *Verifier {
	return &Verifier{
		verifier: oidc.NewVerifier(IssuerURL(tenantID), keySet, &oidc.Config{ClientID: clientID}),
		tenantID: tenantID,
	}
}

// TenantID returns the tenant the verifier accepts
func (v *Verifier) TenantID() string {
	return v.tenantID
}

// Verify implements auth.TokenVerifier
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*auth.Principal, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	var claims azureClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}
	if claims.TenantID != "" && claims.TenantID != v.tenantID {
		return nil, fmt.Errorf("%w: token issued for tenant %s", auth.ErrInvalidToken, claims.TenantID)
	}

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	if email == "" {
		email = claims.UPN
	}

	return &auth.Principal{Subject: token.Subject, Email: email, Name: claims.Name}, nil
}

var _ auth.TokenVerifier = (*Verifier)(nil)
