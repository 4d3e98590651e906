package azuread

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cirrus-mro/cirrus-api/internal/auth"
	"github.com/cirrus-mro/cirrus-api/internal/config"
)

const (
	testTenant = "0b6d7e5c-1111-2222-3333-444455556666"
	testClient = "api://cirrus-mro"
)

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewVerifierWithKeySet(testTenant, testClient, keySet), key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": IssuerURL(testTenant),
		"aud": testClient,
		"sub": "oid-123",
		"tid": testTenant,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func TestNewVerifier_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AzureADConfig
	}{
		{"disabled", config.AzureADConfig{Enabled: false, TenantID: testTenant, ClientID: testClient}},
		{"missing tenant", config.AzureADConfig{Enabled: true, ClientID: testClient}},
		{"missing client", config.AzureADConfig{Enabled: true, TenantID: testTenant}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVerifier(context.Background(), &tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestIssuerURL(t *testing.T) {
	want := "https://login.microsoftonline.com/" + testTenant + "/v2.0"
	if got := IssuerURL(testTenant); got != want {
		t.Errorf("IssuerURL() = %q, want %q", got, want)
	}
}

func TestVerify_PreferredUsername(t *testing.T) {
	v, key := newTestVerifier(t)
	claims := baseClaims()
	claims["preferred_username"] = "planner@cirrus.aero"
	claims["name"] = "Shop Planner"

	p, err := v.Verify(context.Background(), signToken(t, key, claims))
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if p.Email != "planner@cirrus.aero" || p.Subject != "oid-123" || p.Name != "Shop Planner" {
		t.Errorf("principal = %+v", p)
	}
}

func TestVerify_EmailClaimWins(t *testing.T) {
	v, key := newTestVerifier(t)
	claims := baseClaims()
	claims["email"] = "lead@cirrus.aero"
	claims["preferred_username"] = "lead-upn@cirrus.aero"

	p, err := v.Verify(context.Background(), signToken(t, key, claims))
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if p.Email != "lead@cirrus.aero" {
		t.Errorf("Email = %q", p.Email)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v, key := newTestVerifier(t)
	otherKey, _ := rsa.GenerateKey(rand.Reader, 2048)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		signer *rsa.PrivateKey
	}{
		{"wrong audience", func(c jwt.MapClaims) { c["aud"] = "api://other" }, key},
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "https://evil.example/v2.0" }, key},
		{"expired", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, key},
		{"other tenant", func(c jwt.MapClaims) { c["tid"] = "another-tenant" }, key},
		{"unknown key", func(jwt.MapClaims) {}, otherKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := baseClaims()
			tt.mutate(claims)
			_, err := v.Verify(context.Background(), signToken(t, tt.signer, claims))
			if !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTenantID(t *testing.T) {
	v, _ := newTestVerifier(t)
	if v.TenantID() != testTenant {
		t.Errorf("TenantID() = %q", v.TenantID())
	}
}
