package auth

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// resetJWTSecret resets the package-level sync.Once so tests can set a fresh secret.
func resetJWTSecret() {
	jwtSecret = ""
	jwtSecretOnce = sync.Once{}
	jwtSecretErr = nil
}

func TestMain(m *testing.M) {
	os.Setenv(JWTSecretEnv, "test-jwt-secret-that-is-32-chars-!")
	os.Exit(m.Run())
}

var testPrincipal = Principal{Subject: "svc-42", Email: "tech@cirrus.aero", Name: "Line Tech"}

func TestValidateJWTSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "exactly-32-char-secret-for-test!!")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error: %v", err)
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "")
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if err := ValidateJWTSecret(); err == nil {
			t.Error("ValidateJWTSecret() expected error without secret, got nil")
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		resetJWTSecret()
		t.Setenv(JWTSecretEnv, "")
		t.Setenv("DEV_MODE", "true")
		if err := ValidateJWTSecret(); err != nil {
			t.Errorf("ValidateJWTSecret() unexpected error in dev mode: %v", err)
		}
		if GetJWTSecret() == "" {
			t.Error("GetJWTSecret() returned empty string after dev mode init")
		}
	})
	resetJWTSecret()
}

func TestGenerateAndValidateJWT(t *testing.T) {
	resetJWTSecret()

	token, err := GenerateJWT("cirrus-api", testPrincipal, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	claims, err := ValidateJWT(token, "cirrus-api")
	if err != nil {
		t.Fatalf("ValidateJWT() error: %v", err)
	}
	if claims.Email != testPrincipal.Email || claims.Subject != testPrincipal.Subject {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateJWT_Rejects(t *testing.T) {
	resetJWTSecret()

	t.Run("expired", func(t *testing.T) {
		token, _ := GenerateJWT("cirrus-api", testPrincipal, -time.Minute)
		if _, err := ValidateJWT(token, ""); err == nil {
			t.Error("expected error for expired token")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, _ := GenerateJWT("someone-else", testPrincipal, time.Hour)
		if _, err := ValidateJWT(token, "cirrus-api"); err == nil {
			t.Error("expected error for wrong issuer")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Email: "x@y.z"})
		signed, _ := token.SignedString([]byte("a-completely-different-secret-value"))
		if _, err := ValidateJWT(signed, ""); err == nil {
			t.Error("expected error for foreign signature")
		}
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Email: "x@y.z"})
		signed, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if _, err := ValidateJWT(signed, ""); err == nil {
			t.Error("expected error for unsigned token")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ValidateJWT("not.a.jwt", ""); err == nil {
			t.Error("expected error for garbage")
		}
	})
}

func TestHS256Verifier(t *testing.T) {
	resetJWTSecret()
	v := HS256Verifier{Issuer: "cirrus-api"}

	token, _ := GenerateJWT("cirrus-api", testPrincipal, time.Hour)
	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if p.Identity() != "tech@cirrus.aero" {
		t.Errorf("Identity() = %q", p.Identity())
	}

	if _, err := v.Verify(context.Background(), "bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(bogus) error = %v, want ErrInvalidToken", err)
	}
}

func TestPrincipalIdentity(t *testing.T) {
	if got := (&Principal{Subject: "abc"}).Identity(); got != "abc" {
		t.Errorf("Identity() = %q, want subject fallback", got)
	}
}
