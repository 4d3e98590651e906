// Package auth - jwt.go signs and verifies the HS256 tokens used by service accounts and local
// development when Azure AD is not enabled. The shared secret is read lazily from MRO_JWT_SECRET.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecretEnv is the environment variable holding the HS256 signing secret
const JWTSecretEnv = "MRO_JWT_SECRET"

var (
	// jwtSecret holds the validated JWT secret
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims represents the JWT claims structure
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the JWT secret is configured. Outside dev mode a missing
// MRO_JWT_SECRET is an error; in dev mode a random secret is generated and a warning logged.
// Call this at application startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(JWTSecretEnv)

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				log.Printf("WARNING: %s not set. Using auto-generated secret for development.", JWTSecretEnv)
				log.Printf("WARNING: tokens minted before a restart will stop validating.")
			} else {
				jwtSecretErr = fmt.Errorf("%s environment variable is required when Azure AD is disabled; "+
					"generate one with: openssl rand -hex 32", JWTSecretEnv)
			}
			return
		}

		if len(secret) < 32 {
			log.Printf("WARNING: %s is shorter than recommended 32 characters.", JWTSecretEnv)
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GetJWTSecret retrieves the validated JWT secret.
// Panics if the secret cannot be validated.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT signs a token for the given principal
func GenerateJWT(issuer string, p Principal, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	now := time.Now()
	claims := &Claims{
		Email: p.Email,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   p.Subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and validates a JWT token. A non-empty issuer must match the iss claim.
func ValidateJWT(tokenString, issuer string) (*Claims, error) {
	secret := GetJWTSecret()

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// HS256Verifier verifies locally signed tokens
type HS256Verifier struct {
	Issuer string
}

// Verify implements TokenVerifier
func (v HS256Verifier) Verify(_ context.Context, rawToken string) (*Principal, error) {
	claims, err := ValidateJWT(rawToken, v.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Principal{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
