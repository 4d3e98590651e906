// Package main mints an HS256 bearer token for local development and service accounts when
// Azure AD is disabled. It signs with MRO_JWT_SECRET, so the server must run with the same
// secret. Do not hand these tokens to people; production users authenticate through Azure AD.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cirrus-mro/cirrus-api/internal/auth"
	"github.com/cirrus-mro/cirrus-api/internal/config"
)

func main() {
	email := flag.String("email", "dev@cirrus.local", "email recorded as the acting user")
	name := flag.String("name", "", "display name")
	subject := flag.String("subject", "", "token subject; defaults to the email")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to auth.jwt.token_ttl")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Auth.AzureAD.Enabled {
		log.Println("Warning: Azure AD is enabled; the server will reject HS256 tokens.")
	}
	if err := auth.ValidateJWTSecret(); err != nil {
		log.Fatal(err)
	}

	lifetime := cfg.Auth.JWT.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sub := *subject
	if sub == "" {
		sub = *email
	}

	token, err := auth.GenerateJWT(cfg.Auth.JWT.Issuer, auth.Principal{Subject: sub, Email: *email, Name: *name}, lifetime)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Token for %s, valid until %s\n", *email, time.Now().Add(lifetime).Format(time.RFC3339))
	fmt.Printf("Authorization: Bearer %s\n", token)
}
