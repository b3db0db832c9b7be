package oidc

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityToken is the subset of an OIDC identity token the client looks
// at before handing it to the registry. The signature is verified by the
// registry, not here.
type IdentityToken struct {
	Raw       string
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt time.Time
}

// InspectIdentityToken parses raw without verifying its signature and
// rejects tokens that carry no expiry or have already expired.
func InspectIdentityToken(raw string, now time.Time) (IdentityToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return IdentityToken{}, ErrNoIdentityToken
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return IdentityToken{}, fmt.Errorf("malformed identity token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return IdentityToken{}, fmt.Errorf("identity token has no exp claim")
	}
	exp := claims.ExpiresAt.Time.UTC()
	if !exp.After(now.UTC()) {
		return IdentityToken{}, fmt.Errorf("identity token expired at %s", exp.Format(time.RFC3339))
	}
	return IdentityToken{
		Raw:       raw,
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		Audience:  []string(claims.Audience),
		ExpiresAt: exp,
	}, nil
}
