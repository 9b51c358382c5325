package gateway

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks a bearer token presented on the control stream.
// Two backends are provided behind this one interface (opaque equality,
// JWT HS256), selected at startup from environment — per spec.md §9's
// design note ("do not hard-code either in the hot path").
type TokenVerifier interface {
	// Verify returns nil if token is acceptable, or an error whose message
	// identifies whether the token is missing/malformed (token.invalid) or
	// expired (token.expired).
	Verify(token string) error
}

// OpaqueVerifier accepts a token only if it equals Secret exactly,
// matching TOPPY_GW_TOKEN's shared-secret contract.
type OpaqueVerifier struct {
	Secret string
}

func (v *OpaqueVerifier) Verify(token string) error {
	if token == "" {
		return fmt.Errorf("token: missing credential")
	}
	if token != v.Secret {
		return fmt.Errorf("token: invalid credential")
	}
	return nil
}

// JWTVerifier validates an HS256-signed JWT, matching
// original_source/toppy-core/src/auth.rs's validate_jwt_hs256:
// signature, optional issuer/audience, and expiry.
type JWTVerifier struct {
	Secret   string
	Issuer   string
	Audience string
}

func (v *JWTVerifier) Verify(token string) error {
	if token == "" {
		return fmt.Errorf("token: missing credential")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("token: expired credential: %w", err)
		}
		return fmt.Errorf("token: invalid credential: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("token: invalid credential")
	}
	return nil
}
