package session

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenClaims returns the claims carried by a JWT bearer token without
// verifying its signature. Signature verification is the server's concern;
// this peek exists for display purposes only and must never feed an
// authorization decision.
func TokenClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "[TokenClaims] parse token")
	}
	return claims, nil
}
