package platform

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields of a per-call JWT the service cares about.
type Claims struct {
	OID string `json:"oid"`
	jwt.RegisteredClaims
}

// ParseClaims reads token without checking its signature. The token was
// minted by the platform for this call and is only ever sent back to it; the
// service inspects it to fail early on expired credentials.
func ParseClaims(token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}
