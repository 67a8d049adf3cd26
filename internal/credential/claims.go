package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields of an access token the client looks at. Tokens are
// not verified here; the server remains the only authority.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// ParseClaims decodes token without verifying its signature
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	var c Claims
	if sub, err := mc.GetSubject(); err == nil && sub != "" {
		c.Subject = sub
	} else if id, ok := mc["user_id"].(string); ok {
		c.Subject = id
	} else if id, ok := mc["id"].(string); ok {
		c.Subject = id
	}
	if role, ok := mc["role"].(string); ok {
		c.Role = role
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// ExpiresIn returns how long the token stays valid from now, zero when the
// expiry is unknown or past.
func (c Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() || !c.ExpiresAt.After(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
