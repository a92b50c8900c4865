// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims carried by GlassTrace tokens.
type Claims struct {
	SubjectID int64  `json:"subject_id"`
	Role      string `json:"role,omitempty"`
	Purpose   string `json:"purpose"` // access or refresh
	jwt.RegisteredClaims
}

// IsRefresh reports whether the token was minted as a refresh token.
func (c *Claims) IsRefresh() bool {
	return c.Purpose == "refresh"
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}
