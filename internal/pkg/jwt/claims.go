// internal/pkg/jwt/claims.go
package jwt

import (
	"boost-service/internal/pkg/identity"

	"github.com/golang-jwt/jwt/v5"
)

const PurposeAccess = "access"

// Claims are the access-token claims issued by the marketplace auth service.
type Claims struct {
	IdentityID     int64    `json:"identity_id"`
	Roles          []string `json:"roles,omitempty"`
	IsTemp         bool     `json:"is_temp"`
	SessionPurpose string   `json:"session_purpose"`
	jwt.RegisteredClaims
}

// HasRole checks if the claims contain a specific role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if audience == "" {
		return true
	}
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

// Principal converts verified claims into the caller identity. The raw token is
// kept so upstream calls can be made on the caller's behalf.
func (c *Claims) Principal(rawToken string) identity.Principal {
	return identity.Principal{
		IdentityID: c.IdentityID,
		Token:      rawToken,
		Roles:      c.Roles,
	}
}
