// internal/middleware/helpers.go
package middleware

import (
	domauth "glasstrace-service/internal/domain/auth"

	"github.com/gin-gonic/gin"
)

// MustGetIdentityID gets identity ID from context or panics. Only valid
// behind Auth().
func MustGetIdentityID(c *gin.Context) int64 {
	identityID, exists := GetIdentityID(c)
	if !exists {
		panic("identity_id not found in context")
	}
	return identityID
}

// MustGetJTI gets the access JTI from context or panics
func MustGetJTI(c *gin.Context) string {
	jti, exists := GetJTI(c)
	if !exists {
		panic("jti not found in context")
	}
	return jti
}

// IsAuthenticated checks if the request carries a validated identity
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("identity_id")
	return exists
}

// IsAdmin checks if the caller holds the admin role
func IsAdmin(c *gin.Context) bool {
	role, ok := GetRole(c)
	return ok && role.AtLeast(domauth.RoleAdmin)
}
