// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"strings"

	domauth "glasstrace-service/internal/domain/auth"
	"glasstrace-service/internal/pkg/response"
	"glasstrace-service/internal/service/auth"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	authService *auth.AuthService
}

func NewAuthMiddleware(authService *auth.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set("identity_id", claims.SubjectID)
		c.Set("jti", claims.ID)
		c.Set("role", domauth.Role(claims.Role))

		c.Next()
	}
}

// RequireRole requires the caller's role rank to be at least the given
// role's rank. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(required domauth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetRole(c)
		if !ok {
			response.Error(c, http.StatusForbidden, "no role found - authentication required", nil)
			return
		}

		if !role.AtLeast(required) {
			response.Error(c, http.StatusForbidden, "insufficient role", nil, map[string]interface{}{
				"required_role": required,
				"caller_role":   role,
			})
			return
		}

		c.Next()
	}
}

// OperatorOnly returns middlewares for routes that mutate production data
func (m *AuthMiddleware) OperatorOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(domauth.RoleOperator),
	}
}

// AdminOnly returns middlewares for admin-only routes
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(domauth.RoleAdmin),
	}
}

// extractToken extracts Bearer token from the Authorization header, with a
// query-param fallback for websocket upgrades where headers are awkward
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return c.Query("token")
}

// GetIdentityID gets the authenticated identity ID from context
func GetIdentityID(c *gin.Context) (int64, bool) {
	identityID, exists := c.Get("identity_id")
	if !exists {
		return 0, false
	}

	id, ok := identityID.(int64)
	return id, ok
}

// GetJTI gets the access-token JTI from context
func GetJTI(c *gin.Context) (string, bool) {
	jti, exists := c.Get("jti")
	if !exists {
		return "", false
	}

	jtiStr, ok := jti.(string)
	return jtiStr, ok
}

// GetRole gets the caller's role from context
func GetRole(c *gin.Context) (domauth.Role, bool) {
	role, exists := c.Get("role")
	if !exists {
		return "", false
	}

	r, ok := role.(domauth.Role)
	return r, ok
}
