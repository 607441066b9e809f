package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ems-program-api/internal/models"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
	"github.com/noah-isme/ems-program-api/pkg/response"
)

// RequireRoles only lets through callers whose token role is in roles. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not perform bulk operations"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Claims returns the validated token claims stored by JWT.
func Claims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}
