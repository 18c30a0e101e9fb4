package auth

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/joy095/payouts/logger"
	"github.com/joy095/payouts/utils"
	"github.com/joy095/payouts/utils/jwt_parse"
)

// AuthMiddleware validates the bearer token and stores the caller's identity
// in the context for utils.GetActorFromContext.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := jwt_parse.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			logger.ErrorLogger.Errorf("Rejected request to %s: %v", c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "NO_TOKEN", "error": err.Error()})
			return
		}

		claims, err := jwt_parse.ParseToken(tokenString, secret)
		if err != nil {
			logger.ErrorLogger.Errorf("Failed to parse JWT token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "Invalid token"})
			return
		}

		c.Set(utils.ContextUserID, claims.UserID)
		c.Set(utils.ContextUserName, claims.Name)
		c.Set(utils.ContextTenantID, claims.TenantID)
		c.Set(utils.ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole lets the request through only when the token carries one of
// the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(utils.ContextRole)
		if !slices.Contains(roles, role) {
			logger.WarnLogger.Warnf("Role %q denied access to %s", role, c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}
