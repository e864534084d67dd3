package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ticrm/tire-storage-api/models"
)

// RequireRoles lets the request through only when the session role is one
// of roles. It must run after RequireSession.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		session, err := GetSession(c)
		if err != nil {
			abortUnauthorized(c, "Authentication required")
			return
		}

		if !allowed[session.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Insufficient permissions to access this resource",
				},
			})
			return
		}

		c.Next()
	}
}

// RequireStaff is RequireRoles for admins and managers.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.StaffRoles...)
}
