package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-academic-api/internal/models"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
	"github.com/noah-isme/tc-academic-api/pkg/response"
)

// Self lets a caller through when the :id path parameter is their own user id.
const Self = "SELF"

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		if a == Self {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// StaffOrSelf admits staff roles and the student named by :id.
func StaffOrSelf() gin.HandlerFunc {
	return RBAC(string(models.RoleAdmin), string(models.RoleCenterManager), string(models.RoleAcademicStaff), Self)
}

// StaffOnly admits the roles allowed to decide requests and act on behalf of students.
func StaffOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleCenterManager, models.RoleAcademicStaff)
}
