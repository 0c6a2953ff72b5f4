package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-academic-api/internal/middleware"
	"github.com/noah-isme/tc-academic-api/internal/models"
	appErrors "github.com/noah-isme/tc-academic-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireClaims returns the caller identity or an unauthorized error.
func requireClaims(c *gin.Context) (*models.JWTClaims, error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

// studentScope resolves which student a read concerns: students always see themselves,
// staff must name one.
func studentScope(claims *models.JWTClaims, requested string) (string, error) {
	if claims.Role.IsStaff() {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
		return requested, nil
	}
	if claims.Role != models.RoleStudent {
		return "", appErrors.ErrForbidden
	}
	if requested != "" && requested != claims.UserID {
		return "", appErrors.ErrForbidden
	}
	return claims.UserID, nil
}
