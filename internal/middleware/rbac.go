package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
)

// RequireRole checks that the JWT belongs to an account with the given role.
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.Role != role {
			code := response.ErrForbidden
			switch role {
			case model.RoleStudent:
				code = response.ErrStudentAccessOnly
			case model.RoleFaculty:
				code = response.ErrFacultyAccessOnly
			}
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}

		c.Next()
	}
}
