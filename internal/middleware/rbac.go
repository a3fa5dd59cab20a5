package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
	"github.com/edupoint/rewards-api/pkg/response"
)

// RoleSelf grants access when the studentId route param matches the
// caller's own user ID. It lets students read their own ledger without
// opening it to the whole school.
const RoleSelf = "SELF"

// RBAC allows a request through when the caller holds one of the listed
// roles, or when RoleSelf is listed and the route targets the caller.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	self := false
	for _, a := range allowed {
		if a == RoleSelf {
			self = true
			continue
		}
		roles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		value, ok := c.Get(ContextUserKey)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, granted := roles[claims.Role]; granted {
			c.Next()
			return
		}
		if self {
			if target := c.Param("studentId"); target != "" && target == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
