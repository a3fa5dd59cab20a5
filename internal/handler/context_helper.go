package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edupoint/rewards-api/internal/middleware"
	"github.com/edupoint/rewards-api/internal/models"
)

// claimsFromContext returns the caller's claims, or nil when the route
// ran without the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := c.Value(middleware.ContextUserKey).(*models.JWTClaims)
	return claims
}
