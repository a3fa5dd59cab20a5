package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edupoint/rewards-api/internal/models"
)

func TestOrderStudentIDPinsStudentToSelf(t *testing.T) {
	claims := &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}

	assert.Equal(t, "s-1", orderStudentID(claims, "s-2"))
	assert.Equal(t, "s-1", orderStudentID(claims, ""))
}

func TestOrderStudentIDKeepsStaffTarget(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin} {
		claims := &models.JWTClaims{UserID: "staff-1", Role: role}
		assert.Equal(t, "s-2", orderStudentID(claims, "s-2"))
	}
}
