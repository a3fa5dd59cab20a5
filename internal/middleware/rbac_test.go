package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
)

func rbacContext(t *testing.T, claims *models.JWTClaims, studentID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/students/"+studentID+"/balances", nil)
	c.Request = req
	if studentID != "" {
		c.Params = gin.Params{{Key: "studentId", Value: studentID}}
	}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}
	return c, w
}

func TestRBACAllowsListedRole(t *testing.T) {
	c, _ := rbacContext(t, &models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher}, "s-1")

	RBAC(string(models.RoleTeacher), string(models.RoleAdmin))(c)

	require.False(t, c.IsAborted())
}

func TestRBACRejectsUnlistedRole(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: "s-2", Role: models.RoleStudent}, "s-1")

	RBAC(string(models.RoleAdmin))(c)

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatchesOwnStudentID(t *testing.T) {
	c, _ := rbacContext(t, &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}, "s-1")

	RBAC(RoleSelf, string(models.RoleTeacher))(c)

	require.False(t, c.IsAborted())
}

func TestRBACSelfRejectsOtherStudent(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: "s-2", Role: models.RoleStudent}, "s-1")

	RBAC(RoleSelf, string(models.RoleTeacher))(c)

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	c, w := rbacContext(t, nil, "s-1")

	RBAC(string(models.RoleAdmin))(c)

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
