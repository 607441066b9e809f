package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ems-program-api/internal/models"
	"github.com/noah-isme/ems-program-api/internal/service"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
	"github.com/noah-isme/ems-program-api/pkg/logger"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newProtectedRouter(role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta(), Metrics(service.NewMetricsService()))
	r.GET("/bulk-operations",
		JWT(stubValidator{claims: &models.JWTClaims{UserID: "u-1", Role: role}}),
		RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
		func(c *gin.Context) {
			SetMeta(c, "cache_hit", false)
			c.JSON(http.StatusOK, gin.H{"actor": c.GetString(logger.ActorKey), "meta": ExtractMeta(c)})
		})
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := newProtectedRouter(models.RoleAdmin)

	for _, header := range []string{"", "Token good", "Bearer ", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/bulk-operations", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
	}
}

func TestRequireRolesAllowsAdmins(t *testing.T) {
	r := newProtectedRouter(models.RoleAdmin)
	req := httptest.NewRequest(http.MethodGet, "/bulk-operations", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-1", body["actor"])
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, false, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestRequireRolesForbidsInstructors(t *testing.T) {
	r := newProtectedRouter(models.RoleInstructor)
	req := httptest.NewRequest(http.MethodGet, "/bulk-operations", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
}
