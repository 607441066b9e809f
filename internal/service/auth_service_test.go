package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ems-program-api/internal/models"
	appErrors "github.com/noah-isme/ems-program-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret interface{}, claims *models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func portalClaims(expiresIn time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "admin-1",
		Role:   models.RoleAdmin,
		Email:  "admin@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ems-identity",
			Subject:   "admin-1",
			Audience:  jwt.ClaimStrings{"ems-portal"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{AccessTokenSecret: testSecret, Issuer: "ems-identity", Audience: []string{"ems-portal"}})
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := newTestAuthService()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), portalClaims(time.Hour))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceFallsBackToSubject(t *testing.T) {
	svc := newTestAuthService()
	claims := portalClaims(time.Hour)
	claims.UserID = ""
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)

	parsed, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", parsed.UserID)
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := newTestAuthService()

	wrongIssuer := portalClaims(time.Hour)
	wrongIssuer.Issuer = "someone-else"
	noRole := portalClaims(time.Hour)
	noRole.Role = ""

	cases := map[string]string{
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte(testSecret), portalClaims(-time.Minute)),
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), portalClaims(time.Hour)),
		"wrong method": signToken(t, jwt.SigningMethodHS512, []byte(testSecret), portalClaims(time.Hour)),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
		"no role":      signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noRole),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}
