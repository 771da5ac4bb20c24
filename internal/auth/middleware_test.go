package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, role, entityID string) string {
	t.Helper()
	claims := Claims{
		Role:     role,
		EntityID: entityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func testRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Middleware(testSecret, zap.NewNop())}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		user, _ := FromContext(c)
		c.JSON(http.StatusOK, user)
	})
	r.GET("/probe", handlers...)
	return r
}

func TestMiddlewareValidToken(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "vendor", "ent-42"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":"user-1"`)
	assert.Contains(t, w.Body.String(), `"linkedEntityId":"ent-42"`)
}

func TestMiddlewareMissingHeader(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareBadToken(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareUnknownRole(t *testing.T) {
	r := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "superuser", ""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoles(t *testing.T) {
	r := testRouter(RequireRoles(RoleAdmin))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "vendor", "ent-42"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "admin", ""))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseRoleLegacyAliases(t *testing.T) {
	role, ok := ParseRole("restaurantOwner")
	assert.True(t, ok)
	assert.Equal(t, RoleBuyerOwner, role)

	role, ok = ParseRole("restaurantManager")
	assert.True(t, ok)
	assert.Equal(t, RoleBuyerManager, role)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}

func TestRequiresEntity(t *testing.T) {
	assert.False(t, RoleAdmin.RequiresEntity())
	assert.True(t, RoleVendor.RequiresEntity())
	assert.True(t, RoleBuyerOwner.RequiresEntity())
	assert.True(t, RoleBuyerManager.RequiresEntity())
}
