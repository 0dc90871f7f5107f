package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", "tripnest-test", time.Hour)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	userID := uuid.New()
	email := "traveller@example.com"

	token, err := jwtService.GenerateAccessToken(userID, email, []string{jwt.RoleUser})
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{
			"message": "success",
			"user_id": userCtx.UserID,
			"email":   userCtx.Email,
		})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success")
	assert.Contains(t, w.Body.String(), email)
	assert.Contains(t, w.Body.String(), userID.String())
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/protected", AuthMiddleware(jwtService), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	expired, err := jwt.NewService("test-access-secret-key-123456789", "tripnest-test", -time.Hour).
		GenerateAccessToken(uuid.New(), "late@example.com", []string{jwt.RoleUser})
	require.NoError(t, err)

	foreign, err := jwt.NewService("another-secret", "tripnest-test", time.Hour).
		GenerateAccessToken(uuid.New(), "foreign@example.com", []string{jwt.RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"Missing Header", "", "MISSING_AUTH_HEADER"},
		{"Wrong Scheme", "Basic abc", "INVALID_AUTH_FORMAT"},
		{"Empty Token", "Bearer   ", "INVALID_AUTH_FORMAT"},
		{"Garbage Token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"Expired Token", "Bearer " + expired, "TOKEN_EXPIRED"},
		{"Wrong Secret", "Bearer " + foreign, "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
			assert.NotContains(t, w.Body.String(), "should not reach here")
		})
	}
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Present", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expected := UserContext{UserID: uuid.New(), Email: "a@example.com", Roles: []string{jwt.RoleUser}}
		c.Set(UserContextKey, expected)

		userCtx, ok := GetUserContext(c)
		assert.True(t, ok)
		assert.Equal(t, expected, userCtx)
	})

	t.Run("Missing", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		_, ok := GetUserContext(c)
		assert.False(t, ok)
	})

	t.Run("Wrong Type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserContextKey, "not a user")
		_, ok := GetUserContext(c)
		assert.False(t, ok)
	})
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/vendor", AuthMiddleware(jwtService), RequireRole(jwt.RoleVendor, jwt.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "vendor area"})
	})
	router.GET("/no-auth", RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "unreachable"})
	})

	tests := []struct {
		name     string
		roles    []string
		expected int
	}{
		{"Vendor Allowed", []string{jwt.RoleVendor}, http.StatusOK},
		{"Admin Allowed", []string{jwt.RoleUser, jwt.RoleAdmin}, http.StatusOK},
		{"User Forbidden", []string{jwt.RoleUser}, http.StatusForbidden},
		{"No Roles Forbidden", []string{}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtService.GenerateAccessToken(uuid.New(), "someone@example.com", tt.roles)
			require.NoError(t, err)

			req := httptest.NewRequest("GET", "/vendor", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
		})
	}

	t.Run("Missing User Context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/no-auth", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}
