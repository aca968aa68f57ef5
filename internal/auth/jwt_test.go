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
)

const secret = "test-secret"

func sign(t *testing.T, claims Claims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func validClaims(role string) Claims {
	return Claims{
		Email: "mona@example.com",
		Name:  "Mona Adel",
		Phone: "+201000000000",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "travelbooking",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifier_Parse(t *testing.T) {
	v := NewVerifier(secret, "travelbooking")

	user, err := v.Parse(sign(t, validClaims("USER"), secret))
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "mona@example.com", user.Email)
	assert.Equal(t, "Mona Adel", user.Name)
	assert.False(t, user.IsAdmin())

	_, err = v.Parse(sign(t, validClaims("USER"), "other-secret"))
	assert.Error(t, err)

	expired := validClaims("USER")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.Parse(sign(t, expired, secret))
	assert.Error(t, err)

	wrongIssuer := validClaims("USER")
	wrongIssuer.Issuer = "someone-else"
	_, err = v.Parse(sign(t, wrongIssuer, secret))
	assert.Error(t, err)

	noSubject := validClaims("USER")
	noSubject.Subject = ""
	_, err = v.Parse(sign(t, noSubject, secret))
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewVerifier(secret, "travelbooking")

	router := gin.New()
	router.GET("/me", v.Middleware(), func(c *gin.Context) {
		user, _ := UserFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	router.GET("/admin", v.Middleware(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	testCases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"not bearer", "/me", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"valid", "/me", "Bearer " + sign(t, validClaims("USER"), secret), http.StatusOK},
		{"admin route as user", "/admin", "Bearer " + sign(t, validClaims("USER"), secret), http.StatusForbidden},
		{"admin route as admin", "/admin", "Bearer " + sign(t, validClaims("ADMIN"), secret), http.StatusNoContent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
