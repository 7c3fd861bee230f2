package middleware

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

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", handlers...)
	r.OPTIONS("/x", handlers...)
	return r
}

func TestAuth_SetsActor(t *testing.T) {
	var got struct {
		name, email string
		uploader    *uint
	}
	r := newRouter(Auth(testSecret), func(c *gin.Context) {
		a := GetActor(c)
		got.name, got.email = a.Name, a.Email
		got.uploader = GetUploader(c)
		c.Status(http.StatusOK)
	})

	token := signToken(t, Claims{
		UserID: 7,
		Email:  "ana@example.com",
		Name:   "Ana",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana", got.name)
	assert.Equal(t, "ana@example.com", got.email)
	require.NotNil(t, got.uploader)
	assert.Equal(t, uint(7), *got.uploader)
}

func TestAuth_Rejects(t *testing.T) {
	r := newRouter(Auth(testSecret), func(c *gin.Context) { c.Status(http.StatusOK) })

	expired := signToken(t, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"bad format", "Token abc"},
		{"garbage token", "Bearer abc"},
		{"expired", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	setRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set("userRole", role) }
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	w := httptest.NewRecorder()
	newRouter(setRole("agent"), RequireAdmin(), ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	newRouter(setRole("admin"), RequireAdmin(), ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://app.example"}), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://other.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuth_QueryTokenOnlyForGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var gotID uint
	ok := func(c *gin.Context) {
		gotID = GetUserID(c)
		c.Status(http.StatusOK)
	}
	r.GET("/x", Auth(testSecret), ok)
	r.POST("/x", Auth(testSecret), ok)

	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(42), gotID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := newRouter(RequestLogger(), func(c *gin.Context) {
		assert.NotEmpty(t, GetRequestID(c))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "upstream-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-1", w.Header().Get(RequestIDHeader))
}
