package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/crm-api/internal/models"
)

// Context keys set by Auth
const (
	ctxUserID    = "userID"
	ctxUserEmail = "userEmail"
	ctxUserName  = "userName"
	ctxUserRole  = "userRole"
)

const roleAdmin = "admin"

var (
	errMissingToken = errors.New("Authorization header is required")
	errBadHeader    = errors.New("Invalid authorization header format")
)

// Claims represents the JWT claims structure. Tokens are issued by the
// account service; this API only verifies them.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// subjectID falls back to a numeric "sub" claim when user_id is absent.
func (c *Claims) subjectID() uint {
	if c.UserID != 0 {
		return c.UserID
	}
	id, err := strconv.ParseUint(c.Subject, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// Auth returns a middleware that validates HS256 bearer tokens and records the
// caller on the context for audit attribution.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ctxUserID, claims.subjectID())
		c.Set(ctxUserEmail, claims.Email)
		c.Set(ctxUserName, strings.TrimSpace(claims.Name))
		c.Set(ctxUserRole, strings.ToLower(claims.Role))
		c.Next()
	}
}

// bearerToken reads the Authorization header. GET requests may pass the token
// as ?token= instead so export and duplicate-report links work as plain hrefs.
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if c.Request.Method == http.MethodGet {
			if t := c.Query("token"); t != "" {
				return t, nil
			}
		}
		return "", errMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errBadHeader
	}
	return strings.TrimSpace(token), nil
}

func validateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, errors.New("invalid token")
	}
	if !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GetUserID returns the authenticated user id, 0 when there is none.
func GetUserID(c *gin.Context) uint {
	return c.GetUint(ctxUserID)
}

func GetUserRole(c *gin.Context) string {
	return c.GetString(ctxUserRole)
}

// GetUploader returns the authenticated user id for upload attribution, or
// nil for anonymous requests.
func GetUploader(c *gin.Context) *uint {
	id := GetUserID(c)
	if id == 0 {
		return nil
	}
	return &id
}

// GetActor describes the caller for audit entries. The display name falls
// back to the e-mail address.
func GetActor(c *gin.Context) models.Actor {
	name := c.GetString(ctxUserName)
	email := c.GetString(ctxUserEmail)
	if name == "" {
		name = email
	}
	return models.Actor{
		UserID:    GetUserID(c),
		Name:      name,
		Email:     email,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func IsAdmin(c *gin.Context) bool {
	return GetUserRole(c) == roleAdmin
}

// RequireAdmin guards destructive and maintenance routes.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
