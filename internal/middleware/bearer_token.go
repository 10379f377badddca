package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// Context keys set by TenantAuthMiddleware
const (
	TenantIDKey = "tenant_id"
	UserIDKey   = "user_id"
)

type BearerTokenMiddleware struct {
	jwtSecret []byte
}

func NewBearerTokenMiddleware(jwtSecret string) *BearerTokenMiddleware {
	return &BearerTokenMiddleware{jwtSecret: []byte(jwtSecret)}
}

// ParseToken verifies an HMAC signed token and returns its tenant claims
func (m *BearerTokenMiddleware) ParseToken(tokenString string) (*models.TenantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TenantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*models.TenantClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, fmt.Errorf("token has no valid tenant_id")
	}
	return claims, nil
}

// TenantAuthMiddleware validates the bearer token and sets the acting tenant in context
func (m *BearerTokenMiddleware) TenantAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		// Check if it's Bearer token
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := m.ParseToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		if claims.UserID != "" {
			c.Set(UserIDKey, claims.UserID)
		}
		c.Next()
	}
}
