package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TriggerKeyHeader carries the key of the external scheduler
const TriggerKeyHeader = "X-Trigger-Key"

// TriggerKeyMiddleware guards the /internal routes called by the external scheduler
type TriggerKeyMiddleware struct {
	keyHash []byte
}

// NewTriggerKeyMiddleware takes the bcrypt hash of the shared key. An empty hash rejects every call.
func NewTriggerKeyMiddleware(keyHash string) *TriggerKeyMiddleware {
	return &TriggerKeyMiddleware{keyHash: []byte(strings.TrimSpace(keyHash))}
}

// TriggerKeyAuthMiddleware validates the X-Trigger-Key header
func (m *TriggerKeyMiddleware) TriggerKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.keyHash) == 0 {
			logrus.Warn("Internal route called but TRIGGER_KEY_HASH is not configured")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Internal routes are disabled"})
			c.Abort()
			return
		}

		key := c.GetHeader(TriggerKeyHeader)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": TriggerKeyHeader + " header is required"})
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(key)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid trigger key"})
			c.Abort()
			return
		}

		c.Set("auth_type", "trigger_key")
		c.Next()
	}
}
