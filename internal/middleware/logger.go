package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// quietPaths are polled by load balancers or held open by dashboards
var quietPaths = []string{"/api/v1/health", "/api/v1/activity/stream", "/swagger/"}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Logger logs failed requests and every call to the /internal operator routes.
// Query strings are left out; SSE clients pass their token there.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if isQuiet(path) {
			return
		}

		statusCode := c.Writer.Status()
		entry := logrus.WithFields(logrus.Fields{
			"status":     statusCode,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"path":       path,
		})
		if tenantID, ok := c.Get(TenantIDKey); ok {
			entry = entry.WithField("tenant_id", tenantID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		case strings.HasPrefix(path, "/internal/"):
			entry.Info("Operator request")
		}
	}
}
