package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

const (
	testSecret = "test-secret"
	tenantID   = "eeeeeeee-0000-0000-0000-000000000001"
)

func signToken(t *testing.T, secret string, claims models.TenantClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func validClaims() models.TenantClaims {
	return models.TenantClaims{
		TenantID: tenantID,
		UserID:   "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParseToken(t *testing.T) {
	m := NewBearerTokenMiddleware(testSecret)

	claims, err := m.ParseToken(signToken(t, testSecret, validClaims()))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.TenantID != tenantID {
		t.Errorf("TenantID = %q", claims.TenantID)
	}

	if _, err := m.ParseToken(signToken(t, "other-secret", validClaims())); err == nil {
		t.Error("token signed with another secret should fail")
	}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	if _, err := m.ParseToken(signToken(t, testSecret, expired)); err == nil {
		t.Error("expired token should fail")
	}

	noTenant := validClaims()
	noTenant.TenantID = "acme"
	if _, err := m.ParseToken(signToken(t, testSecret, noTenant)); err == nil {
		t.Error("token without a uuid tenant should fail")
	}
}

func TestTenantAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", NewBearerTokenMiddleware(testSecret).TenantAuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, "%s", c.GetString(TenantIDKey))
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, validClaims()), http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.status)
		}
		if tt.status == http.StatusOK && w.Body.String() != tenantID {
			t.Errorf("%s: tenant = %q", tt.name, w.Body.String())
		}
	}
}

func TestTriggerKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	newRouter := func(keyHash string) *gin.Engine {
		r := gin.New()
		r.POST("/internal/sweep", NewTriggerKeyMiddleware(keyHash).TriggerKeyAuthMiddleware(), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		return r
	}

	tests := []struct {
		name    string
		keyHash string
		key     string
		status  int
	}{
		{"unconfigured", "", "s3cret", http.StatusServiceUnavailable},
		{"missing header", string(hash), "", http.StatusUnauthorized},
		{"wrong key", string(hash), "guess", http.StatusUnauthorized},
		{"valid", string(hash), "s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
		if tt.key != "" {
			req.Header.Set(TriggerKeyHeader, tt.key)
		}
		w := httptest.NewRecorder()
		newRouter(tt.keyHash).ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.status)
		}
	}
}
