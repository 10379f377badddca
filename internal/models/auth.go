package models

import "github.com/golang-jwt/jwt/v5"

// TenantClaims are the claims this service reads from a bearer token.
// Tokens are issued by the identity service; this service only verifies them.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}
