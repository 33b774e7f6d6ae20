package auth

import (
	"testing"
	"time"

	"switchboard/internal/platform/config"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "switchboard", AccessTokenTTL: time.Minute})

	token, err := svc.GenerateAccessToken("usr_1", "tenant_1", "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TenantID != "tenant_1" || claims.Role != "admin" || claims.UserID != "usr_1" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "switchboard", AccessTokenTTL: time.Minute})
	other := NewTokenService(config.JWTConfig{Secret: "other-secret", Issuer: "switchboard", AccessTokenTTL: time.Minute})
	expired := NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "switchboard", AccessTokenTTL: -time.Minute})

	wrongKey, _ := other.GenerateAccessToken("u", "t", "admin")
	old, _ := expired.GenerateAccessToken("u", "t", "admin")
	noTenant, _ := svc.GenerateAccessToken("u", "", "admin")

	for name, token := range map[string]string{
		"wrong key": wrongKey,
		"expired":   old,
		"no tenant": noTenant,
		"garbage":   "not-a-jwt",
	} {
		if _, err := svc.ValidateToken(token); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
