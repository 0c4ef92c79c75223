package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewSessionToken(t *testing.T) {
	const secret = "test-secret"
	tok, err := NewSessionToken(secret, "ana@example.com", RoleCustomer, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken: %v", err)
	}
	if until := time.Until(tok.Exp); until < 59*time.Minute || until > time.Hour {
		t.Errorf("expiry %v not about an hour out", tok.Exp)
	}

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse issued token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "ana@example.com" || claims["role"] != RoleCustomer {
		t.Errorf("claims = %v", claims)
	}

	if _, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) {
		return []byte("other-secret"), nil
	}); err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("123456", 4) // minimum cost keeps the test fast
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !VerifySecret(hash, "123456") {
		t.Error("correct secret rejected")
	}
	if VerifySecret(hash, "654321") {
		t.Error("wrong secret accepted")
	}
}
