package auth

import (
	"strings"
	"testing"
	"time"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), 15*time.Minute)

	token, err := svc.GenerateToken("user-1", "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("user id = %q, want user-1", claims.UserID)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
}

func TestJWTService_WrongSecret(t *testing.T) {
	svc := NewJWTService([]byte("secret-a"), 15*time.Minute)
	other := NewJWTService([]byte("secret-b"), 15*time.Minute)

	token, err := svc.GenerateToken("user-1", "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("token signed with a different secret must not validate")
	}
}

func TestJWTService_Expired(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), -time.Minute)

	token, err := svc.GenerateToken("user-1", "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expired token must not validate")
	}
}

func TestJWTService_Garbage(t *testing.T) {
	svc := NewJWTService([]byte("test-secret"), 15*time.Minute)

	for _, tok := range []string{"", "not.a.token", strings.Repeat("x", 400)} {
		if _, err := svc.ValidateToken(tok); err == nil {
			t.Errorf("garbage token %q must not validate", tok)
		}
	}
}
