package auth

import (
	"cleancycle/internal/entity"
	"errors"
	"testing"
	"time"
)

func TestNewManagerAndTokenLifecycle(t *testing.T) {
	mgr, err := NewManager("test-secret", "issuer", time.Minute*30)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}

	user := &entity.User{ID: "user-42", Email: "user@example.com", Role: entity.UserRoleAdmin, CommunityID: "community-1"}
	token, expiresAt, err := mgr.GenerateToken(user)
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected future expiry time")
	}

	claims, err := mgr.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.UserID != user.ID || claims.Subject != user.ID {
		t.Fatalf("expected user id %s, got uid=%s sub=%s", user.ID, claims.UserID, claims.Subject)
	}
	if claims.Email != user.Email {
		t.Fatalf("expected email %s, got %s", user.Email, claims.Email)
	}
	if claims.Role != user.Role {
		t.Fatalf("expected role %s, got %s", user.Role, claims.Role)
	}
	if claims.CommunityID != "community-1" {
		t.Fatalf("expected community id, got %q", claims.CommunityID)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestGenerateTokenIsUniquePerCall(t *testing.T) {
	mgr, err := NewManager("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	user := &entity.User{ID: "u1", Role: entity.UserRoleUser}

	first, _, err := mgr.GenerateToken(user)
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	second, _, err := mgr.GenerateToken(user)
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens for consecutive logins")
	}
}

func TestNewManagerDefaults(t *testing.T) {
	if _, err := NewManager("   ", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}

	mgr, err := NewManager("secret", "  ", 0)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	if mgr.Expiry() != defaultTokenExpiry {
		t.Fatalf("expected default expiry, got %s", mgr.Expiry())
	}
	if mgr.issuer != "cleancycle" {
		t.Fatalf("expected default issuer, got %q", mgr.issuer)
	}
}

func TestParseTokenErrors(t *testing.T) {
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewManager("secret-a", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	issuer.now = func() time.Time { return base }

	token, _, err := issuer.GenerateToken(&entity.User{ID: "u1", Role: entity.UserRoleUser})
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}

	foreign, _ := NewManager("secret-b", "", time.Hour)
	otherIssuer, _ := NewManager("secret-a", "someone-else", time.Hour)
	later, _ := NewManager("secret-a", "", time.Hour)
	later.now = func() time.Time { return base.Add(2 * time.Hour) }

	tests := []struct {
		name   string
		mgr    *Manager
		token  string
		expect error
	}{
		{name: "不同密钥", mgr: foreign, token: token, expect: ErrTokenInvalid},
		{name: "不同签发方", mgr: otherIssuer, token: token, expect: ErrTokenInvalid},
		{name: "格式错误", mgr: issuer, token: "not-a-jwt", expect: ErrTokenInvalid},
		{name: "已过期", mgr: later, token: token, expect: ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mgr.ParseToken(tt.token)
			if !errors.Is(err, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, err)
			}
		})
	}
}

func TestGenerateTokenRequiresUserID(t *testing.T) {
	mgr, err := NewManager("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	if _, _, err := mgr.GenerateToken(&entity.User{}); err == nil {
		t.Fatal("expected error for user without id")
	}
	if _, _, err := mgr.GenerateToken(nil); err == nil {
		t.Fatal("expected error for nil user")
	}
}
