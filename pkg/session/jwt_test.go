package session

import (
	"testing"
	"time"
)

func TestTokenIssuerIssueAndVerify(t *testing.T) {
	issuer := newTokenIssuer("a-secret-at-least-32-bytes-long!", 15*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	token, expiresAt, err := issuer.issue("user-1", "alice@example.com", "account-1", "google", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("expiresAt = %v, want %v", expiresAt, now.Add(15*time.Minute))
	}

	claims, err := issuer.verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", claims.Email)
	}
	if claims.AccountID != "account-1" {
		t.Errorf("AccountID = %q, want account-1", claims.AccountID)
	}
	if claims.Provider != "google" {
		t.Errorf("Provider = %q, want google", claims.Provider)
	}
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	issuer := newTokenIssuer("a-secret-at-least-32-bytes-long!", time.Minute)
	token, _, err := issuer.issue("user-1", "alice@example.com", "", "google", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := newTokenIssuer("a-different-secret-32-bytes-long", time.Minute)
	if _, err := other.verify(token); err == nil {
		t.Fatal("verify with wrong secret succeeded, want error")
	}
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	issuer := newTokenIssuer("a-secret-at-least-32-bytes-long!", time.Minute)
	past := time.Now().Add(-time.Hour)
	token, _, err := issuer.issue("user-1", "alice@example.com", "", "google", past)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := issuer.verify(token); err == nil {
		t.Fatal("verify of expired token succeeded, want error")
	}
}
