package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
)

func TestSessionRepositoryGetOrCreateUserByEmail(t *testing.T) {
	client := testClient(t)
	sessions := database.NewSessionRepository(client)
	ctx := context.Background()

	email := fmt.Sprintf("user-%s@example.test", uuid.New())

	created, err := sessions.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail: %v", err)
	}
	if created.Email != email {
		t.Errorf("expected email %q, got %q", email, created.Email)
	}
	if created.AccountID.Valid {
		t.Error("expected a freshly created user to have no linked account")
	}

	again, err := sessions.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail (second call): %v", err)
	}
	if again.UserID != created.UserID {
		t.Error("expected a second call for the same email to return the same user")
	}
}

func TestSessionRepositoryLinkAccount(t *testing.T) {
	client := testClient(t)
	sessions := database.NewSessionRepository(client)
	ctx := context.Background()

	email := fmt.Sprintf("user-%s@example.test", uuid.New())
	user, err := sessions.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail: %v", err)
	}

	accountID, _ := createTestAccountAndDevice(t, client)

	if err := sessions.LinkAccount(ctx, user.UserID, accountID); err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	linked, err := sessions.GetUser(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !linked.AccountID.Valid || linked.AccountID.String != accountID.String() {
		t.Errorf("expected linked account %s, got %+v", accountID, linked.AccountID)
	}
}

func TestSessionRepositoryLinkAccountUnknownUser(t *testing.T) {
	client := testClient(t)
	sessions := database.NewSessionRepository(client)

	err := sessions.LinkAccount(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, database.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionRepositoryGetUserNotFound(t *testing.T) {
	client := testClient(t)
	sessions := database.NewSessionRepository(client)

	_, err := sessions.GetUser(context.Background(), uuid.New())
	if !errors.Is(err, database.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionRepositoryUpsertAndGetOAuthIdentity(t *testing.T) {
	client := testClient(t)
	sessions := database.NewSessionRepository(client)
	ctx := context.Background()

	email := fmt.Sprintf("user-%s@example.test", uuid.New())
	user, err := sessions.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail: %v", err)
	}

	providerID := uuid.New().String()
	created, err := sessions.UpsertOAuthIdentity(ctx, user.UserID, "google", providerID)
	if err != nil {
		t.Fatalf("UpsertOAuthIdentity: %v", err)
	}
	if created.UserID != user.UserID {
		t.Errorf("expected identity linked to user %s, got %s", user.UserID, created.UserID)
	}

	found, err := sessions.GetOAuthIdentity(ctx, "google", providerID)
	if err != nil {
		t.Fatalf("GetOAuthIdentity: %v", err)
	}
	if found.UserID != user.UserID {
		t.Errorf("expected user %s, got %s", user.UserID, found.UserID)
	}

	_, err = sessions.GetOAuthIdentity(ctx, "google", "nonexistent-"+time.Now().String())
	if !errors.Is(err, database.ErrOAuthIdentityNotFound) {
		t.Fatalf("expected ErrOAuthIdentityNotFound, got %v", err)
	}
}
