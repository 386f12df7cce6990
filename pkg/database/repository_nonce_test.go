package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
)

func TestNonceRepositoryRecordAndReplay(t *testing.T) {
	client := testClient(t)
	nonces := database.NewNonceRepository(client)
	ctx := context.Background()

	accountID, deviceID := createTestAccountAndDevice(t, client)
	_ = accountID

	if err := nonces.Record(ctx, "sig-abc", deviceID); err != nil {
		t.Fatalf("first Record: %v", err)
	}

	err := nonces.Record(ctx, "sig-abc", deviceID)
	if !errors.Is(err, database.ErrNonceAlreadyUsed) {
		t.Fatalf("expected ErrNonceAlreadyUsed on replay, got %v", err)
	}
}

func TestNonceRepositoryDistinctKeys(t *testing.T) {
	client := testClient(t)
	nonces := database.NewNonceRepository(client)
	ctx := context.Background()

	_, deviceID := createTestAccountAndDevice(t, client)

	if err := nonces.Record(ctx, "sig-1", deviceID); err != nil {
		t.Fatalf("Record sig-1: %v", err)
	}
	if err := nonces.Record(ctx, "sig-2", deviceID); err != nil {
		t.Fatalf("Record sig-2 should succeed as a distinct key: %v", err)
	}
}
