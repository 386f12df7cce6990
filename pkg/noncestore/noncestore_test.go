package noncestore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestStoreRecordAndReplay(t *testing.T) {
	store, err := Open("nonces", t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	deviceID := uuid.New()

	if err := store.Record(ctx, "sig-1", deviceID); err != nil {
		t.Fatalf("first Record: %v", err)
	}

	err = store.Record(ctx, "sig-1", deviceID)
	if !errors.Is(err, ErrNonceAlreadyUsed) {
		t.Fatalf("expected ErrNonceAlreadyUsed on replay, got %v", err)
	}
}

func TestStoreRecordDistinctKeys(t *testing.T) {
	store, err := Open("nonces", t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	deviceID := uuid.New()

	if err := store.Record(ctx, "sig-1", deviceID); err != nil {
		t.Fatalf("Record sig-1: %v", err)
	}
	if err := store.Record(ctx, "sig-2", deviceID); err != nil {
		t.Fatalf("Record sig-2 should succeed as a distinct key: %v", err)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	deviceID := uuid.New()

	store, err := Open("nonces", dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(context.Background(), "sig-1", deviceID); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open("nonces", dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	err = reopened.Record(context.Background(), "sig-1", deviceID)
	if !errors.Is(err, ErrNonceAlreadyUsed) {
		t.Fatalf("expected nonce recorded before close to survive reopen, got %v", err)
	}
}
