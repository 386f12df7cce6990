package session

import (
	"testing"
	"time"
)

func TestStateStorePutTake(t *testing.T) {
	store := newStateStore(10 * time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Put("state-1", "verifier-1", now)

	verifier, ok := store.Take("state-1", now.Add(time.Minute))
	if !ok {
		t.Fatal("Take returned ok=false, want true")
	}
	if verifier != "verifier-1" {
		t.Errorf("verifier = %q, want verifier-1", verifier)
	}

	// Take removes the entry; a second Take must miss.
	if _, ok := store.Take("state-1", now.Add(time.Minute)); ok {
		t.Fatal("second Take returned ok=true, want false")
	}
}

func TestStateStoreExpiry(t *testing.T) {
	store := newStateStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Put("state-1", "verifier-1", now)

	if _, ok := store.Take("state-1", now.Add(2*time.Minute)); ok {
		t.Fatal("Take of expired entry returned ok=true, want false")
	}
}

func TestStateStoreUnknownState(t *testing.T) {
	store := newStateStore(time.Minute)
	if _, ok := store.Take("nonexistent", time.Now()); ok {
		t.Fatal("Take of unknown state returned ok=true, want false")
	}
}
