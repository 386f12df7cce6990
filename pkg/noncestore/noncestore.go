// Package noncestore provides an embedded-database alternative to the
// Postgres-backed request nonce table for single-node deployments that want
// replay protection off the hot path of the primary database connection
// pool. It satisfies the same record-once contract as
// pkg/database.NonceRepository.
package noncestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"
)

// ErrNonceAlreadyUsed is returned when a nonce key has already been recorded.
var ErrNonceAlreadyUsed = errors.New("noncestore: request nonce already used")

// Store records consumed signed-request nonces in an embedded goleveldb
// instance, keyed by the SHA-256 of the request signature.
type Store struct {
	db dbm.DB
}

// Open opens (creating if absent) a goleveldb-backed nonce store at dir.
func Open(name, dir string) (*Store, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("noncestore: failed to open goleveldb: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts nonceKey if and only if it has not been seen before,
// returning ErrNonceAlreadyUsed on replay. deviceID is stored as the value
// so a later audit can attribute a replayed nonce to its device.
func (s *Store) Record(ctx context.Context, nonceKey string, deviceID uuid.UUID) error {
	key := []byte(nonceKey)
	existing, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("noncestore: get failed: %w", err)
	}
	if existing != nil {
		return ErrNonceAlreadyUsed
	}

	record := nonceRecord{DeviceID: deviceID, RecordedAt: time.Now().UTC()}
	value, err := record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("noncestore: encode record: %w", err)
	}

	if err := s.db.SetSync(key, value); err != nil {
		return fmt.Errorf("noncestore: set failed: %w", err)
	}
	return nil
}

type nonceRecord struct {
	DeviceID   uuid.UUID
	RecordedAt time.Time
}

// MarshalBinary encodes the record as the 16 device id bytes followed by
// the recording time in time.Time's own binary encoding, a compact layout
// suited to a KV value.
func (r nonceRecord) MarshalBinary() ([]byte, error) {
	ts, err := r.RecordedAt.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 16+len(ts))
	out = append(out, r.DeviceID[:]...)
	out = append(out, ts...)
	return out, nil
}
