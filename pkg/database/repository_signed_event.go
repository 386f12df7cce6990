package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the class of error a racing concurrent
// INSERT into a unique index surfaces as.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

// SignedEventRepository handles sigchain append and read operations.
type SignedEventRepository struct {
	client *Client
}

// NewSignedEventRepository creates a new signed event repository.
func NewSignedEventRepository(client *Client) *SignedEventRepository {
	return &SignedEventRepository{client: client}
}

// LastInTx fetches the highest-seqno link for accountID within tx, locking
// the row(s) so a concurrent append to the same chain serializes behind it.
// Returns (nil, nil) when the chain has no events yet.
func (r *SignedEventRepository) LastInTx(ctx context.Context, tx *Tx, accountID uuid.UUID) (*SignedEvent, error) {
	query := `
		SELECT account_id, seqno, event_type, envelope, prev_hash, canonical_bytes_hash, created_at
		FROM signed_events
		WHERE account_id = $1
		ORDER BY seqno DESC
		LIMIT 1
		FOR UPDATE`

	event := &SignedEvent{}
	err := tx.Tx().QueryRowContext(ctx, query, accountID).Scan(
		&event.AccountID, &event.Seqno, &event.EventType, &event.Envelope,
		&event.PrevHash, &event.CanonicalBytesHash, &event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last signed event: %w", err)
	}
	return event, nil
}

// AppendInTx inserts the next link in accountID's chain within tx. Callers
// are responsible for having already validated seqno/prev_hash continuity
// and envelope signature against the prior link returned by LastInTx.
func (r *SignedEventRepository) AppendInTx(ctx context.Context, tx *Tx, event *SignedEvent) error {
	query := `
		INSERT INTO signed_events (account_id, seqno, event_type, envelope, prev_hash, canonical_bytes_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at`

	err := tx.Tx().QueryRowContext(ctx, query,
		event.AccountID, event.Seqno, event.EventType, event.Envelope, event.PrevHash, event.CanonicalBytesHash,
	).Scan(&event.CreatedAt)
	if isUniqueViolation(err) {
		return ErrSeqnoConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append signed event: %w", err)
	}
	return nil
}

// Fetch returns every event for accountID ordered by seqno ascending.
func (r *SignedEventRepository) Fetch(ctx context.Context, accountID uuid.UUID) ([]*SignedEvent, error) {
	query := `
		SELECT account_id, seqno, event_type, envelope, prev_hash, canonical_bytes_hash, created_at
		FROM signed_events
		WHERE account_id = $1
		ORDER BY seqno ASC`

	rows, err := r.client.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signed events: %w", err)
	}
	defer rows.Close()

	var events []*SignedEvent
	for rows.Next() {
		event := &SignedEvent{}
		if err := rows.Scan(
			&event.AccountID, &event.Seqno, &event.EventType, &event.Envelope,
			&event.PrevHash, &event.CanonicalBytesHash, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signed event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
