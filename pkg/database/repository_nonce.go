package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// NonceRepository records consumed signed-request nonces in Postgres. This
// is one of two interchangeable nonce stores selectable by configuration;
// the other, pkg/noncestore, keeps the same record-once semantics on an
// embedded goleveldb instance for single-node deployments without Postgres
// in the request hot path.
type NonceRepository struct {
	client *Client
}

// NewNonceRepository creates a new nonce repository.
func NewNonceRepository(client *Client) *NonceRepository {
	return &NonceRepository{client: client}
}

// Record inserts nonceKey if and only if it has not been seen before,
// returning ErrNonceAlreadyUsed on replay.
func (r *NonceRepository) Record(ctx context.Context, nonceKey string, deviceID uuid.UUID) error {
	query := `
		INSERT INTO request_nonces (nonce_key, device_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (nonce_key) DO NOTHING
		RETURNING nonce_key`

	var returned string
	err := r.client.QueryRowContext(ctx, query, nonceKey, deviceID).Scan(&returned)
	if err == sql.ErrNoRows {
		return ErrNonceAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("failed to record request nonce: %w", err)
	}
	return nil
}

// PurgeOlderThanSeconds deletes nonce records older than the given age, used
// by a periodic janitor to bound table growth once the replay window they
// protect has definitely closed.
func (r *NonceRepository) PurgeOlderThanSeconds(ctx context.Context, maxAgeSeconds int) (int64, error) {
	query := `DELETE FROM request_nonces WHERE created_at < now() - ($1 || ' seconds')::interval`
	result, err := r.client.ExecContext(ctx, query, maxAgeSeconds)
	if err != nil {
		return 0, fmt.Errorf("failed to purge request nonces: %w", err)
	}
	return result.RowsAffected()
}
