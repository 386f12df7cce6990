package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// BackupRepository stores sealed backup envelopes for account root key material.
type BackupRepository struct {
	client *Client
}

// NewBackupRepository creates a new backup repository.
func NewBackupRepository(client *Client) *BackupRepository {
	return &BackupRepository{client: client}
}

// CreateInTx inserts a sealed backup envelope within tx, used during account
// creation so the backup commit shares the signup transaction.
func (r *BackupRepository) CreateInTx(ctx context.Context, tx *Tx, backupID, accountID uuid.UUID, envelope []byte) error {
	query := `
		INSERT INTO account_backups (backup_id, account_id, envelope, created_at)
		VALUES ($1, $2, $3, now())`

	_, err := tx.Tx().ExecContext(ctx, query, backupID, accountID, envelope)
	if err != nil {
		return fmt.Errorf("failed to create account backup: %w", err)
	}
	return nil
}

// GetLatest returns the most recently created backup envelope for an account.
func (r *BackupRepository) GetLatest(ctx context.Context, accountID uuid.UUID) (*AccountBackup, error) {
	query := `
		SELECT backup_id, account_id, envelope, created_at
		FROM account_backups
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	b := &AccountBackup{}
	err := r.client.QueryRowContext(ctx, query, accountID).Scan(&b.BackupID, &b.AccountID, &b.Envelope, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account backup: %w", err)
	}
	return b, nil
}
