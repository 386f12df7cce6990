package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AccountRepository handles account root-key-record operations.
type AccountRepository struct {
	client *Client
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(client *Client) *AccountRepository {
	return &AccountRepository{client: client}
}

// CreateInTx inserts a new account row within an existing transaction.
// Returns ErrDuplicateUsername if username is already taken.
func (r *AccountRepository) CreateInTx(ctx context.Context, tx *Tx, accountID uuid.UUID, username, rootKID string, rootPubkey []byte) (*Account, error) {
	query := `
		INSERT INTO accounts (account_id, username, root_kid, root_pubkey)
		VALUES ($1, $2, $3, $4)
		RETURNING account_id, username, root_kid, root_pubkey, created_at, root_rotated_at`

	account := &Account{}
	err := tx.Tx().QueryRowContext(ctx, query, accountID, username, rootKID, rootPubkey).Scan(
		&account.AccountID, &account.Username, &account.RootKID, &account.RootPubkey, &account.CreatedAt, &account.RootRotatedAt,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateUsername
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// Get retrieves an account by id.
func (r *AccountRepository) Get(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	query := `
		SELECT account_id, username, root_kid, root_pubkey, created_at, root_rotated_at
		FROM accounts
		WHERE account_id = $1`

	account := &Account{}
	err := r.client.QueryRowContext(ctx, query, accountID).Scan(
		&account.AccountID, &account.Username, &account.RootKID, &account.RootPubkey, &account.CreatedAt, &account.RootRotatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by its normalized (lowercased) username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `
		SELECT account_id, username, root_kid, root_pubkey, created_at, root_rotated_at
		FROM accounts
		WHERE username = $1`

	account := &Account{}
	err := r.client.QueryRowContext(ctx, query, username).Scan(
		&account.AccountID, &account.Username, &account.RootKID, &account.RootPubkey, &account.CreatedAt, &account.RootRotatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// GetForUpdate retrieves an account by id with a row lock held for the
// duration of tx, used to serialize device-count checks and root rotation
// against concurrent mutation of the same account.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *Tx, accountID uuid.UUID) (*Account, error) {
	query := `
		SELECT account_id, username, root_kid, root_pubkey, created_at, root_rotated_at
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE`

	account := &Account{}
	err := tx.Tx().QueryRowContext(ctx, query, accountID).Scan(
		&account.AccountID, &account.Username, &account.RootKID, &account.RootPubkey, &account.CreatedAt, &account.RootRotatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account for update: %w", err)
	}
	return account, nil
}

// RotateRootInTx updates the account's active root key, recording the rotation time.
func (r *AccountRepository) RotateRootInTx(ctx context.Context, tx *Tx, accountID uuid.UUID, newRootKID string, newRootPubkey []byte) error {
	query := `
		UPDATE accounts
		SET root_kid = $2, root_pubkey = $3, root_rotated_at = now()
		WHERE account_id = $1`

	result, err := tx.Tx().ExecContext(ctx, query, accountID, newRootKID, newRootPubkey)
	if err != nil {
		return fmt.Errorf("failed to rotate root key: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}
