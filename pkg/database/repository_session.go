package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SessionRepository handles the login-bootstrap identity tables: users and
// their linked federated-login identities. This is distinct from the
// sigchain Account — a User exists once someone has logged in via Google
// OAuth or Firebase, and gains an AccountID only once they create or link a
// sigchain identity.
type SessionRepository struct {
	client *Client
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// GetOrCreateUserByEmail returns the user for email, creating one if absent.
func (r *SessionRepository) GetOrCreateUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		INSERT INTO users (user_id, email, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING user_id, email, account_id, created_at`

	u := &User{}
	err := r.client.QueryRowContext(ctx, query, uuid.New(), email).Scan(&u.UserID, &u.Email, &u.AccountID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}
	return u, nil
}

// LinkAccount associates a sigchain account with a user, allowing a logged
// in session to act on behalf of that account thereafter.
func (r *SessionRepository) LinkAccount(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) error {
	query := `UPDATE users SET account_id = $2 WHERE user_id = $1`
	result, err := r.client.ExecContext(ctx, query, userID, accountID.String())
	if err != nil {
		return fmt.Errorf("failed to link account to user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUser retrieves a user by id.
func (r *SessionRepository) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	query := `SELECT user_id, email, account_id, created_at FROM users WHERE user_id = $1`

	u := &User{}
	err := r.client.QueryRowContext(ctx, query, userID).Scan(&u.UserID, &u.Email, &u.AccountID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpsertOAuthIdentity links a federated (provider, provider_id) pair to
// userID, returning the existing row if that identity is already linked.
func (r *SessionRepository) UpsertOAuthIdentity(ctx context.Context, userID uuid.UUID, provider, providerID string) (*OAuthIdentity, error) {
	query := `
		INSERT INTO oauth_identities (id, user_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (provider, provider_id) DO UPDATE SET provider = EXCLUDED.provider
		RETURNING id, user_id, provider, provider_id, created_at`

	oi := &OAuthIdentity{}
	err := r.client.QueryRowContext(ctx, query, uuid.New(), userID, provider, providerID).Scan(
		&oi.ID, &oi.UserID, &oi.Provider, &oi.ProviderID, &oi.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert oauth identity: %w", err)
	}
	return oi, nil
}

// GetOAuthIdentity looks up a previously linked federated identity.
func (r *SessionRepository) GetOAuthIdentity(ctx context.Context, provider, providerID string) (*OAuthIdentity, error) {
	query := `
		SELECT id, user_id, provider, provider_id, created_at
		FROM oauth_identities
		WHERE provider = $1 AND provider_id = $2`

	oi := &OAuthIdentity{}
	err := r.client.QueryRowContext(ctx, query, provider, providerID).Scan(
		&oi.ID, &oi.UserID, &oi.Provider, &oi.ProviderID, &oi.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOAuthIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth identity: %w", err)
	}
	return oi, nil
}
