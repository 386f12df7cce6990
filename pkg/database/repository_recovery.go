package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RecoveryRepository handles recovery policy, approval, and rotation bookkeeping.
type RecoveryRepository struct {
	client *Client
}

// NewRecoveryRepository creates a new recovery repository.
func NewRecoveryRepository(client *Client) *RecoveryRepository {
	return &RecoveryRepository{client: client}
}

// GetActivePolicy returns the currently active recovery policy for an account, if any.
func (r *RecoveryRepository) GetActivePolicy(ctx context.Context, accountID uuid.UUID) (*RecoveryPolicy, error) {
	query := `
		SELECT policy_id, account_id, threshold, helpers, created_at, revoked_at
		FROM recovery_policies
		WHERE account_id = $1 AND revoked_at IS NULL`

	return r.scanPolicy(r.client.QueryRowContext(ctx, query, accountID))
}

// GetActivePolicyForUpdateInTx returns the active recovery policy with a row
// lock held for tx, used while collecting approvals and during rotation.
func (r *RecoveryRepository) GetActivePolicyForUpdateInTx(ctx context.Context, tx *Tx, accountID uuid.UUID) (*RecoveryPolicy, error) {
	query := `
		SELECT policy_id, account_id, threshold, helpers, created_at, revoked_at
		FROM recovery_policies
		WHERE account_id = $1 AND revoked_at IS NULL
		FOR UPDATE`

	return r.scanPolicy(tx.Tx().QueryRowContext(ctx, query, accountID))
}

func (r *RecoveryRepository) scanPolicy(row *sql.Row) (*RecoveryPolicy, error) {
	p := &RecoveryPolicy{}
	var helpersRaw []byte
	err := row.Scan(&p.PolicyID, &p.AccountID, &p.Threshold, &helpersRaw, &p.CreatedAt, &p.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecoveryPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery policy: %w", err)
	}
	if err := json.Unmarshal(helpersRaw, &p.Helpers); err != nil {
		return nil, fmt.Errorf("failed to decode recovery policy helpers: %w", err)
	}
	return p, nil
}

// RevokeActivePolicyInTx revokes the account's currently active policy, if
// any, within tx. Called before installing a replacement policy so an
// account only ever has at most one active policy at a time.
func (r *RecoveryRepository) RevokeActivePolicyInTx(ctx context.Context, tx *Tx, accountID uuid.UUID) error {
	query := `
		UPDATE recovery_policies
		SET revoked_at = now()
		WHERE account_id = $1 AND revoked_at IS NULL`

	_, err := tx.Tx().ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke active recovery policy: %w", err)
	}
	return nil
}

// CreatePolicyInTx installs a new recovery policy within tx.
func (r *RecoveryRepository) CreatePolicyInTx(ctx context.Context, tx *Tx, policyID, accountID uuid.UUID, threshold int, helpers []RecoveryHelper) (*RecoveryPolicy, error) {
	helpersRaw, err := json.Marshal(helpers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recovery policy helpers: %w", err)
	}

	query := `
		INSERT INTO recovery_policies (policy_id, account_id, threshold, helpers, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at`

	p := &RecoveryPolicy{PolicyID: policyID, AccountID: accountID, Threshold: threshold, Helpers: helpers}
	err = tx.Tx().QueryRowContext(ctx, query, policyID, accountID, threshold, helpersRaw).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create recovery policy: %w", err)
	}
	return p, nil
}

// CreateApprovalInTx records a single helper's approval toward a rotation
// target within tx. Returns ErrRecoveryApprovalExists if this helper account
// has already approved the same policy (one vote per helper per policy).
func (r *RecoveryRepository) CreateApprovalInTx(ctx context.Context, tx *Tx, approval *RecoveryApproval) error {
	query := `
		INSERT INTO recovery_approvals (approval_id, account_id, policy_id, helper_account, new_root_kid, new_root_pubkey, envelope, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (policy_id, helper_account) DO NOTHING
		RETURNING created_at`

	err := tx.Tx().QueryRowContext(ctx, query,
		approval.ApprovalID, approval.AccountID, approval.PolicyID, approval.HelperAccount,
		approval.NewRootKID, approval.NewRootPubkey, approval.Envelope,
	).Scan(&approval.CreatedAt)
	if err == sql.ErrNoRows {
		return ErrRecoveryApprovalExists
	}
	if err != nil {
		return fmt.Errorf("failed to create recovery approval: %w", err)
	}
	return nil
}

// ListApprovalsForUpdateInTx returns every approval recorded for policyID,
// regardless of the rotation target each one names, locked for the
// duration of tx so a rotation can count distinct helper accounts without a
// concurrent approval slipping in underneath it. Callers must check that
// every returned approval agrees on the rotation target before counting
// toward the threshold — filtering by target here would silently exclude
// disagreeing approvals instead of surfacing the disagreement.
func (r *RecoveryRepository) ListApprovalsForUpdateInTx(ctx context.Context, tx *Tx, policyID uuid.UUID) ([]*RecoveryApproval, error) {
	query := `
		SELECT approval_id, account_id, policy_id, helper_account, new_root_kid, new_root_pubkey, envelope, created_at
		FROM recovery_approvals
		WHERE policy_id = $1
		FOR UPDATE`

	rows, err := tx.Tx().QueryContext(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*RecoveryApproval
	for rows.Next() {
		a := &RecoveryApproval{}
		if err := rows.Scan(
			&a.ApprovalID, &a.AccountID, &a.PolicyID, &a.HelperAccount,
			&a.NewRootKID, &a.NewRootPubkey, &a.Envelope, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recovery approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// DeleteApprovalsForPolicyInTx clears all recorded approvals for a policy,
// called after a successful rotation so stale approvals cannot be replayed
// against a future policy reusing the same new root kid.
func (r *RecoveryRepository) DeleteApprovalsForPolicyInTx(ctx context.Context, tx *Tx, policyID uuid.UUID) error {
	query := `DELETE FROM recovery_approvals WHERE policy_id = $1`
	_, err := tx.Tx().ExecContext(ctx, query, policyID)
	if err != nil {
		return fmt.Errorf("failed to delete recovery approvals: %w", err)
	}
	return nil
}
