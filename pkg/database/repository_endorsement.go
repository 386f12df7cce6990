package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// EndorsementRepository handles endorsement records and their derived
// aggregate/reputation projections.
type EndorsementRepository struct {
	client *Client
}

// NewEndorsementRepository creates a new endorsement repository.
func NewEndorsementRepository(client *Client) *EndorsementRepository {
	return &EndorsementRepository{client: client}
}

// CreateInTx inserts a new endorsement row within tx.
func (r *EndorsementRepository) CreateInTx(ctx context.Context, tx *Tx, e *Endorsement) error {
	query := `
		INSERT INTO endorsements (endorsement_id, account_id, device_id, subject_type, subject_id, topic, magnitude, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at`

	err := tx.Tx().QueryRowContext(ctx, query,
		e.EndorsementID, e.AccountID, e.DeviceID, e.SubjectType, e.SubjectID, e.Topic, e.Magnitude, e.Confidence,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create endorsement: %w", err)
	}
	return nil
}

// Get retrieves an endorsement by id.
func (r *EndorsementRepository) Get(ctx context.Context, endorsementID uuid.UUID) (*Endorsement, error) {
	query := `
		SELECT endorsement_id, account_id, device_id, subject_type, subject_id, topic, magnitude, confidence, created_at, revoked_at
		FROM endorsements
		WHERE endorsement_id = $1`

	e := &Endorsement{}
	err := r.client.QueryRowContext(ctx, query, endorsementID).Scan(
		&e.EndorsementID, &e.AccountID, &e.DeviceID, &e.SubjectType, &e.SubjectID, &e.Topic, &e.Magnitude, &e.Confidence,
		&e.CreatedAt, &e.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEndorsementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endorsement: %w", err)
	}
	return e, nil
}

// GetForUpdateInTx retrieves an endorsement with a row lock, used before revocation.
func (r *EndorsementRepository) GetForUpdateInTx(ctx context.Context, tx *Tx, endorsementID uuid.UUID) (*Endorsement, error) {
	query := `
		SELECT endorsement_id, account_id, device_id, subject_type, subject_id, topic, magnitude, confidence, created_at, revoked_at
		FROM endorsements
		WHERE endorsement_id = $1
		FOR UPDATE`

	e := &Endorsement{}
	err := tx.Tx().QueryRowContext(ctx, query, endorsementID).Scan(
		&e.EndorsementID, &e.AccountID, &e.DeviceID, &e.SubjectType, &e.SubjectID, &e.Topic, &e.Magnitude, &e.Confidence,
		&e.CreatedAt, &e.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEndorsementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endorsement for update: %w", err)
	}
	return e, nil
}

// RevokeInTx marks an endorsement revoked within tx.
func (r *EndorsementRepository) RevokeInTx(ctx context.Context, tx *Tx, endorsementID uuid.UUID) error {
	query := `UPDATE endorsements SET revoked_at = now() WHERE endorsement_id = $1 AND revoked_at IS NULL`
	result, err := tx.Tx().ExecContext(ctx, query, endorsementID)
	if err != nil {
		return fmt.Errorf("failed to revoke endorsement: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

// RecomputeAggregateInTx recomputes and upserts the (subject_type, subject_id,
// topic) aggregate from the current set of active (non-revoked) endorsements
// for that subject/topic, within tx.
func (r *EndorsementRepository) RecomputeAggregateInTx(ctx context.Context, tx *Tx, subjectType, subjectID, topic string) (*EndorsementAggregate, error) {
	query := `
		INSERT INTO endorsement_aggregates (subject_type, subject_id, topic, n_total, n_pos, n_neg, sum_weight, weighted_mean, updated_at)
		SELECT
			$1, $2, $3,
			COUNT(*),
			COUNT(*) FILTER (WHERE magnitude > 0),
			COUNT(*) FILTER (WHERE magnitude < 0),
			COALESCE(SUM(confidence), 0),
			CASE WHEN SUM(confidence) > 0
				THEN SUM(magnitude * confidence) / SUM(confidence)
				ELSE NULL
			END,
			now()
		FROM endorsements
		WHERE subject_type = $1 AND subject_id = $2 AND topic = $3 AND revoked_at IS NULL
		ON CONFLICT (subject_type, subject_id, topic) DO UPDATE SET
			n_total = EXCLUDED.n_total,
			n_pos = EXCLUDED.n_pos,
			n_neg = EXCLUDED.n_neg,
			sum_weight = EXCLUDED.sum_weight,
			weighted_mean = EXCLUDED.weighted_mean,
			updated_at = EXCLUDED.updated_at
		RETURNING subject_type, subject_id, topic, n_total, n_pos, n_neg, sum_weight, weighted_mean, updated_at`

	agg := &EndorsementAggregate{}
	err := tx.Tx().QueryRowContext(ctx, query, subjectType, subjectID, topic).Scan(
		&agg.SubjectType, &agg.SubjectID, &agg.Topic, &agg.NTotal, &agg.NPos, &agg.NNeg, &agg.SumWeight, &agg.WeightedMean, &agg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute endorsement aggregate: %w", err)
	}
	return agg, nil
}

// GetAggregate retrieves a (subject_type, subject_id, topic) aggregate.
func (r *EndorsementRepository) GetAggregate(ctx context.Context, subjectType, subjectID, topic string) (*EndorsementAggregate, error) {
	query := `
		SELECT subject_type, subject_id, topic, n_total, n_pos, n_neg, sum_weight, weighted_mean, updated_at
		FROM endorsement_aggregates
		WHERE subject_type = $1 AND subject_id = $2 AND topic = $3`

	agg := &EndorsementAggregate{}
	err := r.client.QueryRowContext(ctx, query, subjectType, subjectID, topic).Scan(
		&agg.SubjectType, &agg.SubjectID, &agg.Topic, &agg.NTotal, &agg.NPos, &agg.NNeg, &agg.SumWeight, &agg.WeightedMean, &agg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endorsement aggregate: %w", err)
	}
	return agg, nil
}

// GetAggregateInTx is GetAggregate scoped to tx, used when recomputing reputation
// immediately after an aggregate write in the same transaction.
func (r *EndorsementRepository) GetAggregateInTx(ctx context.Context, tx *Tx, subjectType, subjectID, topic string) (*EndorsementAggregate, error) {
	query := `
		SELECT subject_type, subject_id, topic, n_total, n_pos, n_neg, sum_weight, weighted_mean, updated_at
		FROM endorsement_aggregates
		WHERE subject_type = $1 AND subject_id = $2 AND topic = $3`

	agg := &EndorsementAggregate{}
	err := tx.Tx().QueryRowContext(ctx, query, subjectType, subjectID, topic).Scan(
		&agg.SubjectType, &agg.SubjectID, &agg.Topic, &agg.NTotal, &agg.NPos, &agg.NNeg, &agg.SumWeight, &agg.WeightedMean, &agg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endorsement aggregate in tx: %w", err)
	}
	return agg, nil
}

// UpsertReputationInTx writes a recomputed reputation score for accountID within tx.
func (r *EndorsementRepository) UpsertReputationInTx(ctx context.Context, tx *Tx, accountID uuid.UUID, score float64) error {
	query := `
		INSERT INTO reputation_scores (account_id, score, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`

	_, err := tx.Tx().ExecContext(ctx, query, accountID, score)
	if err != nil {
		return fmt.Errorf("failed to upsert reputation score: %w", err)
	}
	return nil
}

// GetReputation retrieves the reputation score for an account.
func (r *EndorsementRepository) GetReputation(ctx context.Context, accountID uuid.UUID) (*ReputationScore, error) {
	query := `SELECT account_id, score, updated_at FROM reputation_scores WHERE account_id = $1`

	score := &ReputationScore{}
	err := r.client.QueryRowContext(ctx, query, accountID).Scan(&score.AccountID, &score.Score, &score.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrReputationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation score: %w", err)
	}
	return score, nil
}
