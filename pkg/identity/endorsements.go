package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/sigchain"
)

// SubjectAccount is the subject_type that drives reputation recomputation;
// endorsements of any other subject_type only update their own aggregate.
const SubjectAccount = "account"

// Reputation topics folded into the account reputation score.
const (
	TopicTrustworthy  = "trustworthy"
	TopicIsRealPerson = "is_real_person"
)

// CreateEndorsementRequest is a device-signed endorsement of a subject on a topic.
type CreateEndorsementRequest struct {
	AccountID     uuid.UUID
	DeviceID      uuid.UUID
	EndorsementID uuid.UUID
	Envelope      *envelope.SignedEnvelope
}

// CreateEndorsement verifies a device-signed endorsement, appends it, and
// recomputes the affected aggregate (and, for account subjects, the
// subject's reputation score) in a single transaction.
func (s *Service) CreateEndorsement(ctx context.Context, req CreateEndorsementRequest) (*database.Endorsement, *database.SignedEvent, error) {
	var payload endorsementPayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, nil, err
	}
	if payload.Magnitude < -1 || payload.Magnitude > 1 {
		return nil, nil, ErrInvalidMagnitude
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, nil, ErrInvalidConfidence
	}
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, nil, err
	}

	var endorsement *database.Endorsement
	var event *database.SignedEvent
	err := s.withTx(ctx, func(tx *database.Tx) error {
		device, account, err := s.loadActiveDeviceInTx(ctx, tx, req.AccountID, req.DeviceID, req.Envelope)
		if err != nil {
			return err
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadEndorsementCreated, req.Envelope, ed25519.PublicKey(device.DevicePubkey))
		s.recordAppend(PayloadEndorsementCreated, err)
		if err != nil {
			return fmt.Errorf("identity: append endorsement: %w", err)
		}
		_ = account

		e := &database.Endorsement{
			EndorsementID: req.EndorsementID,
			AccountID:     req.AccountID,
			DeviceID:      req.DeviceID,
			SubjectType:   payload.SubjectType,
			SubjectID:     payload.SubjectID,
			Topic:         payload.Topic,
			Magnitude:     payload.Magnitude,
			Confidence:    payload.Confidence,
		}
		if err := s.repos.Endorsements.CreateInTx(ctx, tx, e); err != nil {
			return fmt.Errorf("identity: create endorsement: %w", err)
		}

		if _, err := s.repos.Endorsements.RecomputeAggregateInTx(ctx, tx, payload.SubjectType, payload.SubjectID, payload.Topic); err != nil {
			return fmt.Errorf("identity: recompute aggregate: %w", err)
		}
		if payload.SubjectType == SubjectAccount {
			subjectAccountID, err := uuid.Parse(payload.SubjectID)
			if err != nil {
				return fmt.Errorf("identity: endorsement subject_id is not a valid account id: %w", err)
			}
			if err := s.recomputeReputationInTx(ctx, tx, subjectAccountID); err != nil {
				return err
			}
		}

		if s.metrics != nil {
			s.metrics.EndorsementsCreatedTotal.Inc()
		}

		endorsement = e
		event = appended
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return endorsement, event, nil
}

// RevokeEndorsementRequest revokes a previously created endorsement, which
// must have been authored by the claimed device.
type RevokeEndorsementRequest struct {
	AccountID     uuid.UUID
	DeviceID      uuid.UUID
	EndorsementID uuid.UUID
	Envelope      *envelope.SignedEnvelope
}

// RevokeEndorsement verifies a device-signed revocation, appends it, revokes
// the endorsement, and recomputes its aggregate (and reputation, if
// applicable) in a single transaction.
func (s *Service) RevokeEndorsement(ctx context.Context, req RevokeEndorsementRequest) (*database.SignedEvent, error) {
	var payload endorsementRevocationPayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, err
	}
	if payload.EndorsementID != req.EndorsementID.String() {
		return nil, fmt.Errorf("identity: payload endorsement_id does not match provided endorsement id")
	}
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, err
	}

	var event *database.SignedEvent
	err := s.withTx(ctx, func(tx *database.Tx) error {
		device, _, err := s.loadActiveDeviceInTx(ctx, tx, req.AccountID, req.DeviceID, req.Envelope)
		if err != nil {
			return err
		}

		existing, err := s.repos.Endorsements.GetForUpdateInTx(ctx, tx, req.EndorsementID)
		if err != nil {
			return fmt.Errorf("identity: load endorsement: %w", err)
		}
		if existing.DeviceID != req.DeviceID {
			return ErrEndorsementNotOwned
		}
		if !existing.IsActive() {
			return database.ErrConflict
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadEndorsementRevocation, req.Envelope, ed25519.PublicKey(device.DevicePubkey))
		s.recordAppend(PayloadEndorsementRevocation, err)
		if err != nil {
			return fmt.Errorf("identity: append endorsement revocation: %w", err)
		}

		if err := s.repos.Endorsements.RevokeInTx(ctx, tx, req.EndorsementID); err != nil {
			return fmt.Errorf("identity: revoke endorsement: %w", err)
		}

		if _, err := s.repos.Endorsements.RecomputeAggregateInTx(ctx, tx, existing.SubjectType, existing.SubjectID, existing.Topic); err != nil {
			return fmt.Errorf("identity: recompute aggregate: %w", err)
		}
		if existing.SubjectType == SubjectAccount {
			subjectAccountID, err := uuid.Parse(existing.SubjectID)
			if err != nil {
				return fmt.Errorf("identity: endorsement subject_id is not a valid account id: %w", err)
			}
			if err := s.recomputeReputationInTx(ctx, tx, subjectAccountID); err != nil {
				return err
			}
		}

		if s.metrics != nil {
			s.metrics.EndorsementsRevokedTotal.Inc()
		}

		event = appended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// loadActiveDeviceInTx locks in the account/device pair named by the
// request, verifies the envelope was signed by that device's current key,
// and confirms the delegation is active.
func (s *Service) loadActiveDeviceInTx(ctx context.Context, tx *database.Tx, accountID, deviceID uuid.UUID, env *envelope.SignedEnvelope) (*database.Device, *database.Account, error) {
	account, err := s.repos.Accounts.Get(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: load account: %w", err)
	}
	device, err := s.repos.Devices.Get(ctx, deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: load device: %w", err)
	}
	if device.AccountID != accountID {
		return nil, nil, ErrDeviceNotActive
	}
	if !device.IsActive() {
		return nil, nil, ErrDeviceNotActive
	}
	if env.Signer.KID != device.DeviceKID {
		return nil, nil, ErrSignerMismatch
	}
	if err := verifyEnvelope(env, ed25519.PublicKey(device.DevicePubkey)); err != nil {
		return nil, nil, err
	}
	return device, account, nil
}

// recomputeReputationInTx folds the account's "trustworthy" and
// "is_real_person" endorsement aggregates into a single [0,1] reputation
// score: 0.5 plus a quarter of each topic's clamped weighted mean, skipping
// a topic entirely if it has no aggregate yet.
func (s *Service) recomputeReputationInTx(ctx context.Context, tx *database.Tx, accountID uuid.UUID) error {
	score := 0.5
	for _, topic := range []string{TopicTrustworthy, TopicIsRealPerson} {
		agg, err := s.repos.Endorsements.GetAggregateInTx(ctx, tx, SubjectAccount, accountID.String(), topic)
		if err != nil {
			if errors.Is(err, database.ErrAggregateNotFound) {
				continue
			}
			return fmt.Errorf("identity: load %s aggregate: %w", topic, err)
		}
		if !agg.WeightedMean.Valid {
			continue
		}
		score += 0.25 * clamp(agg.WeightedMean.Float64, -1, 1)
	}
	score = clamp(score, 0, 1)

	if err := s.repos.Endorsements.UpsertReputationInTx(ctx, tx, accountID, score); err != nil {
		return fmt.Errorf("identity: upsert reputation: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ReputationRecomputedTotal.Inc()
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
