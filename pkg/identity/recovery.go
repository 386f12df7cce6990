package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/idcrypto"
	"github.com/sigil-id/identity/pkg/sigchain"
)

// SetRecoveryPolicyRequest installs a new threshold social recovery policy,
// root-signed, replacing any currently active one.
type SetRecoveryPolicyRequest struct {
	AccountID uuid.UUID
	PolicyID  uuid.UUID
	Envelope  *envelope.SignedEnvelope
}

// SetRecoveryPolicy verifies a root-signed policy payload, revokes any
// existing active policy, and installs the new one, in a single transaction.
func (s *Service) SetRecoveryPolicy(ctx context.Context, req SetRecoveryPolicyRequest) (*database.RecoveryPolicy, *database.SignedEvent, error) {
	var payload recoveryPolicyPayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, nil, err
	}
	if len(payload.Helpers) == 0 || payload.Threshold < 1 || payload.Threshold > len(payload.Helpers) {
		return nil, nil, ErrInvalidThreshold
	}
	if len(payload.Helpers) > s.maxRecoveryHelpers {
		return nil, nil, fmt.Errorf("identity: recovery policy names %d helpers, exceeding the %d limit", len(payload.Helpers), s.maxRecoveryHelpers)
	}
	helpers := make([]database.RecoveryHelper, 0, len(payload.Helpers))
	seen := make(map[uuid.UUID]bool, len(payload.Helpers))
	for _, h := range payload.Helpers {
		id, err := uuid.Parse(h.AccountID)
		if err != nil {
			return nil, nil, fmt.Errorf("identity: helper account_id is not a valid uuid: %w", err)
		}
		if seen[id] {
			return nil, nil, ErrDuplicateHelper
		}
		seen[id] = true
		helpers = append(helpers, database.RecoveryHelper{AccountID: id, HelperRootKID: h.HelperRootKID})
	}
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, nil, err
	}

	var policy *database.RecoveryPolicy
	var event *database.SignedEvent
	err := s.withTx(ctx, func(tx *database.Tx) error {
		account, err := s.repos.Accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return fmt.Errorf("identity: load account: %w", err)
		}
		if req.Envelope.Signer.KID != account.RootKID {
			return ErrSignerMismatch
		}
		if err := verifyEnvelope(req.Envelope, ed25519.PublicKey(account.RootPubkey)); err != nil {
			return err
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadRecoveryPolicySet, req.Envelope, ed25519.PublicKey(account.RootPubkey))
		s.recordAppend(PayloadRecoveryPolicySet, err)
		if err != nil {
			return fmt.Errorf("identity: append recovery policy: %w", err)
		}

		if err := s.repos.Recovery.RevokeActivePolicyInTx(ctx, tx, req.AccountID); err != nil {
			return fmt.Errorf("identity: revoke existing recovery policy: %w", err)
		}
		created, err := s.repos.Recovery.CreatePolicyInTx(ctx, tx, req.PolicyID, req.AccountID, payload.Threshold, helpers)
		if err != nil {
			return fmt.Errorf("identity: create recovery policy: %w", err)
		}

		policy = created
		event = appended
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return policy, event, nil
}

// RevokeRecoveryPolicyRequest revokes an account's active recovery policy
// without installing a replacement.
type RevokeRecoveryPolicyRequest struct {
	AccountID uuid.UUID
	Envelope  *envelope.SignedEnvelope
}

// RevokeRecoveryPolicy verifies a root-signed revocation and clears the
// account's active policy, in a single transaction.
func (s *Service) RevokeRecoveryPolicy(ctx context.Context, req RevokeRecoveryPolicyRequest) (*database.SignedEvent, error) {
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, err
	}

	var event *database.SignedEvent
	err := s.withTx(ctx, func(tx *database.Tx) error {
		account, err := s.repos.Accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return fmt.Errorf("identity: load account: %w", err)
		}
		if req.Envelope.Signer.KID != account.RootKID {
			return ErrSignerMismatch
		}
		if err := verifyEnvelope(req.Envelope, ed25519.PublicKey(account.RootPubkey)); err != nil {
			return err
		}

		if _, err := s.repos.Recovery.GetActivePolicyForUpdateInTx(ctx, tx, req.AccountID); err != nil {
			return err
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadRecoveryPolicyRevoked, req.Envelope, ed25519.PublicKey(account.RootPubkey))
		s.recordAppend(PayloadRecoveryPolicyRevoked, err)
		if err != nil {
			return fmt.Errorf("identity: append recovery policy revocation: %w", err)
		}

		if err := s.repos.Recovery.RevokeActivePolicyInTx(ctx, tx, req.AccountID); err != nil {
			return fmt.Errorf("identity: revoke recovery policy: %w", err)
		}

		event = appended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ApproveRecoveryRequest is a single helper's vote, signed by one of the
// helper account's active devices, toward rotating the target account's
// root key.
type ApproveRecoveryRequest struct {
	AccountID       uuid.UUID // the account being recovered
	HelperAccountID uuid.UUID
	HelperDeviceID  uuid.UUID
	Envelope        *envelope.SignedEnvelope
}

// ApproveRecovery verifies a helper's signed approval against the target
// account's active recovery policy and records it, appended onto the target
// account's own chain, in a single transaction.
func (s *Service) ApproveRecovery(ctx context.Context, req ApproveRecoveryRequest) (*database.RecoveryApproval, *database.SignedEvent, error) {
	var payload recoveryApprovalPayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, nil, err
	}
	newRootPubkey, err := idcrypto.DecodeBase64URL(payload.NewRootPubkey)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: decode new_root_pubkey: %w", err)
	}
	if err := deriveAndCheckKID(ed25519.PublicKey(newRootPubkey), payload.NewRootKID); err != nil {
		return nil, nil, err
	}

	var approval *database.RecoveryApproval
	var event *database.SignedEvent
	err = s.withTx(ctx, func(tx *database.Tx) error {
		policy, err := s.repos.Recovery.GetActivePolicyForUpdateInTx(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if payload.PolicyID != policy.PolicyID.String() {
			return ErrPolicyMismatch
		}

		var helperEntry *database.RecoveryHelper
		for i := range policy.Helpers {
			if policy.Helpers[i].AccountID == req.HelperAccountID {
				helperEntry = &policy.Helpers[i]
				break
			}
		}
		if helperEntry == nil {
			return ErrNotAHelper
		}
		if helperEntry.HelperRootKID != nil {
			helperAccount, err := s.repos.Accounts.Get(ctx, req.HelperAccountID)
			if err != nil {
				return fmt.Errorf("identity: load helper account: %w", err)
			}
			if helperAccount.RootKID != *helperEntry.HelperRootKID {
				return ErrHelperRootKIDPinned
			}
		}

		helperDevice, err := s.repos.Devices.Get(ctx, req.HelperDeviceID)
		if err != nil {
			return fmt.Errorf("identity: load helper device: %w", err)
		}
		if helperDevice.AccountID != req.HelperAccountID {
			return ErrDeviceNotActive
		}
		if !helperDevice.IsActive() {
			return ErrDeviceNotActive
		}
		if req.Envelope.Signer.KID != helperDevice.DeviceKID {
			return ErrSignerMismatch
		}
		if err := verifyEnvelope(req.Envelope, ed25519.PublicKey(helperDevice.DevicePubkey)); err != nil {
			return err
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadRecoveryApproval, req.Envelope, ed25519.PublicKey(helperDevice.DevicePubkey))
		s.recordAppend(PayloadRecoveryApproval, err)
		if err != nil {
			return fmt.Errorf("identity: append recovery approval: %w", err)
		}

		envelopeJSON, err := json.Marshal(req.Envelope)
		if err != nil {
			return fmt.Errorf("identity: marshal approval envelope: %w", err)
		}
		a := &database.RecoveryApproval{
			ApprovalID:    uuid.New(),
			AccountID:     req.AccountID,
			PolicyID:      policy.PolicyID,
			HelperAccount: req.HelperAccountID,
			NewRootKID:    payload.NewRootKID,
			NewRootPubkey: newRootPubkey,
			Envelope:      envelopeJSON,
		}
		if err := s.repos.Recovery.CreateApprovalInTx(ctx, tx, a); err != nil {
			return fmt.Errorf("identity: create recovery approval: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecoveryApprovalsTotal.Inc()
		}

		approval = a
		event = appended
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return approval, event, nil
}

// RotateRootRequest rotates accountID's root key once its active recovery
// policy has gathered enough distinct helper approvals, signed under the new
// root key itself.
type RotateRootRequest struct {
	AccountID uuid.UUID
	Envelope  *envelope.SignedEnvelope
}

// RotateRoot collects the approvals recorded for the account's active
// policy and the rotation target named in the envelope's payload, verifies
// they agree and meet the policy's threshold, verifies the rotation
// envelope's own signature under the new root key, and then rotates the
// account's root key and revokes every active device delegation, all in a
// single transaction.
func (s *Service) RotateRoot(ctx context.Context, req RotateRootRequest) (*database.SignedEvent, error) {
	var payload rootRotationPayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, err
	}
	newRootPubkey, err := idcrypto.DecodeBase64URL(payload.NewRootPubkey)
	if err != nil {
		return nil, fmt.Errorf("identity: decode new_root_pubkey: %w", err)
	}
	if err := deriveAndCheckKID(ed25519.PublicKey(newRootPubkey), payload.NewRootKID); err != nil {
		return nil, err
	}
	if req.Envelope.Signer.KID != payload.NewRootKID {
		return nil, ErrSignerMismatch
	}
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, err
	}

	var event *database.SignedEvent
	err = s.withTx(ctx, func(tx *database.Tx) error {
		policy, err := s.repos.Recovery.GetActivePolicyForUpdateInTx(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if payload.PolicyID != policy.PolicyID.String() {
			return ErrPolicyMismatch
		}

		approvals, err := s.repos.Recovery.ListApprovalsForUpdateInTx(ctx, tx, policy.PolicyID)
		if err != nil {
			return fmt.Errorf("identity: list recovery approvals: %w", err)
		}

		distinctHelpers := make(map[uuid.UUID]bool, len(approvals))
		for _, a := range approvals {
			if a.NewRootKID != payload.NewRootKID || string(a.NewRootPubkey) != string(newRootPubkey) {
				return ErrApprovalTargetMismatch
			}
			distinctHelpers[a.HelperAccount] = true
		}
		if len(distinctHelpers) < policy.Threshold {
			return ErrInsufficientApprovals
		}

		if err := verifyEnvelope(req.Envelope, ed25519.PublicKey(newRootPubkey)); err != nil {
			return err
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadRootRotation, req.Envelope, ed25519.PublicKey(newRootPubkey))
		s.recordAppend(PayloadRootRotation, err)
		if err != nil {
			return fmt.Errorf("identity: append root rotation: %w", err)
		}

		if err := s.repos.Accounts.RotateRootInTx(ctx, tx, req.AccountID, payload.NewRootKID, newRootPubkey); err != nil {
			return fmt.Errorf("identity: rotate root key: %w", err)
		}
		if _, err := s.repos.Devices.RevokeAllActiveInTx(ctx, tx, req.AccountID, appended.Seqno); err != nil {
			return fmt.Errorf("identity: revoke active devices: %w", err)
		}
		if err := s.repos.Recovery.DeleteApprovalsForPolicyInTx(ctx, tx, policy.PolicyID); err != nil {
			return fmt.Errorf("identity: delete stale recovery approvals: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RootRotationsTotal.Inc()
			s.metrics.ActiveDevicesGauge.WithLabelValues(req.AccountID.String()).Set(0)
		}

		event = appended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
