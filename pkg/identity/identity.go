// Package identity implements the account state machine: signup, device
// delegation, endorsements, and threshold social recovery, each composed
// from a sigchain append and its current-state projection committed in a
// single transaction. The two-transaction split present in the system this
// package is modeled on — sigchain append and projection write issued as
// separate round trips — left a window where a crash between the two could
// strand an account with a chain link but no matching projection row (or
// vice versa); every operation here closes that window by doing both under
// one *database.Tx.
package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/config"
	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/idcrypto"
	"github.com/sigil-id/identity/pkg/metrics"
)

// Payload type identifiers carried in SignedEnvelope.PayloadType.
const (
	PayloadAccountCreated          = "AccountCreated"
	PayloadDeviceDelegation        = "DeviceDelegation"
	PayloadDeviceRevocation        = "DeviceRevocation"
	PayloadEndorsementCreated      = "EndorsementCreated"
	PayloadEndorsementRevocation   = "EndorsementRevocation"
	PayloadRecoveryPolicySet       = "RecoveryPolicySet"
	PayloadRecoveryPolicyRevoked   = "RecoveryPolicyRevocation"
	PayloadRecoveryApproval        = "RecoveryApproval"
	PayloadRootRotation            = "RootRotation"
)

// DefaultMaxActiveDevices bounds the number of concurrently delegated
// devices an account may have, absent an overriding config.Config.
const DefaultMaxActiveDevices = 10

// DefaultMaxRecoveryHelpers bounds the number of helpers a single recovery
// policy may list, absent an overriding config.Config.
const DefaultMaxRecoveryHelpers = 10

var (
	ErrInvalidUsername       = errors.New("identity: username must be nonempty after normalization")
	ErrInvalidEnvelope       = errors.New("identity: envelope failed verification")
	ErrSignerMismatch        = errors.New("identity: envelope signer does not match expected key")
	ErrAccountIDMismatch     = errors.New("identity: payload account_id does not match target account")
	ErrDeviceLimitExceeded   = errors.New("identity: account already has the maximum number of active devices")
	ErrDeviceAlreadyExists   = errors.New("identity: device kid is already delegated")
	ErrDeviceNotActive       = errors.New("identity: device is not an active delegation for this account")
	ErrDeviceAlreadyRevoked  = errors.New("identity: device is already revoked")
	ErrInvalidMagnitude      = errors.New("identity: magnitude must be within [-1, 1]")
	ErrInvalidConfidence     = errors.New("identity: confidence must be within [0, 1]")
	ErrEndorsementNotOwned   = errors.New("identity: endorsement was not created by the claimed device")
	ErrInvalidThreshold      = errors.New("identity: recovery threshold must be between 1 and the number of helpers")
	ErrDuplicateHelper       = errors.New("identity: recovery helpers must be distinct accounts")
	ErrNoActivePolicy        = errors.New("identity: account has no active recovery policy")
	ErrPolicyMismatch        = errors.New("identity: approval targets a different policy than the active one")
	ErrNotAHelper            = errors.New("identity: approving account is not listed as a helper on the policy")
	ErrHelperRootKIDPinned   = errors.New("identity: helper's current root kid does not match the policy's pinned kid")
	ErrKIDPubkeyMismatch     = errors.New("identity: new_root_kid does not match derived kid of new_root_pubkey")
	ErrInsufficientApprovals = errors.New("identity: distinct helper approvals do not meet the policy threshold")
	ErrApprovalTargetMismatch = errors.New("identity: recorded approvals disagree on the rotation target")
)

// Repositories bundles the repository layer this package operates against.
type Repositories struct {
	Accounts     *database.AccountRepository
	Devices      *database.DeviceRepository
	Events       *database.SignedEventRepository
	Endorsements *database.EndorsementRepository
	Recovery     *database.RecoveryRepository
	Backups      *database.BackupRepository
}

// Service implements the account state machine described in package identity's
// doc comment, against a database.Client for transaction scoping and an
// optional metrics.Metrics for instrumentation.
type Service struct {
	client  *database.Client
	repos   Repositories
	metrics *metrics.Metrics

	maxActiveDevices  int
	maxRecoveryHelpers int
}

// NewService constructs a Service. m may be nil, in which case
// instrumentation is skipped. cfg may be nil, in which case
// DefaultMaxActiveDevices and DefaultMaxRecoveryHelpers apply.
func NewService(client *database.Client, repos Repositories, m *metrics.Metrics, cfg *config.Config) *Service {
	s := &Service{
		client:             client,
		repos:              repos,
		metrics:            m,
		maxActiveDevices:   DefaultMaxActiveDevices,
		maxRecoveryHelpers: DefaultMaxRecoveryHelpers,
	}
	if cfg != nil {
		if cfg.MaxActiveDevicesPerAccount > 0 {
			s.maxActiveDevices = cfg.MaxActiveDevicesPerAccount
		}
		if cfg.MaxRecoveryHelpers > 0 {
			s.maxRecoveryHelpers = cfg.MaxRecoveryHelpers
		}
	}
	return s
}

func (s *Service) recordAppend(eventType string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.SigchainAppendsTotal.WithLabelValues(eventType, outcome).Inc()
}

// withTx runs fn inside a freshly begun transaction, committing on success
// and rolling back on any error or panic.
func (s *Service) withTx(ctx context.Context, fn func(tx *database.Tx) error) (err error) {
	tx, err := s.client.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("identity: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// verifyEnvelope checks an envelope's signature and kid against signerKey,
// mapping any failure to ErrInvalidEnvelope.
func verifyEnvelope(env *envelope.SignedEnvelope, signerKey ed25519.PublicKey) error {
	if err := env.Verify(signerKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

// checkAccountIDClaim verifies that, if the envelope's signer names an
// account id, it matches accountID exactly.
func checkAccountIDClaim(env *envelope.SignedEnvelope, accountID uuid.UUID) error {
	if env.Signer.AccountID == nil {
		return nil
	}
	claimed, err := uuid.Parse(*env.Signer.AccountID)
	if err != nil {
		return fmt.Errorf("identity: signer account_id is not a valid uuid: %w", err)
	}
	if claimed != accountID {
		return ErrAccountIDMismatch
	}
	return nil
}

func deriveAndCheckKID(pub ed25519.PublicKey, claimedKID string) error {
	if err := idcrypto.CheckKID(pub, claimedKID); err != nil {
		return fmt.Errorf("%w: %v", ErrKIDPubkeyMismatch, err)
	}
	return nil
}
