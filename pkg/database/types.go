package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Account is the row shape of the accounts table: one row per identity,
// tracking the current active root public key and its derived kid.
type Account struct {
	AccountID     uuid.UUID
	Username      string
	RootKID       string
	RootPubkey    []byte
	CreatedAt     time.Time
	RootRotatedAt sql.NullTime
}

// SignedEvent is a single sigchain link.
type SignedEvent struct {
	AccountID          uuid.UUID
	Seqno              int64
	EventType          string
	Envelope           json.RawMessage
	PrevHash           sql.NullString
	CanonicalBytesHash string
	CreatedAt          time.Time
}

// Device is the current-state projection of a device delegation.
type Device struct {
	DeviceID     uuid.UUID
	AccountID    uuid.UUID
	DeviceKID    string
	DevicePubkey []byte
	GrantedAtSeq int64
	RevokedAtSeq sql.NullInt64
	CreatedAt    time.Time
	RevokedAt    sql.NullTime
	LastUsedAt   sql.NullTime
}

// IsActive reports whether the device delegation is currently active.
func (d *Device) IsActive() bool {
	return !d.RevokedAtSeq.Valid
}

// Endorsement is a single create/revoke record for a subject+topic.
type Endorsement struct {
	EndorsementID uuid.UUID
	AccountID     uuid.UUID // the endorsing account (device owner)
	DeviceID      uuid.UUID
	SubjectType   string
	SubjectID     string
	Topic         string
	Magnitude     float64
	Confidence    float64
	CreatedAt     time.Time
	RevokedAt     sql.NullTime
}

// IsActive reports whether the endorsement currently counts toward aggregates.
func (e *Endorsement) IsActive() bool {
	return !e.RevokedAt.Valid
}

// EndorsementAggregate is the derived per-(subject,topic) rollup.
type EndorsementAggregate struct {
	SubjectType  string
	SubjectID    string
	Topic        string
	NTotal       int64
	NPos         int64
	NNeg         int64
	SumWeight    float64
	WeightedMean sql.NullFloat64
	UpdatedAt    time.Time
}

// ReputationScore is the derived per-account reputation projection.
type ReputationScore struct {
	AccountID uuid.UUID
	Score     float64
	UpdatedAt time.Time
}

// RecoveryHelper is one entry in a recovery policy's helper list.
type RecoveryHelper struct {
	AccountID     uuid.UUID `json:"account_id"`
	HelperRootKID *string   `json:"helper_root_kid,omitempty"`
}

// RecoveryPolicy is the active recovery configuration for an account.
type RecoveryPolicy struct {
	PolicyID  uuid.UUID
	AccountID uuid.UUID
	Threshold int
	Helpers   []RecoveryHelper
	CreatedAt time.Time
	RevokedAt sql.NullTime
}

// IsActive reports whether this is the account's currently active policy.
func (p *RecoveryPolicy) IsActive() bool {
	return !p.RevokedAt.Valid
}

// RecoveryApproval is a single helper's vote toward a root rotation.
type RecoveryApproval struct {
	ApprovalID     uuid.UUID
	AccountID      uuid.UUID
	PolicyID       uuid.UUID
	HelperAccount  uuid.UUID
	NewRootKID     string
	NewRootPubkey  []byte
	Envelope       json.RawMessage
	CreatedAt      time.Time
}

// AccountBackup stores a sealed backup envelope for an account's root key material.
type AccountBackup struct {
	BackupID  uuid.UUID
	AccountID uuid.UUID
	Envelope  []byte
	CreatedAt time.Time
}

// RequestNonce records a consumed signed-request nonce, keyed by the
// SHA-256 of the request signature.
type RequestNonce struct {
	NonceKey  string
	DeviceID  uuid.UUID
	CreatedAt time.Time
}

// User is the session/login-bootstrap identity record, distinct from the
// sigchain Account: it links an OAuth/Firebase identity to a sigchain
// account once one has been created or linked.
type User struct {
	UserID    uuid.UUID
	Email     string
	AccountID sql.NullString
	CreatedAt time.Time
}

// OAuthIdentity links a federated login provider's subject id to a User.
type OAuthIdentity struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   string
	ProviderID string
	CreatedAt  time.Time
}
