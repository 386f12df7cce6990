package database

import "errors"

// Sentinel errors for repository operations. Explicit errors instead of
// nil, nil returns — every "not found" path returns one of these rather
// than a bare nil value a caller might mistake for success.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrDelegationNotFound      = errors.New("device delegation not found")
	ErrSignedEventNotFound     = errors.New("signed event not found")
	ErrEndorsementNotFound     = errors.New("endorsement not found")
	ErrAggregateNotFound       = errors.New("endorsement aggregate not found")
	ErrReputationNotFound      = errors.New("reputation score not found")
	ErrRecoveryPolicyNotFound  = errors.New("recovery policy not found")
	ErrRecoveryApprovalExists  = errors.New("recovery approval already recorded for this helper account")
	ErrAccountBackupNotFound   = errors.New("account backup not found")
	ErrNonceAlreadyUsed        = errors.New("request nonce already used")
	ErrUserNotFound            = errors.New("user not found")
	ErrOAuthIdentityNotFound   = errors.New("oauth identity not found")
	ErrDeviceLimitExceeded     = errors.New("account already has the maximum number of active devices")
	ErrConflict                = errors.New("conflicting state for requested operation")
	ErrSeqnoConflict           = errors.New("concurrent append raced this one for the next seqno")
	ErrDuplicateUsername       = errors.New("username is already taken")
)
