package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/identity"
)

// writeIdentityError maps an error returned by pkg/identity or pkg/database
// to an HTTP status and code. Anything unrecognized is a 500.
func writeIdentityError(w http.ResponseWriter, logger *log.Logger, err error) {
	status, code := identityErrorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Printf("unhandled error: %v", err)
	}
	writeError(w, logger, status, code, err.Error())
}

func identityErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, database.ErrDeviceNotFound),
		errors.Is(err, database.ErrDelegationNotFound),
		errors.Is(err, database.ErrEndorsementNotFound),
		errors.Is(err, database.ErrAggregateNotFound),
		errors.Is(err, database.ErrReputationNotFound),
		errors.Is(err, database.ErrRecoveryPolicyNotFound),
		errors.Is(err, database.ErrAccountBackupNotFound),
		errors.Is(err, identity.ErrNoActivePolicy):
		return http.StatusNotFound, "NOT_FOUND"

	case errors.Is(err, identity.ErrInvalidUsername),
		errors.Is(err, identity.ErrInvalidEnvelope),
		errors.Is(err, identity.ErrSignerMismatch),
		errors.Is(err, identity.ErrAccountIDMismatch),
		errors.Is(err, identity.ErrInvalidMagnitude),
		errors.Is(err, identity.ErrInvalidConfidence),
		errors.Is(err, identity.ErrInvalidThreshold),
		errors.Is(err, identity.ErrDuplicateHelper),
		errors.Is(err, identity.ErrKIDPubkeyMismatch):
		return http.StatusBadRequest, "INVALID_REQUEST"

	case errors.Is(err, identity.ErrDeviceLimitExceeded),
		errors.Is(err, database.ErrDeviceLimitExceeded):
		return http.StatusConflict, "DEVICE_LIMIT_EXCEEDED"

	case errors.Is(err, identity.ErrDeviceAlreadyExists),
		errors.Is(err, database.ErrConflict),
		errors.Is(err, database.ErrRecoveryApprovalExists):
		return http.StatusConflict, "CONFLICT"

	case errors.Is(err, identity.ErrDeviceAlreadyRevoked):
		return http.StatusConflict, "ALREADY_REVOKED"

	case errors.Is(err, database.ErrSeqnoConflict):
		return http.StatusConflict, "SEQNO_CONFLICT"

	case errors.Is(err, database.ErrDuplicateUsername):
		return http.StatusConflict, "DUPLICATE_USERNAME"

	case errors.Is(err, identity.ErrDeviceNotActive),
		errors.Is(err, identity.ErrEndorsementNotOwned),
		errors.Is(err, identity.ErrNotAHelper),
		errors.Is(err, identity.ErrHelperRootKIDPinned),
		errors.Is(err, identity.ErrPolicyMismatch),
		errors.Is(err, identity.ErrApprovalTargetMismatch):
		return http.StatusForbidden, "FORBIDDEN"

	case errors.Is(err, identity.ErrInsufficientApprovals):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_APPROVALS"

	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
