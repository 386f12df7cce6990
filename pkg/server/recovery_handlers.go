package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/identity"
)

// RecoveryHandlers serves the threshold social recovery routes under
// /v1/accounts/{account_id}/recovery-*.
type RecoveryHandlers struct {
	identity *identity.Service
	recovery *database.RecoveryRepository
	logger   *log.Logger
}

// NewRecoveryHandlers constructs RecoveryHandlers.
func NewRecoveryHandlers(identitySvc *identity.Service, recovery *database.RecoveryRepository, logger *log.Logger) *RecoveryHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[RecoveryAPI] ", log.LstdFlags)
	}
	return &RecoveryHandlers{identity: identitySvc, recovery: recovery, logger: logger}
}

type setRecoveryPolicyRequestBody struct {
	PolicyID string                   `json:"policy_id"`
	Envelope *envelope.SignedEnvelope `json:"envelope"`
}

type recoveryHelperResponse struct {
	AccountID     string `json:"account_id"`
	HelperRootKID string `json:"helper_root_kid,omitempty"`
}

type recoveryPolicyResponse struct {
	PolicyID  string                    `json:"policy_id"`
	AccountID string                    `json:"account_id"`
	Threshold int                       `json:"threshold"`
	Helpers   []recoveryHelperResponse  `json:"helpers"`
	CreatedAt string                    `json:"created_at"`
	Active    bool                      `json:"active"`
}

func newRecoveryPolicyResponse(p *database.RecoveryPolicy) recoveryPolicyResponse {
	helpers := make([]recoveryHelperResponse, 0, len(p.Helpers))
	for _, h := range p.Helpers {
		entry := recoveryHelperResponse{AccountID: h.AccountID.String()}
		if h.HelperRootKID != nil {
			entry.HelperRootKID = *h.HelperRootKID
		}
		helpers = append(helpers, entry)
	}
	return recoveryPolicyResponse{
		PolicyID:  p.PolicyID.String(),
		AccountID: p.AccountID.String(),
		Threshold: p.Threshold,
		Helpers:   helpers,
		CreatedAt: p.CreatedAt.Format(timeFormat),
		Active:    p.IsActive(),
	}
}

// HandleSetPolicy handles PUT /v1/accounts/{account_id}/recovery-policy.
func (h *RecoveryHandlers) HandleSetPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only PUT is allowed")
		return
	}
	accountID, err := parseUUIDFromPath(r.URL.Path, "/v1/accounts/")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	var body setRecoveryPolicyRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Envelope == nil {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_ENVELOPE", "envelope is required")
		return
	}
	policyID, err := uuid.Parse(body.PolicyID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_POLICY_ID", "policy_id must be a uuid")
		return
	}

	policy, _, err := h.identity.SetRecoveryPolicy(r.Context(), identity.SetRecoveryPolicyRequest{
		AccountID: accountID,
		PolicyID:  policyID,
		Envelope:  body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newRecoveryPolicyResponse(policy))
}

// HandleGetPolicy handles GET /v1/accounts/{account_id}/recovery-policy.
func (h *RecoveryHandlers) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}
	accountID, err := parseUUIDFromPath(r.URL.Path, "/v1/accounts/")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	policy, err := h.recovery.GetActivePolicy(r.Context(), accountID)
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newRecoveryPolicyResponse(policy))
}

type recoveryApprovalRequestBody struct {
	Envelope *envelope.SignedEnvelope `json:"envelope"`
}

// HandleApprove handles POST /v1/accounts/{account_id}/recovery-approvals.
// The helper account and device are the signed-request caller: an approval
// always speaks for the device that authenticated the HTTP request.
func (h *RecoveryHandlers) HandleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}
	accountID, err := parseUUIDSegment(r.URL.Path, "/v1/accounts/", "/recovery-approvals")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}
	caller, ok := signedDeviceFrom(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "AUTH_FAILED", "signed request required")
		return
	}

	var body recoveryApprovalRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Envelope == nil {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_ENVELOPE", "envelope is required")
		return
	}

	approval, _, err := h.identity.ApproveRecovery(r.Context(), identity.ApproveRecoveryRequest{
		AccountID:       accountID,
		HelperAccountID: caller.AccountID,
		HelperDeviceID:  caller.DeviceID,
		Envelope:        body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, map[string]interface{}{
		"approval_id": approval.ApprovalID.String(),
		"policy_id":   approval.PolicyID.String(),
		"new_root_kid": approval.NewRootKID,
	})
}

// HandleRotate handles POST /v1/accounts/{account_id}/recovery-rotate.
func (h *RecoveryHandlers) HandleRotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}
	accountID, err := parseUUIDSegment(r.URL.Path, "/v1/accounts/", "/recovery-rotate")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	var body struct {
		Envelope *envelope.SignedEnvelope `json:"envelope"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Envelope == nil {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_ENVELOPE", "envelope is required")
		return
	}

	_, err = h.identity.RotateRoot(r.Context(), identity.RotateRootRequest{
		AccountID: accountID,
		Envelope:  body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "rotated"})
}

// HandleRevokePolicy handles a policy removal; not part of the consolidated
// HTTP surface's named routes but wired for completeness since
// identity.Service exposes it. Mounted at
// DELETE /v1/accounts/{account_id}/recovery-policy by the router.
func (h *RecoveryHandlers) HandleRevokePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only DELETE is allowed")
		return
	}
	accountID, err := parseUUIDFromPath(r.URL.Path, "/v1/accounts/")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	var body struct {
		Envelope *envelope.SignedEnvelope `json:"envelope"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Envelope == nil {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_ENVELOPE", "envelope is required")
		return
	}

	_, err = h.identity.RevokeRecoveryPolicy(r.Context(), identity.RevokeRecoveryPolicyRequest{
		AccountID: accountID,
		Envelope:  body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "revoked"})
}
