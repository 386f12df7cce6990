package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/identity"
)

// EndorsementHandlers serves the endorsement and reputation routes.
type EndorsementHandlers struct {
	identity     *identity.Service
	endorsements *database.EndorsementRepository
	logger       *log.Logger
}

// NewEndorsementHandlers constructs EndorsementHandlers.
func NewEndorsementHandlers(identitySvc *identity.Service, endorsements *database.EndorsementRepository, logger *log.Logger) *EndorsementHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[EndorsementAPI] ", log.LstdFlags)
	}
	return &EndorsementHandlers{identity: identitySvc, endorsements: endorsements, logger: logger}
}

type createEndorsementRequestBody struct {
	EndorsementID string                   `json:"endorsement_id"`
	Envelope      *envelope.SignedEnvelope `json:"envelope"`
}

type endorsementResponse struct {
	EndorsementID string  `json:"endorsement_id"`
	AccountID     string  `json:"account_id"`
	DeviceID      string  `json:"device_id"`
	SubjectType   string  `json:"subject_type"`
	SubjectID     string  `json:"subject_id"`
	Topic         string  `json:"topic"`
	Magnitude     float64 `json:"magnitude"`
	Confidence    float64 `json:"confidence"`
	Active        bool    `json:"active"`
}

func newEndorsementResponse(e *database.Endorsement) endorsementResponse {
	return endorsementResponse{
		EndorsementID: e.EndorsementID.String(),
		AccountID:     e.AccountID.String(),
		DeviceID:      e.DeviceID.String(),
		SubjectType:   e.SubjectType,
		SubjectID:     e.SubjectID,
		Topic:         e.Topic,
		Magnitude:     e.Magnitude,
		Confidence:    e.Confidence,
		Active:        e.IsActive(),
	}
}

// HandleCreate handles POST /v1/endorsements. The endorsing account/device
// are the signed-request caller — an endorsement always speaks for the
// device that authenticated the HTTP request, never an arbitrary one named
// in the body.
func (h *EndorsementHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}
	caller, ok := signedDeviceFrom(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "AUTH_FAILED", "signed request required")
		return
	}

	var body createEndorsementRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Envelope == nil {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_ENVELOPE", "envelope is required")
		return
	}
	endorsementID, err := uuid.Parse(body.EndorsementID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ENDORSEMENT_ID", "endorsement_id must be a uuid")
		return
	}

	endorsement, _, err := h.identity.CreateEndorsement(r.Context(), identity.CreateEndorsementRequest{
		AccountID:     caller.AccountID,
		DeviceID:      caller.DeviceID,
		EndorsementID: endorsementID,
		Envelope:      body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, newEndorsementResponse(endorsement))
}

// HandleRevoke handles POST /v1/endorsements/{endorsement_id}/revoke.
func (h *EndorsementHandlers) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}
	caller, ok := signedDeviceFrom(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "AUTH_FAILED", "signed request required")
		return
	}

	endorsementID, err := parseUUIDSegment(r.URL.Path, "/v1/endorsements/", "/revoke")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ENDORSEMENT_ID", "endorsement_id must be a uuid")
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

	_, err = h.identity.RevokeEndorsement(r.Context(), identity.RevokeEndorsementRequest{
		AccountID:     caller.AccountID,
		DeviceID:      caller.DeviceID,
		EndorsementID: endorsementID,
		Envelope:      body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "revoked"})
}

// HandleAggregate handles GET /v1/endorsements/aggregate?subject_type=&subject_id=&topic=.
func (h *EndorsementHandlers) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}
	q := r.URL.Query()
	subjectType, subjectID, topic := q.Get("subject_type"), q.Get("subject_id"), q.Get("topic")
	if subjectType == "" || subjectID == "" || topic == "" {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_QUERY_PARAMS", "subject_type, subject_id, and topic are required")
		return
	}

	agg, err := h.endorsements.GetAggregate(r.Context(), subjectType, subjectID, topic)
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}

	resp := map[string]interface{}{
		"subject_type": agg.SubjectType,
		"subject_id":   agg.SubjectID,
		"topic":        agg.Topic,
		"n_total":      agg.NTotal,
		"n_pos":        agg.NPos,
		"n_neg":        agg.NNeg,
		"sum_weight":   agg.SumWeight,
	}
	if agg.WeightedMean.Valid {
		resp["weighted_mean"] = agg.WeightedMean.Float64
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// HandleReputation handles GET /v1/reputation/{account_id}.
func (h *EndorsementHandlers) HandleReputation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}
	accountID, err := parseUUIDFromPath(r.URL.Path, "/v1/reputation/")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	score, err := h.endorsements.GetReputation(r.Context(), accountID)
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"account_id": score.AccountID.String(),
		"score":      score.Score,
		"updated_at": score.UpdatedAt.Format(timeFormat),
	})
}
