package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/identity"
	"github.com/sigil-id/identity/pkg/idcrypto"
)

// DeviceHandlers serves the device delegation routes under
// /v1/accounts/{account_id}/devices.
type DeviceHandlers struct {
	identity *identity.Service
	devices  *database.DeviceRepository
	logger   *log.Logger
}

// NewDeviceHandlers constructs DeviceHandlers.
func NewDeviceHandlers(identitySvc *identity.Service, devices *database.DeviceRepository, logger *log.Logger) *DeviceHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[DeviceAPI] ", log.LstdFlags)
	}
	return &DeviceHandlers{identity: identitySvc, devices: devices, logger: logger}
}

type addDeviceRequestBody struct {
	DeviceID     string                   `json:"device_id"`
	DevicePubkey string                   `json:"device_pubkey"`
	Envelope     *envelope.SignedEnvelope `json:"envelope"`
}

type deviceResponse struct {
	DeviceID     string `json:"device_id"`
	AccountID    string `json:"account_id"`
	DeviceKID    string `json:"device_kid"`
	DevicePubkey string `json:"device_pubkey"`
	GrantedAtSeq int64  `json:"granted_at_seq"`
	Active       bool   `json:"active"`
	LastUsedAt   string `json:"last_used_at,omitempty"`
}

func newDeviceResponse(d *database.Device) deviceResponse {
	resp := deviceResponse{
		DeviceID:     d.DeviceID.String(),
		AccountID:    d.AccountID.String(),
		DeviceKID:    d.DeviceKID,
		DevicePubkey: idcrypto.EncodeBase64URL(d.DevicePubkey),
		GrantedAtSeq: d.GrantedAtSeq,
		Active:       d.IsActive(),
	}
	if d.LastUsedAt.Valid {
		resp.LastUsedAt = d.LastUsedAt.Time.Format(timeFormat)
	}
	return resp
}

// HandleAddDevice handles POST /v1/accounts/{account_id}/devices, wrapped
// in the signed-request middleware: the caller must already be an active
// device on the account, even though the delegation itself is root-signed.
func (h *DeviceHandlers) HandleAddDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}

	accountID, err := parseUUIDSegment(r.URL.Path, "/v1/accounts/", "/devices")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	var body addDeviceRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Envelope == nil {
		writeError(w, h.logger, http.StatusBadRequest, "MISSING_ENVELOPE", "envelope is required")
		return
	}
	deviceID, err := uuid.Parse(body.DeviceID)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_DEVICE_ID", "device_id must be a uuid")
		return
	}
	devicePubkey, err := idcrypto.DecodeBase64URL(body.DevicePubkey)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_DEVICE_PUBKEY", "device_pubkey must be base64url")
		return
	}

	device, _, err := h.identity.AddDevice(r.Context(), identity.AddDeviceRequest{
		AccountID:    accountID,
		DeviceID:     deviceID,
		DevicePubkey: devicePubkey,
		Envelope:     body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, newDeviceResponse(device))
}

// HandleListDevices handles GET /v1/accounts/{account_id}/devices.
func (h *DeviceHandlers) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	accountID, err := parseUUIDSegment(r.URL.Path, "/v1/accounts/", "/devices")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	devices, err := h.devices.ListActive(r.Context(), accountID)
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, newDeviceResponse(d))
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{"devices": out})
}

// HandleRevokeDevice handles POST /v1/accounts/{account_id}/devices/{device_id}/revoke.
func (h *DeviceHandlers) HandleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) != 4 || segments[1] != "devices" || segments[3] != "revoke" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_PATH", "expected /v1/accounts/{account_id}/devices/{device_id}/revoke")
		return
	}
	accountID, err := uuid.Parse(segments[0])
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}
	deviceID, err := uuid.Parse(segments[2])
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_DEVICE_ID", "device_id must be a uuid")
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

	_, err = h.identity.RevokeDevice(r.Context(), identity.RevokeDeviceRequest{
		AccountID: accountID,
		DeviceID:  deviceID,
		Envelope:  body.Envelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "revoked"})
}

// parseUUIDSegment extracts the uuid segment between prefix and suffix in path.
func parseUUIDSegment(path, prefix, suffix string) (uuid.UUID, error) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(strings.TrimSuffix(rest, "/"), suffix)
	return uuid.Parse(rest)
}
