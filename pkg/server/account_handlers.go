package server

import (
	"encoding/base64"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/identity"
	"github.com/sigil-id/identity/pkg/idcrypto"
)

// AccountHandlers serves POST /v1/accounts and GET /v1/accounts/{id}.
type AccountHandlers struct {
	identity *identity.Service
	accounts *database.AccountRepository
	logger   *log.Logger
}

// NewAccountHandlers constructs AccountHandlers.
func NewAccountHandlers(identitySvc *identity.Service, accounts *database.AccountRepository, logger *log.Logger) *AccountHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[AccountAPI] ", log.LstdFlags)
	}
	return &AccountHandlers{identity: identitySvc, accounts: accounts, logger: logger}
}

type signupRequestBody struct {
	Username       string                   `json:"username"`
	RootPubkey     string                   `json:"root_pubkey"`
	DeviceID       string                   `json:"device_id"`
	DevicePubkey   string                   `json:"device_pubkey"`
	Envelope       *envelope.SignedEnvelope `json:"envelope"`
	BackupEnvelope string                   `json:"backup_envelope,omitempty"`
}

type accountResponse struct {
	AccountID     string `json:"account_id"`
	Username      string `json:"username"`
	RootKID       string `json:"root_kid"`
	RootPubkey    string `json:"root_pubkey"`
	CreatedAt     string `json:"created_at"`
	RootRotatedAt string `json:"root_rotated_at,omitempty"`
}

func newAccountResponse(a *database.Account) accountResponse {
	resp := accountResponse{
		AccountID:  a.AccountID.String(),
		Username:   a.Username,
		RootKID:    a.RootKID,
		RootPubkey: idcrypto.EncodeBase64URL(a.RootPubkey),
		CreatedAt:  a.CreatedAt.Format(timeFormat),
	}
	if a.RootRotatedAt.Valid {
		resp.RootRotatedAt = a.RootRotatedAt.Time.Format(timeFormat)
	}
	return resp
}

// HandleSignup handles POST /v1/accounts. Signup is self-authenticating via
// its root-signed envelope — there is no delegated device yet, so this
// route is never wrapped with the signed-request middleware.
func (h *AccountHandlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is allowed")
		return
	}

	var body signupRequestBody
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
	rootPubkey, err := idcrypto.DecodeBase64URL(body.RootPubkey)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ROOT_PUBKEY", "root_pubkey must be base64url")
		return
	}
	devicePubkey, err := idcrypto.DecodeBase64URL(body.DevicePubkey)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_DEVICE_PUBKEY", "device_pubkey must be base64url")
		return
	}
	var backupEnvelope []byte
	if body.BackupEnvelope != "" {
		backupEnvelope, err = base64.StdEncoding.DecodeString(body.BackupEnvelope)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "INVALID_BACKUP_ENVELOPE", "backup_envelope must be base64")
			return
		}
	}

	result, err := h.identity.Signup(r.Context(), identity.SignupRequest{
		Username:       body.Username,
		RootPubkey:     rootPubkey,
		DeviceID:       deviceID,
		DevicePubkey:   devicePubkey,
		Envelope:       body.Envelope,
		BackupEnvelope: backupEnvelope,
	})
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, map[string]interface{}{
		"account":  newAccountResponse(result.Account),
		"device_id": result.Device.DeviceID.String(),
		"seqno":    result.Event.Seqno,
	})
}

// HandleGetAccount handles GET /v1/accounts/{account_id}.
func (h *AccountHandlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	accountID, err := parseUUIDFromPath(r.URL.Path, "/v1/accounts/")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_ACCOUNT_ID", "account_id must be a uuid")
		return
	}

	account, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		writeIdentityError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newAccountResponse(account))
}

// parseUUIDFromPath trims prefix from path and parses the first remaining
// path segment as a uuid.
func parseUUIDFromPath(path, prefix string) (uuid.UUID, error) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, "/")
	segment := strings.SplitN(rest, "/", 2)[0]
	return uuid.Parse(segment)
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"
