package server

import (
	"log"
	"net/http"

	"github.com/sigil-id/identity/pkg/session"
)

// SessionHandlers serves the OAuth/Firebase login bootstrap at
// /v1/sessions/login. GET begins a Google authorization-code flow; POST
// completes one of the two supported login methods, dispatching on which
// fields the body carries.
type SessionHandlers struct {
	sessions *session.Service
	logger   *log.Logger
}

// NewSessionHandlers constructs SessionHandlers.
func NewSessionHandlers(sessions *session.Service, logger *log.Logger) *SessionHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[SessionAPI] ", log.LstdFlags)
	}
	return &SessionHandlers{sessions: sessions, logger: logger}
}

type loginRequestBody struct {
	Code     string `json:"code,omitempty"`
	State    string `json:"state,omitempty"`
	IDToken  string `json:"id_token,omitempty"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	AccountID string `json:"account_id,omitempty"`
	NewUser   bool   `json:"new_user"`
}

func newLoginResponse(r *session.LoginResult) loginResponse {
	return loginResponse{
		Token:     r.Token,
		ExpiresAt: r.ExpiresAt.Format(timeFormat),
		UserID:    r.UserID.String(),
		Email:     r.Email,
		AccountID: r.AccountID,
		NewUser:   r.NewUser,
	}
}

func requestMetaFrom(r *http.Request) session.RequestMeta {
	return session.RequestMeta{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()}
}

// Handle serves both GET (begin a Google login) and POST (complete a login
// with either a Google authorization code + state, or a Firebase ID token).
func (h *SessionHandlers) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleBeginGoogle(w, r)
	case http.MethodPost:
		h.handleCompleteLogin(w, r)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET and POST are allowed")
	}
}

func (h *SessionHandlers) handleBeginGoogle(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.sessions.BeginGoogleLogin()
	if err != nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "GOOGLE_LOGIN_UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{
		"authorize_url": authURL.URL,
		"state":         authURL.State,
	})
}

func (h *SessionHandlers) handleCompleteLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	var (
		result *session.LoginResult
		err    error
	)
	switch {
	case body.IDToken != "":
		result, err = h.sessions.LoginWithFirebaseToken(r.Context(), body.IDToken, requestMetaFrom(r))
	case body.Code != "" && body.State != "":
		result, err = h.sessions.FinishGoogleLogin(r.Context(), body.Code, body.State, requestMetaFrom(r))
	default:
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", "body must carry either id_token, or code and state")
		return
	}
	if err != nil {
		writeError(w, h.logger, http.StatusUnauthorized, "LOGIN_FAILED", err.Error())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, newLoginResponse(result))
}
