package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sigil-id/identity/pkg/requestauth"
)

func TestSignedRequest_MissingHeadersRejected(t *testing.T) {
	verifier := requestauth.NewVerifier(nil, nil, nil)
	called := false
	next := func(w http.ResponseWriter, r *http.Request) { called = true }

	handler := signedRequest(verifier, nil, nil, next)

	req := httptest.NewRequest(http.MethodPost, "/v1/endorsements", nil)
	rr := httptest.NewRecorder()
	handler(rr, req)

	if called {
		t.Error("next should not be called when signed-request headers are absent")
	}
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestSignedRequestErrorStatus(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
	}{
		{requestauth.ErrMissingHeader, http.StatusBadRequest},
		{requestauth.ErrTimestampOutOfRange, http.StatusUnauthorized},
		{requestauth.ErrDeviceNotFound, http.StatusUnauthorized},
		{requestauth.ErrInvalidSignature, http.StatusUnauthorized},
		{requestauth.ErrDeviceRevoked, http.StatusForbidden},
		{requestauth.ErrReplay, http.StatusUnauthorized},
	}
	for _, c := range cases {
		status, _ := signedRequestErrorStatus(c.err)
		if status != c.wantCode {
			t.Errorf("signedRequestErrorStatus(%v) = %d, want %d", c.err, status, c.wantCode)
		}
	}
}
