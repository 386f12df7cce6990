package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleSignup_MethodNotAllowed(t *testing.T) {
	handlers := NewAccountHandlers(nil, nil, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/v1/accounts", nil)
		rr := httptest.NewRecorder()

		handlers.HandleSignup(rr, req)

		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("method %s: expected %d, got %d", method, http.StatusMethodNotAllowed, rr.Code)
		}
	}
}

func TestHandleSignup_MissingEnvelope(t *testing.T) {
	handlers := NewAccountHandlers(nil, nil, nil)

	body := strings.NewReader(`{"root_pubkey":"abc","device_id":"11111111-1111-1111-1111-111111111111","device_pubkey":"abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", body)
	rr := httptest.NewRecorder()

	handlers.HandleSignup(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in response")
	}
	if errObj["code"] != "MISSING_ENVELOPE" {
		t.Errorf("expected MISSING_ENVELOPE, got %v", errObj["code"])
	}
}

func TestHandleSignup_RejectsUnknownFields(t *testing.T) {
	handlers := NewAccountHandlers(nil, nil, nil)

	body := strings.NewReader(`{"root_pubkey":"abc","unexpected_field":"oops"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", body)
	rr := httptest.NewRecorder()

	handlers.HandleSignup(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d for unknown field, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleGetAccount_MethodNotAllowed(t *testing.T) {
	handlers := NewAccountHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/11111111-1111-1111-1111-111111111111", nil)
	rr := httptest.NewRecorder()

	handlers.HandleGetAccount(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestHandleGetAccount_InvalidAccountID(t *testing.T) {
	handlers := NewAccountHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/not-a-uuid", nil)
	rr := httptest.NewRecorder()

	handlers.HandleGetAccount(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestParseUUIDFromPath(t *testing.T) {
	id, err := parseUUIDFromPath("/v1/accounts/11111111-1111-1111-1111-111111111111", "/v1/accounts/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("unexpected id: %s", id)
	}

	if _, err := parseUUIDFromPath("/v1/accounts/not-a-uuid", "/v1/accounts/"); err == nil {
		t.Error("expected an error for a non-uuid segment")
	}
}
