package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleCreate_RequiresSignedRequest(t *testing.T) {
	handlers := NewEndorsementHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/endorsements", nil)
	rr := httptest.NewRecorder()

	handlers.HandleCreate(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestHandleAggregate_MissingQueryParams(t *testing.T) {
	handlers := NewEndorsementHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/endorsements/aggregate", nil)
	rr := httptest.NewRecorder()

	handlers.HandleAggregate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleAggregate_MethodNotAllowed(t *testing.T) {
	handlers := NewEndorsementHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/endorsements/aggregate", nil)
	rr := httptest.NewRecorder()

	handlers.HandleAggregate(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestHandleReputation_InvalidAccountID(t *testing.T) {
	handlers := NewEndorsementHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/reputation/not-a-uuid", nil)
	rr := httptest.NewRecorder()

	handlers.HandleReputation(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}
