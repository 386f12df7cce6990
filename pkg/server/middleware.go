package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/sigil-id/identity/pkg/metrics"
	"github.com/sigil-id/identity/pkg/requestauth"
)

type deviceContextKey struct{}

// signedDeviceFrom recovers the device a signedRequest middleware
// authenticated for this request, if any.
func signedDeviceFrom(ctx context.Context) (*requestauth.AuthenticatedDevice, bool) {
	device, ok := ctx.Value(deviceContextKey{}).(*requestauth.AuthenticatedDevice)
	return device, ok
}

// signedRequest wraps next with the signed-header device authentication
// scheme required of every chain-mutating endpoint: requests must carry
// X-Device-Kid, X-Signature, and X-Timestamp, verified against the
// account's currently delegated devices with replay protection. Signup has
// no delegated device yet and is never wrapped with this middleware — its
// root-signed envelope is its own proof.
func signedRequest(verifier *requestauth.Verifier, m *metrics.Metrics, logger *log.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, requestauth.MaxBodyBytes+1))
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "INVALID_BODY", "failed to read request body")
			return
		}
		r.Body.Close()

		parts := requestauth.RequestParts{
			Method:        r.Method,
			PathAndQuery:  r.URL.RequestURI(),
			DeviceKID:     r.Header.Get("X-Device-Kid"),
			Signature:     r.Header.Get("X-Signature"),
			TimestampUnix: r.Header.Get("X-Timestamp"),
			Body:          body,
		}

		device, err := verifier.Verify(r.Context(), parts)
		if err != nil {
			status, code := signedRequestErrorStatus(err)
			if m != nil {
				m.RequestAuthFailuresTotal.WithLabelValues(code).Inc()
			}
			writeError(w, logger, status, code, err.Error())
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), deviceContextKey{}, device)
		next(w, r.WithContext(ctx))
	}
}

func signedRequestErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, requestauth.ErrMissingHeader),
		errors.Is(err, requestauth.ErrInvalidKID),
		errors.Is(err, requestauth.ErrInvalidTimestamp),
		errors.Is(err, requestauth.ErrInvalidSignatureEncoding),
		errors.Is(err, requestauth.ErrBodyTooLarge):
		return http.StatusBadRequest, "INVALID_SIGNED_REQUEST"
	case errors.Is(err, requestauth.ErrTimestampOutOfRange):
		return http.StatusUnauthorized, "TIMESTAMP_OUT_OF_RANGE"
	case errors.Is(err, requestauth.ErrDeviceNotFound):
		return http.StatusUnauthorized, "DEVICE_NOT_FOUND"
	case errors.Is(err, requestauth.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE"
	case errors.Is(err, requestauth.ErrDeviceRevoked):
		return http.StatusForbidden, "DEVICE_REVOKED"
	case errors.Is(err, requestauth.ErrReplay):
		return http.StatusUnauthorized, "REPLAY_DETECTED"
	default:
		return http.StatusUnauthorized, "AUTH_FAILED"
	}
}
