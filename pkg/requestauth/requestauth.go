// Package requestauth verifies signed HTTP requests made by an already
// delegated device: a canonical message built from the request's method,
// path, timestamp, and body hash is signed by the device's Ed25519 key and
// carried in headers, with a signature-keyed nonce preventing replay.
package requestauth

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/idcrypto"
	"github.com/sigil-id/identity/pkg/noncestore"
)

// MaxTimestampSkewSeconds bounds the allowed difference between a request's
// X-Timestamp and the server's clock; also used as the nonce retention
// window since no valid request can reuse a signature after this elapses.
const MaxTimestampSkewSeconds = 300

// MaxBodyBytes caps the request body read before signature verification,
// so an unauthenticated caller cannot force large reads ahead of any check.
const MaxBodyBytes = 64 * 1024

var (
	// ErrMissingHeader is returned when a required signed-request header is absent.
	ErrMissingHeader = errors.New("requestauth: missing required header")
	// ErrInvalidKID is returned when X-Device-Kid is not a well-formed kid.
	ErrInvalidKID = errors.New("requestauth: invalid device kid")
	// ErrInvalidTimestamp is returned when X-Timestamp is not a parseable integer.
	ErrInvalidTimestamp = errors.New("requestauth: invalid timestamp")
	// ErrTimestampOutOfRange is returned when the timestamp skew exceeds MaxTimestampSkewSeconds.
	ErrTimestampOutOfRange = errors.New("requestauth: timestamp out of range")
	// ErrInvalidSignatureEncoding is returned when X-Signature is not valid base64url.
	ErrInvalidSignatureEncoding = errors.New("requestauth: invalid signature encoding")
	// ErrBodyTooLarge is returned when the request body exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("requestauth: request body too large")
	// ErrDeviceNotFound is returned when no device is registered under the claimed kid.
	ErrDeviceNotFound = errors.New("requestauth: device not found")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("requestauth: invalid signature")
	// ErrDeviceRevoked is returned, after signature verification, for a revoked device.
	ErrDeviceRevoked = errors.New("requestauth: device has been revoked")
	// ErrReplay is returned when the request's signature nonce has already been recorded.
	ErrReplay = errors.New("requestauth: request replay detected")
)

// RequestParts carries the pieces of an incoming HTTP request needed to
// reconstruct its canonical signed message. Callers (the HTTP layer) build
// this from the live request before the body is otherwise consumed.
type RequestParts struct {
	Method        string
	PathAndQuery  string
	DeviceKID     string
	Signature     string
	TimestampUnix string
	Body          []byte
}

// AuthenticatedDevice is the result of a successful signed-request verification.
type AuthenticatedDevice struct {
	AccountID uuid.UUID
	DeviceID  uuid.UUID
	DeviceKID string
	Body      []byte
}

// Clock returns the current time; overridable in tests.
type Clock func() time.Time

// Verifier checks signed requests against the device and nonce repositories.
type Verifier struct {
	devices *database.DeviceRepository
	nonces  NonceStore
	clock   Clock
}

// NonceStore records a consumed signature hash exactly once. Implemented by
// both pkg/database's Postgres-backed NonceRepository and pkg/noncestore's
// embedded-database alternative, which signal a repeat with their own
// ErrNonceAlreadyUsed; Verify reports either as ErrReplay.
type NonceStore interface {
	Record(ctx context.Context, nonceKey string, deviceID uuid.UUID) error
}

// NewVerifier constructs a Verifier. clock defaults to time.Now when nil.
func NewVerifier(devices *database.DeviceRepository, nonces NonceStore, clock Clock) *Verifier {
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{devices: devices, nonces: nonces, clock: clock}
}

// Verify authenticates parts and returns the calling device on success. The
// ordering mirrors the oracle-avoidance requirement exactly: the signature
// is checked before revocation status, and revocation is checked before the
// nonce is recorded, so a revoked device's replayed request is rejected for
// revocation rather than silently consuming a nonce slot.
func (v *Verifier) Verify(ctx context.Context, parts RequestParts) (*AuthenticatedDevice, error) {
	if parts.DeviceKID == "" || parts.Signature == "" || parts.TimestampUnix == "" {
		return nil, ErrMissingHeader
	}
	if err := idcrypto.ValidateKID(parts.DeviceKID); err != nil {
		return nil, ErrInvalidKID
	}
	if len(parts.Body) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	timestamp, err := strconv.ParseInt(parts.TimestampUnix, 10, 64)
	if err != nil {
		return nil, ErrInvalidTimestamp
	}
	if !withinSkew(v.clock().Unix(), timestamp) {
		return nil, ErrTimestampOutOfRange
	}

	sig, err := idcrypto.DecodeBase64URL(parts.Signature)
	if err != nil {
		return nil, ErrInvalidSignatureEncoding
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, ErrInvalidSignatureEncoding
	}

	bodyHash := sha256.Sum256(parts.Body)
	canonical := CanonicalMessage(parts.Method, parts.PathAndQuery, timestamp, bodyHash[:])

	device, err := v.devices.GetByKID(ctx, parts.DeviceKID)
	if err != nil {
		if errors.Is(err, database.ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("requestauth: device lookup failed: %w", err)
	}

	if err := idcrypto.Verify(ed25519.PublicKey(device.DevicePubkey), []byte(canonical), sig); err != nil {
		return nil, ErrInvalidSignature
	}

	if !device.IsActive() {
		return nil, ErrDeviceRevoked
	}

	nonceKey := nonceKeyFor(sig)
	if err := v.nonces.Record(ctx, nonceKey, device.DeviceID); err != nil {
		if errors.Is(err, database.ErrNonceAlreadyUsed) || errors.Is(err, noncestore.ErrNonceAlreadyUsed) {
			return nil, ErrReplay
		}
		return nil, fmt.Errorf("requestauth: nonce recording failed: %w", err)
	}

	go func() {
		_ = v.devices.TouchLastUsed(context.Background(), device.DeviceID)
	}()

	return &AuthenticatedDevice{
		AccountID: device.AccountID,
		DeviceID:  device.DeviceID,
		DeviceKID: device.DeviceKID,
		Body:      parts.Body,
	}, nil
}

// CanonicalMessage builds the exact signed message: method, path+query,
// timestamp, and the hex-encoded SHA-256 of the body, newline-joined.
func CanonicalMessage(method, pathAndQuery string, timestamp int64, bodyHash []byte) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(pathAndQuery)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteByte('\n')
	b.WriteString(hex.EncodeToString(bodyHash))
	return b.String()
}

// withinSkew reports whether timestamp is within MaxTimestampSkewSeconds of now.
func withinSkew(now, timestamp int64) bool {
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	return skew <= MaxTimestampSkewSeconds
}

func nonceKeyFor(signature []byte) string {
	h := sha256.Sum256(signature)
	return hex.EncodeToString(h[:])
}
