package requestauth

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/idcrypto"
)

func TestCanonicalMessageFormat(t *testing.T) {
	bodyHash := sha256.Sum256(nil)
	got := CanonicalMessage("GET", "/auth/devices", 1700000000, bodyHash[:])

	const want = "GET\n/auth/devices\n1700000000\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("canonical message mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestDeriveKIDLiteralVector(t *testing.T) {
	pub := make([]byte, 32)
	for i := range pub {
		pub[i] = 0x01
	}
	kid, err := idcrypto.DeriveKID(pub)
	if err != nil {
		t.Fatalf("derive kid: %v", err)
	}
	const want = "cs1uhCLEB_ttCYaQ8RMLfQ"
	if kid != want {
		t.Fatalf("kid mismatch: got %q want %q", kid, want)
	}
}

type fakeNonceStore struct {
	seen map[string]bool
}

func (f *fakeNonceStore) Record(ctx context.Context, nonceKey string, deviceID uuid.UUID) error {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[nonceKey] {
		return database.ErrNonceAlreadyUsed
	}
	f.seen[nonceKey] = true
	return nil
}

func TestWithinSkewAcceptsExactBoundary(t *testing.T) {
	now := int64(1700000000)
	if !withinSkew(now, now-MaxTimestampSkewSeconds) {
		t.Fatal("expected exactly -300s skew to be accepted")
	}
	if !withinSkew(now, now+MaxTimestampSkewSeconds) {
		t.Fatal("expected exactly +300s skew to be accepted")
	}
}

func TestWithinSkewRejectsOneSecondPastBoundary(t *testing.T) {
	now := int64(1700000000)
	if withinSkew(now, now-MaxTimestampSkewSeconds-1) {
		t.Fatal("expected -301s skew to be rejected")
	}
	if withinSkew(now, now+MaxTimestampSkewSeconds+1) {
		t.Fatal("expected +301s skew to be rejected")
	}
}

func TestVerifyTimestampOutOfRange(t *testing.T) {
	v := NewVerifier(nil, &fakeNonceStore{}, func() time.Time {
		return time.Unix(1700000000, 0)
	})

	parts := RequestParts{
		Method:        "GET",
		PathAndQuery:  "/v1/accounts/x/devices",
		DeviceKID:     "cs1uhCLEB_ttCYaQ8RMLfQ",
		Signature:     idcrypto.EncodeBase64URL(make([]byte, 64)),
		TimestampUnix: "1699999698", // now - 302
	}

	_, err := v.Verify(context.Background(), parts)
	if !errors.Is(err, ErrTimestampOutOfRange) {
		t.Fatalf("expected ErrTimestampOutOfRange, got %v", err)
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	v := NewVerifier(nil, &fakeNonceStore{}, nil)
	_, err := v.Verify(context.Background(), RequestParts{})
	if !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", err)
	}
}

func TestVerifyRejectsBodyTooLarge(t *testing.T) {
	v := NewVerifier(nil, &fakeNonceStore{}, nil)
	parts := RequestParts{
		Method:        "POST",
		PathAndQuery:  "/v1/endorsements",
		DeviceKID:     "cs1uhCLEB_ttCYaQ8RMLfQ",
		Signature:     idcrypto.EncodeBase64URL(make([]byte, 64)),
		TimestampUnix: "1700000000",
		Body:          make([]byte, MaxBodyBytes+1),
	}
	_, err := v.Verify(context.Background(), parts)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}
