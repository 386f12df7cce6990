package envelope

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/sigil-id/identity/pkg/idcrypto"
)

func newTestEnvelope(t *testing.T) (*SignedEnvelope, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	kid, err := idcrypto.DeriveKID(pub)
	if err != nil {
		t.Fatalf("DeriveKID: %v", err)
	}
	accountID := "acct_1"
	env := &SignedEnvelope{
		V:           EnvelopeVersion,
		PayloadType: "DeviceGrant",
		Payload:     json.RawMessage(`{"device_pubkey":"abc"}`),
		Signer:      Signer{AccountID: &accountID, KID: kid},
	}
	if err := env.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return env, pub
}

func TestVerifySucceeds(t *testing.T) {
	env, pub := newTestEnvelope(t)
	if err := env.Verify(pub); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsPayloadTamper(t *testing.T) {
	env, pub := newTestEnvelope(t)
	env.Payload = json.RawMessage(`{"device_pubkey":"tampered"}`)
	if err := env.Verify(pub); err != idcrypto.ErrVerificationFailed {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyRejectsSignerTamper(t *testing.T) {
	env, pub := newTestEnvelope(t)
	otherAccount := "acct_2"
	env.Signer.AccountID = &otherAccount
	if err := env.Verify(pub); err != idcrypto.ErrVerificationFailed {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyRejectsKIDMismatch(t *testing.T) {
	pub, priv, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	otherPub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	otherKID, err := idcrypto.DeriveKID(otherPub)
	if err != nil {
		t.Fatalf("DeriveKID: %v", err)
	}
	// Sign with priv so the signature itself verifies against pub, but the
	// declared kid belongs to a different key.
	accountID := "acct_1"
	env := &SignedEnvelope{
		V:           EnvelopeVersion,
		PayloadType: "DeviceGrant",
		Payload:     json.RawMessage(`{"device_pubkey":"abc"}`),
		Signer:      Signer{AccountID: &accountID, KID: otherKID},
	}
	if err := env.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := env.Verify(pub); err != idcrypto.ErrKIDMismatch {
		t.Fatalf("expected ErrKIDMismatch, got %v", err)
	}
}

func TestExtractPrevHashNilForAbsent(t *testing.T) {
	got, err := ExtractPrevHash(nil)
	if err != nil {
		t.Fatalf("ExtractPrevHash: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil prev hash, got %x", got)
	}
}

func TestExtractPrevHashDecodes(t *testing.T) {
	encoded := idcrypto.EncodeBase64URL([]byte("0123456789abcdef0123456789abcdef"))
	got, err := ExtractPrevHash(&encoded)
	if err != nil {
		t.Fatalf("ExtractPrevHash: %v", err)
	}
	if string(got) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected decode: %q", got)
	}
}

func TestExtractPrevHashRejectsMalformed(t *testing.T) {
	bad := "not base64url!!"
	if _, err := ExtractPrevHash(&bad); err != ErrMalformedPrevHash {
		t.Fatalf("expected ErrMalformedPrevHash, got %v", err)
	}
}
