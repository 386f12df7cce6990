package backup

import (
	"bytes"
	"testing"
)

func literalFixture() ([saltSize]byte, [nonceSize]byte, []byte) {
	var salt [saltSize]byte
	for i := range salt {
		salt[i] = 0xAA
	}
	var nonce [nonceSize]byte
	for i := range nonce {
		nonce[i] = 0xBB
	}
	ciphertext := bytes.Repeat([]byte{0xCC}, 48)
	return salt, nonce, ciphertext
}

func TestBuildParseRoundTrip(t *testing.T) {
	salt, nonce, ciphertext := literalFixture()

	raw, err := Build(salt, minMCost, minTCost, minPCost, nonce, ciphertext)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(raw) != 90 {
		t.Fatalf("expected 90 byte envelope, got %d", len(raw))
	}

	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.MCost != minMCost || env.TCost != minTCost || env.PCost != minPCost {
		t.Fatalf("kdf params mismatch: %+v", env)
	}
	if env.Salt != salt || env.Nonce != nonce {
		t.Fatalf("salt/nonce mismatch")
	}
	if !bytes.Equal(env.Ciphertext, ciphertext) {
		t.Fatalf("ciphertext mismatch")
	}

	rebuilt, err := env.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(rebuilt, raw) {
		t.Fatalf("round-trip bytes differ")
	}
}

func TestParseRejectsTooSmall(t *testing.T) {
	if _, err := Parse(make([]byte, minEnvelopeSize-1)); err != ErrTooSmall {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
}

func TestParseRejectsTooLarge(t *testing.T) {
	salt, nonce, _ := literalFixture()
	raw, err := Build(salt, minMCost, minTCost, minPCost, nonce, bytes.Repeat([]byte{0xCC}, maxEnvelopeSize))
	if err == nil {
		t.Fatalf("expected Build to reject oversized ciphertext, got envelope of %d bytes", len(raw))
	}
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := Parse(make([]byte, maxEnvelopeSize+1)); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge from Parse, got %v", err)
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	salt, nonce, ciphertext := literalFixture()
	raw, err := Build(salt, minMCost, minTCost, minPCost, nonce, ciphertext)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw[0] = 0x02
	if _, err := Parse(raw); err != ErrUnsupportedVersion {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestParseRejectsUnsupportedKDF(t *testing.T) {
	salt, nonce, ciphertext := literalFixture()
	raw, err := Build(salt, minMCost, minTCost, minPCost, nonce, ciphertext)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw[1] = 0x02
	if _, err := Parse(raw); err != ErrUnsupportedKDF {
		t.Fatalf("expected ErrUnsupportedKDF, got %v", err)
	}
}

func TestParseRejectsWeakKDFParams(t *testing.T) {
	salt, nonce, ciphertext := literalFixture()
	if _, err := Build(salt, minMCost-1, minTCost, minPCost, nonce, ciphertext); err != ErrWeakKDFParams {
		t.Fatalf("expected ErrWeakKDFParams from Build, got %v", err)
	}

	raw, err := Build(salt, minMCost, minTCost, minPCost, nonce, ciphertext)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Lower t_cost below the floor directly in the wire bytes.
	raw[6], raw[7], raw[8], raw[9] = 1, 0, 0, 0
	if _, err := Parse(raw); err != ErrWeakKDFParams {
		t.Fatalf("expected ErrWeakKDFParams from Parse, got %v", err)
	}
}

func TestBuildRejectsCiphertextTooSmall(t *testing.T) {
	salt, nonce, _ := literalFixture()
	if _, err := Build(salt, minMCost, minTCost, minPCost, nonce, bytes.Repeat([]byte{0xCC}, 10)); err != ErrCiphertextTooSmall {
		t.Fatalf("expected ErrCiphertextTooSmall, got %v", err)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	passphrase := []byte("correct horse battery staple")
	plaintext := []byte("root key material goes here, 32+ bytes of it for realism")

	raw, err := Seal(passphrase, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Open(env, passphrase)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("plaintext mismatch: got %q want %q", got, plaintext)
	}

	if _, err := Open(env, []byte("wrong passphrase")); err == nil {
		t.Fatalf("expected Open to fail with wrong passphrase")
	}
}
