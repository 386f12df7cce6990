// Package idcrypto implements the fixed signing primitives used across the
// identity core: Ed25519 signatures, SHA-256 digests, base64url encoding,
// and key-id derivation. No alternative signature algorithm is supported.
package idcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// KIDLength is the fixed length, in base64url characters, of a derived key id.
const KIDLength = 22

var (
	// ErrInvalidPublicKeyLength is returned when a public key is not exactly ed25519.PublicKeySize bytes.
	ErrInvalidPublicKeyLength = errors.New("idcrypto: public key must be exactly 32 bytes")
	// ErrInvalidPrivateKeyLength is returned when a private key is not exactly ed25519.PrivateKeySize bytes.
	ErrInvalidPrivateKeyLength = errors.New("idcrypto: private key must be exactly 64 bytes")
	// ErrInvalidSignatureLength is returned when a signature is not exactly ed25519.SignatureSize bytes.
	ErrInvalidSignatureLength = errors.New("idcrypto: signature must be exactly 64 bytes")
	// ErrVerificationFailed is returned when a signature fails to verify against its claimed public key.
	ErrVerificationFailed = errors.New("idcrypto: signature verification failed")
	// ErrKIDMismatch is returned when a claimed key id does not match the derived key id of a public key.
	ErrKIDMismatch = errors.New("idcrypto: key id does not match derived key id")
)

// GenerateKeypair produces a new Ed25519 keypair using crypto/rand.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("idcrypto: generate keypair: %w", err)
	}
	return pub, priv, nil
}

// Sign signs message with priv. priv must be exactly ed25519.PrivateKeySize bytes.
func Sign(priv ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKeyLength
	}
	return ed25519.Sign(priv, message), nil
}

// Verify checks sig against message under pub. Returns ErrVerificationFailed
// on any mismatch, and a length error if pub or sig are malformed.
func Verify(pub ed25519.PublicKey, message, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidPublicKeyLength
	}
	if len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignatureLength
	}
	if !ed25519.Verify(pub, message, sig) {
		return ErrVerificationFailed
	}
	return nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// EncodeBase64URL encodes data as unpadded base64url (RFC 4648 §5).
func EncodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeBase64URL decodes unpadded base64url text.
func DecodeBase64URL(text string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("idcrypto: decode base64url: %w", err)
	}
	return data, nil
}

// DeriveKID computes the key id for an Ed25519 public key:
// base64url(SHA-256(pubkey)[0:16]), always KIDLength characters.
func DeriveKID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", ErrInvalidPublicKeyLength
	}
	digest := SHA256(pub)
	kid := EncodeBase64URL(digest[:16])
	if len(kid) != KIDLength {
		return "", fmt.Errorf("idcrypto: derived kid has unexpected length %d", len(kid))
	}
	return kid, nil
}

// ValidateKID reports whether kid is a syntactically valid key id: exactly
// KIDLength characters, all drawn from the unpadded base64url alphabet.
func ValidateKID(kid string) error {
	if len(kid) != KIDLength {
		return fmt.Errorf("idcrypto: kid must be %d characters, got %d", KIDLength, len(kid))
	}
	if _, err := base64.RawURLEncoding.DecodeString(kid); err != nil {
		return fmt.Errorf("idcrypto: kid is not valid base64url: %w", err)
	}
	return nil
}

// CheckKID derives the key id for pub and compares it against claimed.
func CheckKID(pub ed25519.PublicKey, claimed string) error {
	derived, err := DeriveKID(pub)
	if err != nil {
		return err
	}
	if derived != claimed {
		return ErrKIDMismatch
	}
	return nil
}
