package backup

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultMCost, DefaultTCost and DefaultPCost are the parameters used for
// newly sealed envelopes. They sit comfortably above the floor enforced by
// Parse/Build so envelopes this service produces are never rejected by its
// own validation.
const (
	DefaultMCost uint32 = 262144
	DefaultTCost uint32 = 4
	DefaultPCost uint8  = 1
)

// Seal derives a ChaCha20-Poly1305 key from passphrase via Argon2id and
// encrypts plaintext (e.g. an account's root private key material),
// returning a ready-to-persist backup envelope.
func Seal(passphrase, plaintext []byte) ([]byte, error) {
	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("backup: generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("backup: generate nonce: %w", err)
	}

	key := argon2.IDKey(passphrase, salt[:], DefaultTCost, DefaultMCost, DefaultPCost, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("backup: init aead: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)

	return Build(salt, DefaultMCost, DefaultTCost, uint32(DefaultPCost), nonce, ciphertext)
}

// Open decrypts a parsed envelope with passphrase, re-deriving the Argon2id
// key from the envelope's own (floor-validated) parameters.
func Open(env *Envelope, passphrase []byte) ([]byte, error) {
	key := argon2.IDKey(passphrase, env.Salt[:], env.TCost, env.MCost, uint8(env.PCost), chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("backup: init aead: %w", err)
	}
	plaintext, err := aead.Open(nil, env.Nonce[:], env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("backup: decrypt: %w", err)
	}
	return plaintext, nil
}
