// Package backup implements the binary-packed backup envelope used to store
// an account's root key material encrypted under a passphrase-derived key.
package backup

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Version is the only backup envelope format version this service writes or accepts.
	Version byte = 0x01
	// KDFArgon2ID is the only key derivation function id this service writes or accepts.
	KDFArgon2ID byte = 0x01

	headerSize      = 42 // version(1) + kdf_id(1) + m_cost(4) + t_cost(4) + p_cost(4) + salt(16) + nonce(12)
	saltSize        = 16
	nonceSize       = 12
	minCiphertext   = 48
	minEnvelopeSize = headerSize + minCiphertext
	maxEnvelopeSize = 4096

	// Argon2id parameter floors. An envelope whose header declares weaker
	// parameters than these is rejected as malformed rather than accepted
	// with weak security.
	minMCost uint32 = 65536
	minTCost uint32 = 3
	minPCost uint32 = 1
)

var (
	ErrTooSmall          = errors.New("backup: envelope smaller than minimum size")
	ErrTooLarge          = errors.New("backup: envelope larger than maximum size")
	ErrUnsupportedVersion = errors.New("backup: unsupported envelope version")
	ErrUnsupportedKDF    = errors.New("backup: unsupported kdf id")
	ErrCiphertextTooSmall = errors.New("backup: ciphertext shorter than minimum size")
	ErrWeakKDFParams     = errors.New("backup: kdf parameters are below the required floor")
)

// Envelope is the parsed form of a backup's binary layout:
//
//	version(1) | kdf_id(1) | m_cost(4 LE) | t_cost(4 LE) | p_cost(4 LE) | salt(16) | nonce(12) | ciphertext(N>=48)
type Envelope struct {
	Version    byte
	KDFID      byte
	MCost      uint32
	TCost      uint32
	PCost      uint32
	Salt       [saltSize]byte
	Nonce      [nonceSize]byte
	Ciphertext []byte
}

// Build assembles an Envelope from its fields, applying the KDF parameter
// floor. The returned bytes are the exact wire format, ready to persist.
func Build(salt [saltSize]byte, mCost, tCost, pCost uint32, nonce [nonceSize]byte, ciphertext []byte) ([]byte, error) {
	if mCost < minMCost || tCost < minTCost || pCost < minPCost {
		return nil, ErrWeakKDFParams
	}
	if len(ciphertext) < minCiphertext {
		return nil, ErrCiphertextTooSmall
	}
	total := headerSize + len(ciphertext)
	if total > maxEnvelopeSize {
		return nil, ErrTooLarge
	}

	out := make([]byte, 0, total)
	out = append(out, Version, KDFArgon2ID)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], mCost)
	out = append(out, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], tCost)
	out = append(out, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], pCost)
	out = append(out, u32[:]...)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// Parse validates and decodes raw bytes into an Envelope, enforcing size
// bounds, the fixed version/kdf id, and the KDF parameter floor.
func Parse(raw []byte) (*Envelope, error) {
	if len(raw) < minEnvelopeSize {
		return nil, ErrTooSmall
	}
	if len(raw) > maxEnvelopeSize {
		return nil, ErrTooLarge
	}

	env := &Envelope{
		Version: raw[0],
		KDFID:   raw[1],
	}
	if env.Version != Version {
		return nil, ErrUnsupportedVersion
	}
	if env.KDFID != KDFArgon2ID {
		return nil, ErrUnsupportedKDF
	}

	env.MCost = binary.LittleEndian.Uint32(raw[2:6])
	env.TCost = binary.LittleEndian.Uint32(raw[6:10])
	env.PCost = binary.LittleEndian.Uint32(raw[10:14])
	if env.MCost < minMCost || env.TCost < minTCost || env.PCost < minPCost {
		return nil, ErrWeakKDFParams
	}

	copy(env.Salt[:], raw[14:14+saltSize])
	copy(env.Nonce[:], raw[14+saltSize:14+saltSize+nonceSize])

	ciphertext := raw[headerSize:]
	if len(ciphertext) < minCiphertext {
		return nil, ErrCiphertextTooSmall
	}
	env.Ciphertext = append([]byte(nil), ciphertext...)
	return env, nil
}

// Bytes re-serializes an already-validated Envelope back to its wire format.
func (e *Envelope) Bytes() ([]byte, error) {
	return Build(e.Salt, e.MCost, e.TCost, e.PCost, e.Nonce, e.Ciphertext)
}

func (e *Envelope) String() string {
	return fmt.Sprintf("backup.Envelope{m=%d,t=%d,p=%d,ciphertext=%d bytes}", e.MCost, e.TCost, e.PCost, len(e.Ciphertext))
}
