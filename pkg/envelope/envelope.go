// Package envelope implements the signed envelope that wraps every payload
// appended to an account's sigchain: crypto/ed25519 signatures over an
// RFC 8785 canonical encoding of the payload and its signer.
package envelope

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigil-id/identity/pkg/idcrypto"
)

// EnvelopeVersion is the only signing envelope version this service accepts.
const EnvelopeVersion = 1

var (
	// ErrUnsupportedVersion is returned for an envelope whose v field is not EnvelopeVersion.
	ErrUnsupportedVersion = errors.New("envelope: unsupported version")
	// ErrMalformedPrevHash is returned when prev_hash is present but not valid base64url.
	ErrMalformedPrevHash = errors.New("envelope: prev_hash is not valid base64url")
)

// Signer identifies the key that produced an envelope's signature. KID is
// always set; AccountID and DeviceID are optional claims (a root-signed
// envelope may name its account, a device-signed one its device, and a
// device-signed event may name both). Verify checks only KID against the
// signing key; callers compare the optional claims where they use them.
type Signer struct {
	AccountID *string `json:"account_id,omitempty"`
	DeviceID  *string `json:"device_id,omitempty"`
	KID       string  `json:"kid"`
}

// SignedEnvelope is the wire format for every sigchain payload.
type SignedEnvelope struct {
	V           int             `json:"v"`
	PayloadType string          `json:"payload_type"`
	Payload     json.RawMessage `json:"payload"`
	Signer      Signer          `json:"signer"`
	Sig         string          `json:"sig"`
}

// signingView is the subset of fields that participate in the canonical
// signing bytes: payload_type, payload, signer — v and sig are excluded.
type signingView struct {
	PayloadType string          `json:"payload_type"`
	Payload     json.RawMessage `json:"payload"`
	Signer      Signer          `json:"signer"`
}

// CanonicalSigningBytes returns the RFC 8785 canonical JSON of
// {payload_type, payload, signer}, the exact bytes that are signed and verified.
func (e *SignedEnvelope) CanonicalSigningBytes() ([]byte, error) {
	view := signingView{
		PayloadType: e.PayloadType,
		Payload:     e.Payload,
		Signer:      e.Signer,
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal signing view: %w", err)
	}
	canon, err := idcrypto.CanonicalizeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: canonicalize signing view: %w", err)
	}
	return canon, nil
}

// SignatureBytes decodes the envelope's base64url signature field.
func (e *SignedEnvelope) SignatureBytes() ([]byte, error) {
	sig, err := idcrypto.DecodeBase64URL(e.Sig)
	if err != nil {
		return nil, fmt.Errorf("envelope: decode signature: %w", err)
	}
	return sig, nil
}

// Sign populates Sig with a signature over CanonicalSigningBytes() under priv.
func (e *SignedEnvelope) Sign(priv ed25519.PrivateKey) error {
	bytesToSign, err := e.CanonicalSigningBytes()
	if err != nil {
		return err
	}
	sig, err := idcrypto.Sign(priv, bytesToSign)
	if err != nil {
		return err
	}
	e.Sig = idcrypto.EncodeBase64URL(sig)
	return nil
}

// Verify checks e's signature against pub and confirms the signer's claimed
// kid matches pub's derived kid, in that order: a signature must verify
// before a kid mismatch is reported, matching the ordering used by
// requestauth's revocation check so both failure paths are uniformly shaped.
func (e *SignedEnvelope) Verify(pub ed25519.PublicKey) error {
	if e.V != EnvelopeVersion {
		return ErrUnsupportedVersion
	}
	bytesToVerify, err := e.CanonicalSigningBytes()
	if err != nil {
		return err
	}
	sig, err := e.SignatureBytes()
	if err != nil {
		return err
	}
	if err := idcrypto.Verify(pub, bytesToVerify, sig); err != nil {
		return err
	}
	return idcrypto.CheckKID(pub, e.Signer.KID)
}

// ExtractPrevHash decodes a payload's optional prev_hash field. It returns
// (nil, nil) when the field is absent or null, an error if present but not
// valid base64url, and the decoded bytes otherwise.
func ExtractPrevHash(prevHash *string) ([]byte, error) {
	if prevHash == nil {
		return nil, nil
	}
	decoded, err := idcrypto.DecodeBase64URL(*prevHash)
	if err != nil {
		return nil, ErrMalformedPrevHash
	}
	return decoded, nil
}
