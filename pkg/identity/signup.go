package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/idcrypto"
	"github.com/sigil-id/identity/pkg/sigchain"
)

// SignupRequest describes a new account: a username, a root keypair, and
// its first (genesis) device, delegated by a root-signed envelope carrying
// a devicePayload at seqno 1 with no prev_hash. BackupEnvelope is an
// optional sealed backup of the root key material, stored alongside the
// account if present.
type SignupRequest struct {
	Username       string
	RootPubkey     ed25519.PublicKey
	DeviceID       uuid.UUID
	DevicePubkey   ed25519.PublicKey
	Envelope       *envelope.SignedEnvelope
	BackupEnvelope []byte
}

// SignupResult is the created account and its genesis device.
type SignupResult struct {
	Account *database.Account
	Device  *database.Device
	Event   *database.SignedEvent
}

// Signup creates a new account, its root key record, and its genesis device
// delegation in a single transaction.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, ErrInvalidUsername
	}

	rootKID, err := idcrypto.DeriveKID(req.RootPubkey)
	if err != nil {
		return nil, fmt.Errorf("identity: derive root kid: %w", err)
	}
	if req.Envelope.Signer.KID != rootKID {
		return nil, ErrSignerMismatch
	}
	if err := verifyEnvelope(req.Envelope, req.RootPubkey); err != nil {
		return nil, err
	}

	var payload devicePayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, err
	}
	devicePubkeyBytes, err := idcrypto.DecodeBase64URL(payload.DevicePubkey)
	if err != nil {
		return nil, fmt.Errorf("identity: decode device_pubkey: %w", err)
	}
	if string(devicePubkeyBytes) != string(req.DevicePubkey) {
		return nil, fmt.Errorf("identity: payload device_pubkey does not match provided device key")
	}
	if payload.DeviceID != req.DeviceID.String() {
		return nil, fmt.Errorf("identity: payload device_id does not match provided device id")
	}

	accountID := uuid.New()
	deviceKID, err := idcrypto.DeriveKID(req.DevicePubkey)
	if err != nil {
		return nil, fmt.Errorf("identity: derive device kid: %w", err)
	}

	result := &SignupResult{}
	err = s.withTx(ctx, func(tx *database.Tx) error {
		account, err := s.repos.Accounts.CreateInTx(ctx, tx, accountID, username, rootKID, req.RootPubkey)
		if err != nil {
			if err == database.ErrDuplicateUsername {
				return err
			}
			return fmt.Errorf("identity: create account: %w", err)
		}

		event, err := sigchain.Append(ctx, s.repos.Events, tx, accountID, PayloadAccountCreated, req.Envelope, req.RootPubkey)
		s.recordAppend(PayloadAccountCreated, err)
		if err != nil {
			return fmt.Errorf("identity: append genesis event: %w", err)
		}

		device := &database.Device{
			DeviceID:     req.DeviceID,
			AccountID:    accountID,
			DeviceKID:    deviceKID,
			DevicePubkey: req.DevicePubkey,
			GrantedAtSeq: event.Seqno,
		}
		if err := s.repos.Devices.CreateInTx(ctx, tx, device); err != nil {
			return fmt.Errorf("identity: create genesis device: %w", err)
		}

		if len(req.BackupEnvelope) > 0 {
			if err := s.repos.Backups.CreateInTx(ctx, tx, uuid.New(), accountID, req.BackupEnvelope); err != nil {
				return fmt.Errorf("identity: store account backup: %w", err)
			}
		}

		result.Account = account
		result.Device = device
		result.Event = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
