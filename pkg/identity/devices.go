package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/idcrypto"
	"github.com/sigil-id/identity/pkg/sigchain"
)

// AddDeviceRequest delegates a new device under accountID's current root key.
type AddDeviceRequest struct {
	AccountID    uuid.UUID
	DeviceID     uuid.UUID
	DevicePubkey ed25519.PublicKey
	Envelope     *envelope.SignedEnvelope
}

// AddDevice verifies a root-signed delegation and appends it, enforcing
// MaxActiveDevices, in a single transaction. The account row is locked with
// AccountRepository.GetForUpdate before the active-device count is read so a
// concurrent AddDevice call for the same account cannot both observe room
// under the limit and both insert.
func (s *Service) AddDevice(ctx context.Context, req AddDeviceRequest) (*database.Device, *database.SignedEvent, error) {
	var payload devicePayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, nil, err
	}
	devicePubkeyBytes, err := idcrypto.DecodeBase64URL(payload.DevicePubkey)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: decode device_pubkey: %w", err)
	}
	if string(devicePubkeyBytes) != string(req.DevicePubkey) {
		return nil, nil, fmt.Errorf("identity: payload device_pubkey does not match provided device key")
	}
	if payload.DeviceID != req.DeviceID.String() {
		return nil, nil, fmt.Errorf("identity: payload device_id does not match provided device id")
	}
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, nil, err
	}

	deviceKID, err := idcrypto.DeriveKID(req.DevicePubkey)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: derive device kid: %w", err)
	}

	var device *database.Device
	var event *database.SignedEvent
	err = s.withTx(ctx, func(tx *database.Tx) error {
		account, err := s.repos.Accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return fmt.Errorf("identity: load account: %w", err)
		}
		if req.Envelope.Signer.KID != account.RootKID {
			return ErrSignerMismatch
		}
		if err := verifyEnvelope(req.Envelope, ed25519.PublicKey(account.RootPubkey)); err != nil {
			return err
		}

		active, err := s.repos.Devices.CountActiveInTx(ctx, tx, req.AccountID)
		if err != nil {
			return fmt.Errorf("identity: count active devices: %w", err)
		}
		if active >= s.maxActiveDevices {
			return ErrDeviceLimitExceeded
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadDeviceDelegation, req.Envelope, ed25519.PublicKey(account.RootPubkey))
		s.recordAppend(PayloadDeviceDelegation, err)
		if err != nil {
			return fmt.Errorf("identity: append device delegation: %w", err)
		}

		newDevice := &database.Device{
			DeviceID:     req.DeviceID,
			AccountID:    req.AccountID,
			DeviceKID:    deviceKID,
			DevicePubkey: req.DevicePubkey,
			GrantedAtSeq: appended.Seqno,
		}
		if err := s.repos.Devices.CreateInTx(ctx, tx, newDevice); err != nil {
			return fmt.Errorf("identity: create device: %w", err)
		}

		if s.metrics != nil {
			s.metrics.ActiveDevicesGauge.WithLabelValues(req.AccountID.String()).Set(float64(active + 1))
		}

		device = newDevice
		event = appended
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return device, event, nil
}

// RevokeDeviceRequest revokes an active device delegation under accountID's
// current root key.
type RevokeDeviceRequest struct {
	AccountID uuid.UUID
	DeviceID  uuid.UUID
	Envelope  *envelope.SignedEnvelope
}

// RevokeDevice verifies a root-signed revocation and appends it, terminating
// the named device's delegation, in a single transaction.
func (s *Service) RevokeDevice(ctx context.Context, req RevokeDeviceRequest) (*database.SignedEvent, error) {
	var payload deviceRevocationPayload
	if err := decodePayload(req.Envelope, &payload); err != nil {
		return nil, err
	}
	if payload.DeviceID != req.DeviceID.String() {
		return nil, fmt.Errorf("identity: payload device_id does not match provided device id")
	}
	if err := checkAccountIDClaim(req.Envelope, req.AccountID); err != nil {
		return nil, err
	}

	var event *database.SignedEvent
	err := s.withTx(ctx, func(tx *database.Tx) error {
		account, err := s.repos.Accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return fmt.Errorf("identity: load account: %w", err)
		}
		if req.Envelope.Signer.KID != account.RootKID {
			return ErrSignerMismatch
		}
		if err := verifyEnvelope(req.Envelope, ed25519.PublicKey(account.RootPubkey)); err != nil {
			return err
		}

		device, err := s.repos.Devices.Get(ctx, req.DeviceID)
		if err != nil {
			return fmt.Errorf("identity: load device: %w", err)
		}
		if device.AccountID != req.AccountID {
			return ErrDeviceNotActive
		}
		if !device.IsActive() {
			return ErrDeviceAlreadyRevoked
		}

		appended, err := sigchain.Append(ctx, s.repos.Events, tx, req.AccountID, PayloadDeviceRevocation, req.Envelope, ed25519.PublicKey(account.RootPubkey))
		s.recordAppend(PayloadDeviceRevocation, err)
		if err != nil {
			return fmt.Errorf("identity: append device revocation: %w", err)
		}

		if err := s.repos.Devices.RevokeInTx(ctx, tx, req.DeviceID, appended.Seqno); err != nil {
			return fmt.Errorf("identity: revoke device: %w", err)
		}

		event = appended
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
