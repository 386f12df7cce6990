package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DeviceRepository handles device delegation projection operations.
type DeviceRepository struct {
	client *Client
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(client *Client) *DeviceRepository {
	return &DeviceRepository{client: client}
}

// CountActiveInTx counts active devices for accountID within tx. Must be
// called against an account row already locked with
// AccountRepository.GetForUpdate so the count and the subsequent insert are
// serialized against concurrent add_device calls for the same account.
func (r *DeviceRepository) CountActiveInTx(ctx context.Context, tx *Tx, accountID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM devices WHERE account_id = $1 AND revoked_at_seq IS NULL`
	var count int
	if err := tx.Tx().QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active devices: %w", err)
	}
	return count, nil
}

// CreateInTx inserts a new active device delegation row within tx.
func (r *DeviceRepository) CreateInTx(ctx context.Context, tx *Tx, device *Device) error {
	query := `
		INSERT INTO devices (device_id, account_id, device_kid, device_pubkey, granted_at_seq, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at`

	err := tx.Tx().QueryRowContext(ctx, query,
		device.DeviceID, device.AccountID, device.DeviceKID, device.DevicePubkey, device.GrantedAtSeq,
	).Scan(&device.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// Get retrieves a device by id.
func (r *DeviceRepository) Get(ctx context.Context, deviceID uuid.UUID) (*Device, error) {
	query := `
		SELECT device_id, account_id, device_kid, device_pubkey, granted_at_seq,
			revoked_at_seq, created_at, revoked_at, last_used_at
		FROM devices
		WHERE device_id = $1`

	device := &Device{}
	err := r.client.QueryRowContext(ctx, query, deviceID).Scan(
		&device.DeviceID, &device.AccountID, &device.DeviceKID, &device.DevicePubkey, &device.GrantedAtSeq,
		&device.RevokedAtSeq, &device.CreatedAt, &device.RevokedAt, &device.LastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// GetByKID retrieves a device by its key id, regardless of active/revoked
// state — callers must check IsActive() themselves. This is deliberate: the
// request-auth path looks a device up by kid and verifies its signature
// before it is allowed to learn whether the device is active, known, or
// unknown, so this lookup must not itself distinguish those cases.
func (r *DeviceRepository) GetByKID(ctx context.Context, deviceKID string) (*Device, error) {
	query := `
		SELECT device_id, account_id, device_kid, device_pubkey, granted_at_seq,
			revoked_at_seq, created_at, revoked_at, last_used_at
		FROM devices
		WHERE device_kid = $1`

	device := &Device{}
	err := r.client.QueryRowContext(ctx, query, deviceKID).Scan(
		&device.DeviceID, &device.AccountID, &device.DeviceKID, &device.DevicePubkey, &device.GrantedAtSeq,
		&device.RevokedAtSeq, &device.CreatedAt, &device.RevokedAt, &device.LastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device by kid: %w", err)
	}
	return device, nil
}

// ListActive returns all active devices for an account.
func (r *DeviceRepository) ListActive(ctx context.Context, accountID uuid.UUID) ([]*Device, error) {
	query := `
		SELECT device_id, account_id, device_kid, device_pubkey, granted_at_seq,
			revoked_at_seq, created_at, revoked_at, last_used_at
		FROM devices
		WHERE account_id = $1 AND revoked_at_seq IS NULL
		ORDER BY created_at ASC`

	rows, err := r.client.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device := &Device{}
		if err := rows.Scan(
			&device.DeviceID, &device.AccountID, &device.DeviceKID, &device.DevicePubkey, &device.GrantedAtSeq,
			&device.RevokedAtSeq, &device.CreatedAt, &device.RevokedAt, &device.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// RevokeInTx marks a device revoked as of revokedAtSeq within tx. No-op
// (but not an error) if the device was already revoked, since revocation is
// terminal and idempotent at the projection layer.
func (r *DeviceRepository) RevokeInTx(ctx context.Context, tx *Tx, deviceID uuid.UUID, revokedAtSeq int64) error {
	query := `
		UPDATE devices
		SET revoked_at_seq = $2, revoked_at = now()
		WHERE device_id = $1 AND revoked_at_seq IS NULL`

	_, err := tx.Tx().ExecContext(ctx, query, deviceID, revokedAtSeq)
	if err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
	}
	return nil
}

// RevokeAllActiveInTx revokes every currently-active device for accountID as
// part of a root rotation, returning the ids revoked.
func (r *DeviceRepository) RevokeAllActiveInTx(ctx context.Context, tx *Tx, accountID uuid.UUID, revokedAtSeq int64) ([]uuid.UUID, error) {
	query := `
		UPDATE devices
		SET revoked_at_seq = $2, revoked_at = now()
		WHERE account_id = $1 AND revoked_at_seq IS NULL
		RETURNING device_id`

	rows, err := tx.Tx().QueryContext(ctx, query, accountID, revokedAtSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke all active devices: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan revoked device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchLastUsed updates last_used_at for a device. Callers treat failures
// here as non-fatal to the calling request.
func (r *DeviceRepository) TouchLastUsed(ctx context.Context, deviceID uuid.UUID) error {
	query := `UPDATE devices SET last_used_at = now() WHERE device_id = $1`
	_, err := r.client.ExecContext(ctx, query, deviceID)
	if err != nil {
		return fmt.Errorf("failed to touch device last_used_at: %w", err)
	}
	return nil
}
