package database_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/config"
	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/idcrypto"
)

// testClient connects to a real Postgres database configured via
// IDENTITY_TEST_DATABASE_URL and migrates it; tests using it are skipped
// when the variable is unset, matching pkg/identity's integration tests.
func testClient(t *testing.T) *database.Client {
	t.Helper()
	dsn := os.Getenv("IDENTITY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("IDENTITY_TEST_DATABASE_URL not configured")
	}
	cfg := &config.Config{
		DatabaseURL:         dsn,
		DatabaseMaxConns:    5,
		DatabaseMinConns:    1,
		DatabaseMaxIdleTime: 300,
		DatabaseMaxLifetime: 3600,
	}
	client, err := database.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.MigrateUp(context.Background()); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	return client
}

// createTestAccountAndDevice inserts a bare account and one active device
// directly through the repository layer, bypassing the sigchain append
// pkg/identity normally requires, for tests that only exercise a single
// repository in isolation.
func createTestAccountAndDevice(t *testing.T, client *database.Client) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	rootPub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair (root): %v", err)
	}
	rootKID, err := idcrypto.DeriveKID(rootPub)
	if err != nil {
		t.Fatalf("DeriveKID (root): %v", err)
	}
	devicePub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair (device): %v", err)
	}
	deviceKID, err := idcrypto.DeriveKID(devicePub)
	if err != nil {
		t.Fatalf("DeriveKID (device): %v", err)
	}

	accountID := uuid.New()
	deviceID := uuid.New()

	tx, err := client.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer tx.Rollback()

	accounts := database.NewAccountRepository(client)
	username := "user-" + accountID.String()
	if _, err := accounts.CreateInTx(ctx, tx, accountID, username, rootKID, rootPub); err != nil {
		t.Fatalf("CreateInTx (account): %v", err)
	}

	devices := database.NewDeviceRepository(client)
	device := &database.Device{
		DeviceID:     deviceID,
		AccountID:    accountID,
		DeviceKID:    deviceKID,
		DevicePubkey: devicePub,
		GrantedAtSeq: 1,
	}
	if err := devices.CreateInTx(ctx, tx, device); err != nil {
		t.Fatalf("CreateInTx (device): %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return accountID, deviceID
}
