package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/config"
	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/envelope"
	"github.com/sigil-id/identity/pkg/idcrypto"
)

// testClient connects to a real Postgres database configured via
// IDENTITY_TEST_DATABASE_URL and migrates it; tests using it are skipped
// when the variable is unset, matching how this service's other
// integration tests are gated.
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

func testService(t *testing.T) *Service {
	t.Helper()
	client := testClient(t)
	repos := Repositories{
		Accounts:     database.NewAccountRepository(client),
		Devices:      database.NewDeviceRepository(client),
		Events:       database.NewSignedEventRepository(client),
		Endorsements: database.NewEndorsementRepository(client),
		Recovery:     database.NewRecoveryRepository(client),
		Backups:      database.NewBackupRepository(client),
	}
	return NewService(client, repos, nil, nil)
}

// signEnvelope builds and signs a v1 envelope carrying payload, signed by
// priv and claiming kid. accountID and deviceID become the signer's optional
// account_id/device_id claims; either may be nil.
func signEnvelope(t *testing.T, payloadType string, payload interface{}, priv ed25519.PrivateKey, kid string, accountID, deviceID *string) *envelope.SignedEnvelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env := &envelope.SignedEnvelope{
		V:           envelope.EnvelopeVersion,
		PayloadType: payloadType,
		Payload:     raw,
		Signer:      envelope.Signer{AccountID: accountID, DeviceID: deviceID, KID: kid},
	}
	if err := env.Sign(priv); err != nil {
		t.Fatalf("sign envelope: %v", err)
	}
	return env
}

type chainedPayload struct {
	Seqno    int64   `json:"seqno"`
	PrevHash *string `json:"prev_hash,omitempty"`
}

func TestSignupAndAddDevice(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	rootPub, rootPriv, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate root keypair: %v", err)
	}
	rootKID, err := idcrypto.DeriveKID(rootPub)
	if err != nil {
		t.Fatalf("derive root kid: %v", err)
	}
	devicePub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate device keypair: %v", err)
	}
	deviceID := uuid.New()

	genesisPayload := struct {
		chainedPayload
		devicePayload
	}{
		chainedPayload: chainedPayload{Seqno: 1},
		devicePayload:  devicePayload{DeviceID: deviceID.String(), DevicePubkey: idcrypto.EncodeBase64URL(devicePub)},
	}
	env := signEnvelope(t, PayloadAccountCreated, genesisPayload, rootPriv, rootKID, nil, nil)

	result, err := svc.Signup(ctx, SignupRequest{
		Username:     "user-" + uuid.New().String(),
		RootPubkey:   rootPub,
		DeviceID:     deviceID,
		DevicePubkey: devicePub,
		Envelope:     env,
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if result.Account.RootKID != rootKID {
		t.Fatalf("unexpected root kid: %s", result.Account.RootKID)
	}
	if result.Device.GrantedAtSeq != 1 {
		t.Fatalf("expected genesis device granted at seqno 1, got %d", result.Device.GrantedAtSeq)
	}

	secondDevicePub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate second device keypair: %v", err)
	}
	secondDeviceID := uuid.New()

	prevHash := result.Event.CanonicalBytesHash
	addPayload := struct {
		chainedPayload
		devicePayload
	}{
		chainedPayload: chainedPayload{Seqno: 2, PrevHash: &prevHash},
		devicePayload:  devicePayload{DeviceID: secondDeviceID.String(), DevicePubkey: idcrypto.EncodeBase64URL(secondDevicePub)},
	}
	addEnv := signEnvelope(t, PayloadDeviceDelegation, addPayload, rootPriv, rootKID, nil, nil)

	device, event, err := svc.AddDevice(ctx, AddDeviceRequest{
		AccountID:    result.Account.AccountID,
		DeviceID:     secondDeviceID,
		DevicePubkey: secondDevicePub,
		Envelope:     addEnv,
	})
	if err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if event.Seqno != 2 {
		t.Fatalf("expected seqno 2, got %d", event.Seqno)
	}
	if !device.IsActive() {
		t.Fatal("expected newly added device to be active")
	}
}

func TestAddDeviceRejectsStalePrevHash(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	rootPub, rootPriv, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate root keypair: %v", err)
	}
	rootKID, err := idcrypto.DeriveKID(rootPub)
	if err != nil {
		t.Fatalf("derive root kid: %v", err)
	}
	devicePub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate device keypair: %v", err)
	}
	deviceID := uuid.New()

	genesisPayload := struct {
		chainedPayload
		devicePayload
	}{
		chainedPayload: chainedPayload{Seqno: 1},
		devicePayload:  devicePayload{DeviceID: deviceID.String(), DevicePubkey: idcrypto.EncodeBase64URL(devicePub)},
	}
	env := signEnvelope(t, PayloadAccountCreated, genesisPayload, rootPriv, rootKID, nil, nil)
	result, err := svc.Signup(ctx, SignupRequest{
		Username:     "user-" + uuid.New().String(),
		RootPubkey:   rootPub,
		DeviceID:     deviceID,
		DevicePubkey: devicePub,
		Envelope:     env,
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	badPrevHash := idcrypto.EncodeBase64URL([]byte("not-the-real-previous-hash-value"))
	secondDevicePub, _, err := idcrypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate second device keypair: %v", err)
	}
	secondDeviceID := uuid.New()
	addPayload := struct {
		chainedPayload
		devicePayload
	}{
		chainedPayload: chainedPayload{Seqno: 2, PrevHash: &badPrevHash},
		devicePayload:  devicePayload{DeviceID: secondDeviceID.String(), DevicePubkey: idcrypto.EncodeBase64URL(secondDevicePub)},
	}
	addEnv := signEnvelope(t, PayloadDeviceDelegation, addPayload, rootPriv, rootKID, nil, nil)

	_, _, err = svc.AddDevice(ctx, AddDeviceRequest{
		AccountID:    result.Account.AccountID,
		DeviceID:     secondDeviceID,
		DevicePubkey: secondDevicePub,
		Envelope:     addEnv,
	})
	if err == nil {
		t.Fatal("expected AddDevice to reject a stale prev_hash")
	}
}
