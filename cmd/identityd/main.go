// Command identityd runs the federated identity core's HTTP API: account
// signup, multi-device delegation, endorsements and reputation, threshold
// social recovery, and the OAuth/Firebase session login bootstrap.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	firebase "firebase.google.com/go/v4"

	"github.com/sigil-id/identity/pkg/config"
	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/firestore"
	"github.com/sigil-id/identity/pkg/identity"
	"github.com/sigil-id/identity/pkg/metrics"
	"github.com/sigil-id/identity/pkg/noncestore"
	"github.com/sigil-id/identity/pkg/requestauth"
	"github.com/sigil-id/identity/pkg/server"
	"github.com/sigil-id/identity/pkg/session"
)

func main() {
	log.Printf("🚀 Starting identity core service")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := server.NewHealthStatus()

	log.Println("🗄️ [Phase 1] Connecting to database...")
	dbClient, err := database.NewClient(cfg)
	if err != nil {
		if cfg.DatabaseRequired {
			log.Fatalf("❌ [Phase 1] Database connection required but failed: %v", err)
		}
		log.Printf("⚠️ [Phase 1] Database connection failed - running in degraded mode: %v", err)
		health.SetDatabase(false)
	} else {
		defer dbClient.Close()
		if err := dbClient.MigrateUp(ctx); err != nil {
			log.Fatalf("❌ [Phase 1] Database migration failed: %v", err)
		}
		log.Println("✅ [Phase 1] Connected to database and applied migrations")
		health.SetDatabase(true)
	}

	accounts := database.NewAccountRepository(dbClient)
	devices := database.NewDeviceRepository(dbClient)
	events := database.NewSignedEventRepository(dbClient)
	endorsements := database.NewEndorsementRepository(dbClient)
	recovery := database.NewRecoveryRepository(dbClient)
	backups := database.NewBackupRepository(dbClient)
	sessions := database.NewSessionRepository(dbClient)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	identitySvc := identity.NewService(dbClient, identity.Repositories{
		Accounts:     accounts,
		Devices:      devices,
		Events:       events,
		Endorsements: endorsements,
		Recovery:     recovery,
		Backups:      backups,
	}, m, cfg)

	log.Println("🔑 [Phase 2] Setting up the signed-request nonce store...")
	var nonceStore requestauth.NonceStore
	var noncestoreHandle *noncestore.Store
	if cfg.NonceStoreBackend == "leveldb" {
		noncestoreHandle, err = noncestore.Open("nonces", cfg.NonceStorePath)
		if err != nil {
			log.Fatalf("❌ [Phase 2] Failed to open leveldb nonce store: %v", err)
		}
		defer noncestoreHandle.Close()
		nonceStore = noncestoreHandle
		log.Printf("✅ [Phase 2] Nonce store backed by leveldb at %s", cfg.NonceStorePath)
	} else {
		nonceStore = database.NewNonceRepository(dbClient)
		log.Println("✅ [Phase 2] Nonce store backed by postgres")
	}
	verifier := requestauth.NewVerifier(devices, nonceStore, nil)

	log.Println("🔥 [Phase 3] Setting up Firestore login-audit trail...")
	var auditService *firestore.LoginAuditService
	var firestoreClient *firestore.Client
	var firebaseApp *firebase.App
	firestoreClient, firestoreErr := firestore.NewClient(ctx, &firestore.ClientConfig{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredsFile,
		Enabled:         cfg.FirestoreEnabled,
	})
	if firestoreErr != nil {
		log.Printf("⚠️ [Phase 3] Failed to create Firestore client: %v", firestoreErr)
		log.Println("   Login audit trail DISABLED")
	} else {
		defer firestoreClient.Close()
		auditService, err = firestore.NewLoginAuditService(&firestore.LoginAuditConfig{Client: firestoreClient})
		if err != nil {
			log.Printf("⚠️ [Phase 3] Failed to create login audit service: %v", err)
		} else {
			log.Println("✅ [Phase 3] Login audit trail ready")
		}
		firebaseApp = firestoreClient.App()
	}

	log.Println("🔐 [Phase 4] Setting up session login bootstrap...")
	sessionSvc, err := session.NewService(ctx, session.Config{
		SessionJWTSecret: cfg.SessionJWTSecret,
		SessionTTL:       cfg.SessionTTL,
		Google: session.GoogleConfig{
			ClientID:     cfg.GoogleOAuthClientID,
			ClientSecret: cfg.GoogleOAuthSecret,
			RedirectURL:  cfg.GoogleOAuthRedirect,
		},
		FirebaseApp: firebaseApp,
	}, sessions, auditService, m)
	if err != nil {
		log.Fatalf("❌ [Phase 4] Failed to set up session service: %v", err)
	}
	log.Println("✅ [Phase 4] Session login bootstrap ready")

	log.Println("🌐 [Phase 5] Configuring HTTP surface...")
	var dbPing func(context.Context) error
	if dbClient != nil {
		dbPing = dbClient.Ping
	}
	mux := server.NewRouter(server.Dependencies{
		Identity:     identitySvc,
		Sessions:     sessionSvc,
		Accounts:     accounts,
		Devices:      devices,
		Endorsements: endorsements,
		Recovery:     recovery,
		Verifier:     verifier,
		Metrics:      m,
		Health:       health,
		DatabasePing: dbPing,
	})
	log.Println("✅ [Phase 5] HTTP surface configured:")
	log.Println("   - POST /v1/accounts")
	log.Println("   - GET  /v1/accounts/{account_id}")
	log.Println("   - POST /v1/accounts/{account_id}/devices")
	log.Println("   - GET  /v1/accounts/{account_id}/devices")
	log.Println("   - POST /v1/accounts/{account_id}/devices/{device_id}/revoke")
	log.Println("   - POST /v1/endorsements")
	log.Println("   - POST /v1/endorsements/{endorsement_id}/revoke")
	log.Println("   - GET  /v1/endorsements/aggregate")
	log.Println("   - GET  /v1/reputation/{account_id}")
	log.Println("   - PUT  /v1/accounts/{account_id}/recovery-policy")
	log.Println("   - GET  /v1/accounts/{account_id}/recovery-policy")
	log.Println("   - POST /v1/accounts/{account_id}/recovery-approvals")
	log.Println("   - POST /v1/accounts/{account_id}/recovery-rotate")
	log.Println("   - GET|POST /v1/sessions/login")
	log.Println("   - GET  /v1/health")
	log.Println("   - GET  /metrics")

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("🌐 Identity API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start HTTP server: %v", err)
		}
	}()

	log.Println("✅ Identity core ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down identity core...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("✅ Identity core stopped")
}
