package firestore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Client wraps the Firestore client used for the login-audit trail.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// ClientConfig holds configuration for the Firestore client.
type ClientConfig struct {
	// ProjectID is the Firebase/GCP project ID.
	ProjectID string

	// CredentialsFile is the path to the service account JSON file.
	// If empty, uses GOOGLE_APPLICATION_CREDENTIALS environment variable.
	CredentialsFile string

	// Enabled controls whether Firestore operations are actually performed.
	// If false, all operations are no-ops (useful for local development).
	Enabled bool

	// Logger for client operations.
	Logger *log.Logger
}

// DefaultConfig returns a ClientConfig with values from environment variables.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		Enabled:         getEnvBool("FIRESTORE_ENABLED", false),
		Logger:          log.New(os.Stdout, "[Firestore] ", log.LstdFlags),
	}
}

// NewClient creates a new Firestore client. If cfg.Enabled is false, it
// returns a no-op client that never contacts Firestore — useful for local
// development and for any deployment that does not need the login-audit
// trail.
func NewClient(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[Firestore] ", log.LstdFlags)
	}

	client := &Client{
		projectID: cfg.ProjectID,
		logger:    cfg.Logger,
		enabled:   cfg.Enabled,
	}

	if !cfg.Enabled {
		cfg.Logger.Println("Firestore login-audit trail is DISABLED - running in no-op mode")
		return client, nil
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required when Firestore is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	appConfig := &firebase.Config{ProjectID: cfg.ProjectID}
	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	client.app = app
	client.firestore = firestoreClient

	cfg.Logger.Printf("Firestore client initialized for project: %s", cfg.ProjectID)
	return client, nil
}

// App returns the underlying Firebase app, or nil if disabled. Used by
// pkg/session to obtain a Firebase Auth client for ID-token verification
// without opening a second Firebase app.
func (c *Client) App() *firebase.App {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.app
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled returns whether Firestore sync is enabled.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// CreateLoginAuditEntry writes a single login-audit entry for userID.
func (c *Client) CreateLoginAuditEntry(ctx context.Context, userID string, entry *LoginAuditEntry) error {
	if !c.IsEnabled() {
		c.logger.Printf("Firestore disabled - skipping login audit entry for user=%s phase=%s", userID, entry.Phase)
		return nil
	}
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("%s_%d", entry.Phase, entry.Timestamp.UnixNano())
	}

	docPath := fmt.Sprintf("users/%s/loginAuditTrail/%s", userID, entry.EntryID)
	_, err := c.firestore.Doc(docPath).Set(ctx, map[string]interface{}{
		"phase":        entry.Phase,
		"provider":     entry.Provider,
		"action":       entry.Action,
		"timestamp":    entry.Timestamp,
		"remoteAddr":   entry.RemoteAddr,
		"userAgent":    entry.UserAgent,
		"previousHash": entry.PreviousHash,
		"entryHash":    entry.EntryHash,
		"details":      entry.Details,
	})
	if err != nil {
		c.logger.Printf("Failed to create login audit entry: %v", err)
		return fmt.Errorf("failed to create login audit entry: %w", err)
	}
	return nil
}

// GetLatestLoginAuditEntry retrieves the most recent login-audit entry for a
// user, used to chain the next entry's previousHash.
func (c *Client) GetLatestLoginAuditEntry(ctx context.Context, userID string) (*LoginAuditEntry, error) {
	if !c.IsEnabled() {
		return nil, nil
	}

	collPath := fmt.Sprintf("users/%s/loginAuditTrail", userID)
	query := c.firestore.Collection(collPath).OrderBy("timestamp", gcpfirestore.Desc).Limit(1)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query login audit trail: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var entry LoginAuditEntry
	if err := docs[0].DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to parse login audit entry: %w", err)
	}
	entry.EntryID = docs[0].Ref.ID
	return &entry, nil
}

// Health checks if the Firestore connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	if c.firestore == nil {
		return fmt.Errorf("Firestore client not initialized")
	}
	_, err := c.firestore.Collection("_health_check").Doc("ping").Get(ctx)
	if err != nil {
		// NotFound is expected and means the connection itself is healthy.
		_ = err
	}
	return nil
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1" || val == "yes"
}
