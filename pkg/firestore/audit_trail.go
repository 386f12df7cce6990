package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// LoginAuditService records hash-chained login-bootstrap events per user.
// Each entry's previousHash links to the prior entry for that user, the same
// append-only pattern the teacher used for its transaction audit trail,
// narrowed here to a single chain per user rather than per user+intent.
type LoginAuditService struct {
	client *Client
	logger *log.Logger

	chainsMu sync.RWMutex
	chains   map[string]string // userID -> latest entry hash
}

// LoginAuditConfig holds configuration for the login audit service.
type LoginAuditConfig struct {
	Client *Client
	Logger *log.Logger
}

// NewLoginAuditService creates a new login audit service.
func NewLoginAuditService(cfg *LoginAuditConfig) (*LoginAuditService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("Firestore client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Session] ", log.LstdFlags)
	}

	return &LoginAuditService{
		client: cfg.Client,
		logger: cfg.Logger,
		chains: make(map[string]string),
	}, nil
}

// IsEnabled returns whether the audit trail service is enabled.
func (a *LoginAuditService) IsEnabled() bool {
	return a.client != nil && a.client.IsEnabled()
}

// RecordLogin appends a login-audit entry for userID.
func (a *LoginAuditService) RecordLogin(ctx context.Context, userID string, phase LoginPhase, provider, action, remoteAddr, userAgent string, details map[string]interface{}) error {
	if !a.IsEnabled() {
		return nil
	}

	previousHash := a.cachedHash(userID)
	if previousHash == "" {
		if prev, err := a.client.GetLatestLoginAuditEntry(ctx, userID); err == nil && prev != nil {
			previousHash = prev.EntryHash
		}
	}

	entry := &LoginAuditEntry{
		Phase:        phase,
		Provider:     provider,
		Action:       action,
		Timestamp:    time.Now(),
		RemoteAddr:   remoteAddr,
		UserAgent:    userAgent,
		PreviousHash: previousHash,
		Details:      details,
	}
	entry.EntryHash = computeEntryHash(entry)

	if err := a.client.CreateLoginAuditEntry(ctx, userID, entry); err != nil {
		return err
	}

	a.chainsMu.Lock()
	a.chains[userID] = entry.EntryHash
	a.chainsMu.Unlock()

	return nil
}

func (a *LoginAuditService) cachedHash(userID string) string {
	a.chainsMu.RLock()
	defer a.chainsMu.RUnlock()
	return a.chains[userID]
}

func computeEntryHash(entry *LoginAuditEntry) string {
	data := map[string]interface{}{
		"phase":        entry.Phase,
		"provider":     entry.Provider,
		"action":       entry.Action,
		"timestamp":    entry.Timestamp.Unix(),
		"previousHash": entry.PreviousHash,
		"details":      entry.Details,
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}
