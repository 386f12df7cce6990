// Package session bootstraps ambient, convenience login sessions via Google
// OAuth2 or Firebase ID tokens. It mints short-lived session JWTs and links
// federated identities to a users/oauth_identities row, but it never
// authenticates a chain-mutating request on its own — every device,
// endorsement, and recovery operation still goes through the signed-header
// device authentication in pkg/requestauth, and signup is authenticated by
// its root-signed envelope.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/google/uuid"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/firestore"
	"github.com/sigil-id/identity/pkg/metrics"
)

// Config configures a Service.
type Config struct {
	SessionJWTSecret string
	SessionTTL       time.Duration

	Google GoogleConfig

	// FirebaseApp, when non-nil, enables the Firebase ID-token login path.
	// Typically the same app pkg/firestore opened for the login-audit
	// trail (see firestore.Client.App()).
	FirebaseApp *firebase.App

	Logger *log.Logger
}

// Service wires the Google and Firebase login paths, the session token
// issuer, the users/oauth_identities repository, and the login-audit trail
// into one login bootstrap surface.
type Service struct {
	sessionRepo *database.SessionRepository
	tokens      *tokenIssuer
	states      *stateStore

	google   *GoogleProvider
	firebase *firebaseVerifier

	audit   *firestore.LoginAuditService
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewService constructs a Service. The Google provider is wired only if
// cfg.Google has credentials; the Firebase path only if cfg.FirebaseApp is
// non-nil. audit and metricsClient may be nil.
func NewService(ctx context.Context, cfg Config, sessionRepo *database.SessionRepository, audit *firestore.LoginAuditService, metricsClient *metrics.Metrics) (*Service, error) {
	if sessionRepo == nil {
		return nil, fmt.Errorf("session: sessionRepo is required")
	}
	if cfg.SessionJWTSecret == "" {
		return nil, fmt.Errorf("session: SessionJWTSecret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[Session] ", log.LstdFlags)
	}

	svc := &Service{
		sessionRepo: sessionRepo,
		tokens:      newTokenIssuer(cfg.SessionJWTSecret, cfg.SessionTTL),
		states:      newStateStore(10 * time.Minute),
		audit:       audit,
		metrics:     metricsClient,
		logger:      cfg.Logger,
	}

	if cfg.Google.ClientID != "" {
		provider, err := NewGoogleProvider(cfg.Google)
		if err != nil {
			return nil, err
		}
		svc.google = provider
	}

	if cfg.FirebaseApp != nil {
		verifier, err := newFirebaseVerifier(ctx, cfg.FirebaseApp)
		if err != nil {
			return nil, err
		}
		svc.firebase = verifier
	}

	return svc, nil
}

// LoginResult is returned by every login path this service supports.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	UserID    uuid.UUID
	Email     string
	AccountID string
	NewUser   bool
}

// RequestMeta carries caller details recorded into the login-audit trail.
type RequestMeta struct {
	RemoteAddr string
	UserAgent  string
}

// BeginGoogleLogin returns the URL to redirect the end user's browser to,
// stashing the PKCE verifier under the returned state for FinishGoogleLogin
// to recover.
func (s *Service) BeginGoogleLogin() (AuthorizeURL, error) {
	if s.google == nil {
		return AuthorizeURL{}, fmt.Errorf("session: google login is not configured")
	}
	authorizeURL, pair, err := s.google.authorizeURL()
	if err != nil {
		return AuthorizeURL{}, err
	}
	s.states.Put(authorizeURL.State, pair.verifier, time.Now())
	return authorizeURL, nil
}

// FinishGoogleLogin completes the authorization-code flow: it recovers the
// PKCE verifier for state, exchanges code for Google userinfo, links or
// creates the corresponding user, and mints a session token.
func (s *Service) FinishGoogleLogin(ctx context.Context, code, state string, meta RequestMeta) (*LoginResult, error) {
	if s.google == nil {
		return nil, fmt.Errorf("session: google login is not configured")
	}

	verifier, ok := s.states.Take(state, time.Now())
	if !ok {
		s.recordOutcome(ctx, "", "google", "oauth_callback", firestore.PhaseLoginFailed, meta, nil)
		s.bumpMetric("google", "invalid_state")
		return nil, fmt.Errorf("session: unknown or expired oauth state")
	}

	info, err := s.google.exchangeCode(ctx, code, verifier)
	if err != nil {
		s.bumpMetric("google", "exchange_failed")
		return nil, err
	}

	result, err := s.linkIdentity(ctx, "google", info.Sub, info.Email, info.EmailVerified, meta)
	if err != nil {
		s.bumpMetric("google", "link_failed")
		return nil, err
	}
	s.bumpMetric("google", "success")
	return result, nil
}

// LoginWithFirebaseToken verifies a Firebase ID token minted client-side and
// mints a session token for the identity it carries.
func (s *Service) LoginWithFirebaseToken(ctx context.Context, idToken string, meta RequestMeta) (*LoginResult, error) {
	if s.firebase == nil {
		return nil, fmt.Errorf("session: firebase login is not configured")
	}

	identity, err := s.firebase.verifyIDToken(ctx, idToken)
	if err != nil {
		s.bumpMetric("firebase", "verify_failed")
		return nil, err
	}

	result, err := s.linkIdentity(ctx, "firebase", identity.UID, identity.Email, identity.EmailVerified, meta)
	if err != nil {
		s.bumpMetric("firebase", "link_failed")
		return nil, err
	}
	s.bumpMetric("firebase", "success")
	return result, nil
}

// linkIdentity finds or creates the user for (provider, providerID), issues
// a session token, and records the outcome to the audit trail.
func (s *Service) linkIdentity(ctx context.Context, provider, providerID, email string, emailVerified bool, meta RequestMeta) (*LoginResult, error) {
	if !emailVerified {
		return nil, fmt.Errorf("session: %s account email is not verified", provider)
	}

	newUser := false

	identity, err := s.sessionRepo.GetOAuthIdentity(ctx, provider, providerID)
	var user *database.User
	if err == nil {
		user, err = s.sessionRepo.GetUser(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("session: loading linked user: %w", err)
		}
	} else if err == database.ErrOAuthIdentityNotFound {
		user, err = s.sessionRepo.GetOrCreateUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("session: creating user: %w", err)
		}
		if _, err := s.sessionRepo.UpsertOAuthIdentity(ctx, user.UserID, provider, providerID); err != nil {
			return nil, fmt.Errorf("session: linking oauth identity: %w", err)
		}
		newUser = true
	} else {
		return nil, fmt.Errorf("session: looking up oauth identity: %w", err)
	}

	accountID := ""
	if user.AccountID.Valid {
		accountID = user.AccountID.String
	}

	now := time.Now()
	token, expiresAt, err := s.tokens.issue(user.UserID.String(), user.Email, accountID, provider, now)
	if err != nil {
		return nil, err
	}

	phase := firestore.PhaseLoginSucceeded
	if newUser {
		phase = firestore.PhaseAccountLinked
	}
	s.recordOutcome(ctx, user.UserID.String(), provider, "login", phase, meta, map[string]interface{}{
		"newUser": newUser,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.UserID,
		Email:     user.Email,
		AccountID: accountID,
		NewUser:   newUser,
	}, nil
}

// LinkAccount associates userID's session with a sigchain account, used
// once a logged-in user completes signup or recovers an existing account.
func (s *Service) LinkAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	return s.sessionRepo.LinkAccount(ctx, userID, accountID)
}

// VerifySessionToken validates a session token minted by this service.
func (s *Service) VerifySessionToken(tokenString string) (*Claims, error) {
	return s.tokens.verify(tokenString)
}

func (s *Service) recordOutcome(ctx context.Context, userID, provider, action string, phase firestore.LoginPhase, meta RequestMeta, details map[string]interface{}) {
	if s.audit == nil || userID == "" {
		return
	}
	if err := s.audit.RecordLogin(ctx, userID, phase, provider, action, meta.RemoteAddr, meta.UserAgent, details); err != nil {
		s.logger.Printf("failed to record login audit entry: %v", err)
	}
}

func (s *Service) bumpMetric(provider, outcome string) {
	if s.metrics == nil || s.metrics.SessionLoginsTotal == nil {
		return
	}
	s.metrics.SessionLoginsTotal.WithLabelValues(provider, outcome).Inc()
}
