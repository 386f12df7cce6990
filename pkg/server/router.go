package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sigil-id/identity/pkg/database"
	"github.com/sigil-id/identity/pkg/identity"
	"github.com/sigil-id/identity/pkg/metrics"
	"github.com/sigil-id/identity/pkg/requestauth"
	"github.com/sigil-id/identity/pkg/session"
)

// Dependencies collects everything the router needs to wire the HTTP
// surface to the identity core.
type Dependencies struct {
	Identity     *identity.Service
	Sessions     *session.Service
	Accounts     *database.AccountRepository
	Devices      *database.DeviceRepository
	Endorsements *database.EndorsementRepository
	Recovery     *database.RecoveryRepository
	Verifier     *requestauth.Verifier
	Metrics      *metrics.Metrics
	Health       *HealthStatus
	DatabasePing func(ctx context.Context) error
	Logger       *log.Logger
}

// NewRouter builds the complete /v1 HTTP surface plus /v1/health and
// /metrics, wrapping every chain-mutating route in the signed-request
// middleware except account signup, which is self-authenticating.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[IdentityAPI] ", log.LstdFlags)
	}

	accounts := NewAccountHandlers(deps.Identity, deps.Accounts, logger)
	devices := NewDeviceHandlers(deps.Identity, deps.Devices, logger)
	endorsements := NewEndorsementHandlers(deps.Identity, deps.Endorsements, logger)
	recovery := NewRecoveryHandlers(deps.Identity, deps.Recovery, logger)
	sessions := NewSessionHandlers(deps.Sessions, logger)
	health := NewHealthHandlers(deps.Health, deps.DatabasePing, logger)

	sign := func(next http.HandlerFunc) http.HandlerFunc {
		return signedRequest(deps.Verifier, deps.Metrics, logger, next)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/v1/accounts", accounts.HandleSignup)
	mux.HandleFunc("/v1/accounts/", routeAccountSubresource(accounts, devices, recovery, sign))

	mux.HandleFunc("/v1/endorsements", sign(endorsements.HandleCreate))
	mux.HandleFunc("/v1/endorsements/aggregate", endorsements.HandleAggregate)
	mux.HandleFunc("/v1/endorsements/", sign(endorsements.HandleRevoke))

	mux.HandleFunc("/v1/reputation/", endorsements.HandleReputation)

	mux.HandleFunc("/v1/sessions/login", sessions.Handle)

	mux.HandleFunc("/v1/health", health.Handle)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// routeAccountSubresource dispatches everything under /v1/accounts/ by
// inspecting the path's trailing segment, since net/http's ServeMux (pre
// Go 1.22 pattern matching, which this module does not assume) only
// supports prefix registration for a single handler per prefix.
func routeAccountSubresource(accounts *AccountHandlers, devices *DeviceHandlers, recovery *RecoveryHandlers, sign func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case hasSuffixSegment(path, "/devices") && r.Method == http.MethodPost:
			sign(devices.HandleAddDevice)(w, r)
		case hasSuffixSegment(path, "/devices") && r.Method == http.MethodGet:
			devices.HandleListDevices(w, r)
		case hasSuffixSegment(path, "/revoke") && containsSegment(path, "/devices/"):
			sign(devices.HandleRevokeDevice)(w, r)
		case hasSuffixSegment(path, "/recovery-policy"):
			if r.Method == http.MethodGet {
				recovery.HandleGetPolicy(w, r)
				return
			}
			sign(handleRecoveryPolicyWrite(recovery))(w, r)
		case hasSuffixSegment(path, "/recovery-approvals"):
			sign(recovery.HandleApprove)(w, r)
		case hasSuffixSegment(path, "/recovery-rotate"):
			sign(recovery.HandleRotate)(w, r)
		default:
			accounts.HandleGetAccount(w, r)
		}
	}
}

// handleRecoveryPolicyWrite dispatches PUT (set) and DELETE (revoke)
// against the same /recovery-policy path.
func handleRecoveryPolicyWrite(recovery *RecoveryHandlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			recovery.HandleRevokePolicy(w, r)
			return
		}
		recovery.HandleSetPolicy(w, r)
	}
}

func hasSuffixSegment(path, suffix string) bool {
	return strings.HasSuffix(strings.TrimRight(path, "/"), suffix)
}

func containsSegment(path, segment string) bool {
	return strings.Contains(path, segment)
}
