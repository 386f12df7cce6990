package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// HealthStatus tracks the liveness of the components GET /v1/health
// reports on. Updated during startup and whenever a dependency's
// connectivity changes.
type HealthStatus struct {
	mu        sync.RWMutex
	status    string
	database  string
	startTime time.Time
}

// NewHealthStatus constructs a HealthStatus starting in the "starting" state.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{status: "starting", database: "unknown", startTime: time.Now()}
}

// SetDatabase records the database's connectivity and recomputes the
// overall status.
func (h *HealthStatus) SetDatabase(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if connected {
		h.database = "connected"
		h.status = "ok"
	} else {
		h.database = "disconnected"
		h.status = "error"
	}
}

func (h *HealthStatus) snapshot() (status, database string, uptimeSeconds int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status, h.database, int64(time.Since(h.startTime).Seconds())
}

// HealthHandlers serves GET /v1/health.
type HealthHandlers struct {
	status *HealthStatus
	ping   func(ctx context.Context) error
	logger *log.Logger
}

// NewHealthHandlers constructs HealthHandlers. ping is called on every
// request to refresh the database component's status; pass nil to skip
// the live check and rely solely on SetDatabase calls made elsewhere.
func NewHealthHandlers(status *HealthStatus, ping func(ctx context.Context) error, logger *log.Logger) *HealthHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[HealthAPI] ", log.LstdFlags)
	}
	return &HealthHandlers{status: status, ping: ping, logger: logger}
}

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Handle serves GET /v1/health.
func (h *HealthHandlers) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}
	if h.ping != nil {
		h.status.SetDatabase(h.ping(r.Context()) == nil)
	}
	status, database, uptime := h.status.snapshot()

	code := http.StatusOK
	if status == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, code, healthResponse{Status: status, Database: database, UptimeSeconds: uptime})
}
