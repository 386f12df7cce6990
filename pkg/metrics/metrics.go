// Package metrics exposes Prometheus instrumentation for the identity core:
// HTTP request counts/latency, sigchain append outcomes, and the gauges
// and counters the device, endorsement, and recovery state machines update
// as they run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector registered by this service. Construct one
// with NewMetrics and share it across handlers and state machine packages.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SigchainAppendsTotal *prometheus.CounterVec

	ActiveDevicesGauge *prometheus.GaugeVec

	EndorsementsCreatedTotal  prometheus.Counter
	EndorsementsRevokedTotal  prometheus.Counter
	ReputationRecomputedTotal prometheus.Counter

	RecoveryApprovalsTotal prometheus.Counter
	RootRotationsTotal     prometheus.Counter

	RequestAuthFailuresTotal *prometheus.CounterVec

	SessionLoginsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status code.",
		}, []string{"route", "method", "status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sigil",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		SigchainAppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "sigchain",
			Name:      "appends_total",
			Help:      "Total sigchain append attempts by event type and outcome.",
		}, []string{"event_type", "outcome"}),

		ActiveDevicesGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sigil",
			Subsystem: "devices",
			Name:      "active",
			Help:      "Current active device delegation count by account.",
		}, []string{"account_id"}),

		EndorsementsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "endorsements",
			Name:      "created_total",
			Help:      "Total endorsements created.",
		}),

		EndorsementsRevokedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "endorsements",
			Name:      "revoked_total",
			Help:      "Total endorsements revoked.",
		}),

		ReputationRecomputedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "reputation",
			Name:      "recomputed_total",
			Help:      "Total reputation score recomputations.",
		}),

		RecoveryApprovalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "recovery",
			Name:      "approvals_total",
			Help:      "Total recovery approvals recorded.",
		}),

		RootRotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "recovery",
			Name:      "root_rotations_total",
			Help:      "Total successful root key rotations.",
		}),

		RequestAuthFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "requestauth",
			Name:      "failures_total",
			Help:      "Total signed-request authentication failures by reason.",
		}, []string{"reason"}),

		SessionLoginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigil",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total login bootstrap attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
}
