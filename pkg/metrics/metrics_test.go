package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.EndorsementsCreatedTotal.Inc()
	m.ActiveDevicesGauge.WithLabelValues("account-1").Set(3)
	m.RequestAuthFailuresTotal.WithLabelValues("REPLAY_DETECTED").Inc()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	if _, ok := byName["sigil_endorsements_created_total"]; !ok {
		t.Error("expected sigil_endorsements_created_total to be registered")
	}
	if _, ok := byName["sigil_devices_active"]; !ok {
		t.Error("expected sigil_devices_active to be registered")
	}
	if _, ok := byName["sigil_requestauth_failures_total"]; !ok {
		t.Error("expected sigil_requestauth_failures_total to be registered")
	}
}

func TestNewMetricsDoubleRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected registering the same collectors twice against one registry to panic")
		}
	}()
	NewMetrics(registry)
}
