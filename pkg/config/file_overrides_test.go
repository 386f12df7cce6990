package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	const yamlBody = `
listen_addr: "0.0.0.0:9999"
max_active_devices_per_account: 20
session_ttl: "30m"
database_url: "${TEST_DATABASE_URL}"
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("TEST_DATABASE_URL", "postgres://example/overridden")

	cfg := &Config{
		ListenAddr:                 "0.0.0.0:8080",
		MaxActiveDevicesPerAccount: 10,
	}
	if err := applyFileOverrides(cfg, path); err != nil {
		t.Fatalf("applyFileOverrides: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("expected overridden listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.MaxActiveDevicesPerAccount != 20 {
		t.Errorf("expected overridden device limit, got %d", cfg.MaxActiveDevicesPerAccount)
	}
	if cfg.SessionTTL.String() != "30m0s" {
		t.Errorf("expected overridden session ttl of 30m, got %s", cfg.SessionTTL)
	}
	if cfg.DatabaseURL != "postgres://example/overridden" {
		t.Errorf("expected env-substituted database url, got %q", cfg.DatabaseURL)
	}
}

func TestApplyFileOverridesLeavesUnsetFieldsAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &Config{MetricsAddr: "0.0.0.0:9090"}
	if err := applyFileOverrides(cfg, path); err != nil {
		t.Fatalf("applyFileOverrides: %v", err)
	}
	if cfg.MetricsAddr != "0.0.0.0:9090" {
		t.Errorf("expected untouched metrics addr, got %q", cfg.MetricsAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected overridden log level, got %q", cfg.LogLevel)
	}
}

func TestApplyFileOverridesMissingFile(t *testing.T) {
	cfg := &Config{}
	if err := applyFileOverrides(cfg, "/nonexistent/config.yaml"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
