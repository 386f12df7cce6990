package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverrides mirrors Config's settable fields as pointers so a config
// file can override a subset of them without needing to restate every
// field; unset YAML keys leave the env-derived value untouched. Modeled on
// the teacher's AnchorConfig YAML loader, scaled down to this service's
// flat settings and optional-override semantics rather than a full
// structured configuration file.
type fileOverrides struct {
	ListenAddr  *string `yaml:"listen_addr"`
	MetricsAddr *string `yaml:"metrics_addr"`

	DatabaseURL         *string `yaml:"database_url"`
	DatabaseMaxConns    *int    `yaml:"database_max_conns"`
	DatabaseMinConns    *int    `yaml:"database_min_conns"`
	DatabaseMaxIdleTime *int    `yaml:"database_max_idle_time"`
	DatabaseMaxLifetime *int    `yaml:"database_max_lifetime"`
	DatabaseRequired    *bool   `yaml:"database_required"`

	RequestAuthSkewSeconds  *int    `yaml:"request_auth_skew_seconds"`
	RequestAuthMaxBodyBytes *int64  `yaml:"request_auth_max_body_bytes"`
	NonceStoreBackend       *string `yaml:"nonce_store_backend"`
	NonceStorePath          *string `yaml:"nonce_store_path"`

	BackupArgon2MCost *uint32 `yaml:"backup_argon2_m_cost"`
	BackupArgon2TCost *uint32 `yaml:"backup_argon2_t_cost"`
	BackupArgon2PCost *uint32 `yaml:"backup_argon2_p_cost"`

	MaxActiveDevicesPerAccount *int `yaml:"max_active_devices_per_account"`
	MaxRecoveryHelpers         *int `yaml:"max_recovery_helpers"`

	SessionJWTSecret    *string `yaml:"session_jwt_secret"`
	SessionTTL          *string `yaml:"session_ttl"`
	GoogleOAuthClientID *string `yaml:"google_oauth_client_id"`
	GoogleOAuthSecret   *string `yaml:"google_oauth_client_secret"`
	GoogleOAuthRedirect *string `yaml:"google_oauth_redirect_url"`
	FirebaseProjectID   *string `yaml:"firebase_project_id"`
	FirebaseCredsFile   *string `yaml:"firebase_creds_file"`
	FirestoreEnabled    *bool   `yaml:"firestore_enabled"`

	LogLevel *string `yaml:"log_level"`
}

// configFileEnvVarPattern matches ${VAR_NAME} in a config file, substituted
// from the process environment before YAML parsing so the same file can be
// shared across environments with secrets kept out of it.
var configFileEnvVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteConfigFileEnvVars(content string) string {
	return configFileEnvVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := configFileEnvVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyFileOverrides loads path, substitutes ${VAR} references against the
// process environment, and overlays any YAML keys present onto cfg. A
// missing file is an error; an empty path is never reached (callers only
// invoke this when CONFIG_FILE is set).
func applyFileOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var o fileOverrides
	if err := yaml.Unmarshal([]byte(substituteConfigFileEnvVars(string(data))), &o); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if o.ListenAddr != nil {
		cfg.ListenAddr = *o.ListenAddr
	}
	if o.MetricsAddr != nil {
		cfg.MetricsAddr = *o.MetricsAddr
	}
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.DatabaseMaxConns != nil {
		cfg.DatabaseMaxConns = *o.DatabaseMaxConns
	}
	if o.DatabaseMinConns != nil {
		cfg.DatabaseMinConns = *o.DatabaseMinConns
	}
	if o.DatabaseMaxIdleTime != nil {
		cfg.DatabaseMaxIdleTime = *o.DatabaseMaxIdleTime
	}
	if o.DatabaseMaxLifetime != nil {
		cfg.DatabaseMaxLifetime = *o.DatabaseMaxLifetime
	}
	if o.DatabaseRequired != nil {
		cfg.DatabaseRequired = *o.DatabaseRequired
	}
	if o.RequestAuthSkewSeconds != nil {
		cfg.RequestAuthSkewSeconds = *o.RequestAuthSkewSeconds
	}
	if o.RequestAuthMaxBodyBytes != nil {
		cfg.RequestAuthMaxBodyBytes = *o.RequestAuthMaxBodyBytes
	}
	if o.NonceStoreBackend != nil {
		cfg.NonceStoreBackend = *o.NonceStoreBackend
	}
	if o.NonceStorePath != nil {
		cfg.NonceStorePath = *o.NonceStorePath
	}
	if o.BackupArgon2MCost != nil {
		cfg.BackupArgon2MCost = *o.BackupArgon2MCost
	}
	if o.BackupArgon2TCost != nil {
		cfg.BackupArgon2TCost = *o.BackupArgon2TCost
	}
	if o.BackupArgon2PCost != nil {
		cfg.BackupArgon2PCost = *o.BackupArgon2PCost
	}
	if o.MaxActiveDevicesPerAccount != nil {
		cfg.MaxActiveDevicesPerAccount = *o.MaxActiveDevicesPerAccount
	}
	if o.MaxRecoveryHelpers != nil {
		cfg.MaxRecoveryHelpers = *o.MaxRecoveryHelpers
	}
	if o.SessionJWTSecret != nil {
		cfg.SessionJWTSecret = *o.SessionJWTSecret
	}
	if o.SessionTTL != nil {
		d, err := time.ParseDuration(*o.SessionTTL)
		if err != nil {
			return fmt.Errorf("config file %s: invalid session_ttl %q: %w", path, *o.SessionTTL, err)
		}
		cfg.SessionTTL = d
	}
	if o.GoogleOAuthClientID != nil {
		cfg.GoogleOAuthClientID = *o.GoogleOAuthClientID
	}
	if o.GoogleOAuthSecret != nil {
		cfg.GoogleOAuthSecret = *o.GoogleOAuthSecret
	}
	if o.GoogleOAuthRedirect != nil {
		cfg.GoogleOAuthRedirect = *o.GoogleOAuthRedirect
	}
	if o.FirebaseProjectID != nil {
		cfg.FirebaseProjectID = *o.FirebaseProjectID
	}
	if o.FirebaseCredsFile != nil {
		cfg.FirebaseCredsFile = *o.FirebaseCredsFile
	}
	if o.FirestoreEnabled != nil {
		cfg.FirestoreEnabled = *o.FirestoreEnabled
	}
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}
	return nil
}
