package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings holds process-level configuration bound from ROUTER_* environment
// variables (and, for local development, a .env file).
type Settings struct {
	Host     string
	Port     int
	LogLevel string

	ConfigPath string

	EmbeddingModel string

	RetryAttempts  int
	RetryBackoffMs int

	SessionEnabled        bool
	SessionTimeoutMin     int
	SessionDriftThreshold float64

	AuditEnabled        bool
	AuditLogLevel       string
	StreamBufferEnabled bool
	StreamBufferMaxSize int

	HotReloadEnabled         bool
	HotReloadDebounceSeconds float64
}

// LoadSettings binds ROUTER_* environment variables onto a Settings value
// pre-populated with defaults matching the original service.
func LoadSettings() *Settings {
	v := viper.New()
	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // a missing .env file is fine; env vars still bind

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 9010)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("config_path", "/config/agents.yaml")
	v.SetDefault("embedding_model", "all-MiniLM-L6-v2")
	v.SetDefault("retry_attempts", 2)
	v.SetDefault("retry_backoff_ms", 500)
	v.SetDefault("session_enabled", true)
	v.SetDefault("session_timeout_min", 30)
	v.SetDefault("session_drift_threshold", 0.5)
	v.SetDefault("audit_enabled", true)
	v.SetDefault("audit_log_level", "INFO")
	v.SetDefault("stream_buffer_enabled", true)
	v.SetDefault("stream_buffer_max_size", 1_000_000)
	v.SetDefault("hot_reload_enabled", true)
	v.SetDefault("hot_reload_debounce_seconds", 1.0)

	for _, key := range []string{
		"host", "port", "log_level", "config_path", "embedding_model",
		"retry_attempts", "retry_backoff_ms", "session_enabled",
		"session_timeout_min", "session_drift_threshold", "audit_enabled",
		"audit_log_level", "stream_buffer_enabled", "stream_buffer_max_size",
		"hot_reload_enabled", "hot_reload_debounce_seconds",
	} {
		_ = v.BindEnv(key)
	}

	return &Settings{
		Host:                     v.GetString("host"),
		Port:                     v.GetInt("port"),
		LogLevel:                 v.GetString("log_level"),
		ConfigPath:               v.GetString("config_path"),
		EmbeddingModel:           v.GetString("embedding_model"),
		RetryAttempts:            v.GetInt("retry_attempts"),
		RetryBackoffMs:           v.GetInt("retry_backoff_ms"),
		SessionEnabled:           v.GetBool("session_enabled"),
		SessionTimeoutMin:        v.GetInt("session_timeout_min"),
		SessionDriftThreshold:    v.GetFloat64("session_drift_threshold"),
		AuditEnabled:             v.GetBool("audit_enabled"),
		AuditLogLevel:            v.GetString("audit_log_level"),
		StreamBufferEnabled:      v.GetBool("stream_buffer_enabled"),
		StreamBufferMaxSize:      v.GetInt("stream_buffer_max_size"),
		HotReloadEnabled:         v.GetBool("hot_reload_enabled"),
		HotReloadDebounceSeconds: v.GetFloat64("hot_reload_debounce_seconds"),
	}
}
