// Package config loads and validates client config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// APIURL is the base URL of the primary REST API (e.g. http://localhost:3001/api).
	APIURL string `mapstructure:"API_URL"`
	// AIAPIURL is the base URL of the AI service REST API.
	AIAPIURL string `mapstructure:"AI_API_URL"`
	// APITimeout is the per-call budget for the primary API (e.g. "30s").
	APITimeout string `mapstructure:"API_TIMEOUT"`
	// AIAPITimeout is the per-call budget for the AI API; AI calls tolerate longer latency.
	AIAPITimeout string `mapstructure:"AI_API_TIMEOUT"`

	// SupabaseURL is the backend-as-a-service URL. Empty selects demo mode.
	SupabaseURL string `mapstructure:"SUPABASE_URL"`
	// SupabaseAnonKey is the backend-as-a-service public key. Empty selects demo mode.
	SupabaseAnonKey string `mapstructure:"SUPABASE_ANON_KEY"`
	// Env is the application environment (e.g. "development", "production"). Demo mode is refused in production.
	Env string `mapstructure:"APP_ENV"`

	// LocalStateDriver selects the persisted local state backend: sqlite, redis or memory.
	LocalStateDriver string `mapstructure:"LOCAL_STATE_DRIVER"`
	// LocalStatePath is the sqlite file used when LocalStateDriver is sqlite.
	LocalStatePath string `mapstructure:"LOCAL_STATE_PATH"`
	// RedisAddr is host:port of the redis server when LocalStateDriver is redis.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// OTPTTLRaw is how long a pending OTP challenge stays valid (e.g. "5m").
	OTPTTLRaw string `mapstructure:"OTP_TTL"`
	// DemoTokenTTLRaw is the lifetime of locally minted demo credentials (e.g. "1h").
	DemoTokenTTLRaw string `mapstructure:"DEMO_TOKEN_TTL"`
	// PolicyFile is an optional Rego file replacing the default session-mode policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// DatabaseURL is a direct Postgres DSN for migrations and the direct contacts repository; optional.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses for session events.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for session events (default crm-session-events).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// RealtimeHeartbeat is the realtime socket heartbeat interval (e.g. "25s").
	RealtimeHeartbeat string `mapstructure:"REALTIME_HEARTBEAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_URL", "http://localhost:3001/api")
	v.SetDefault("AI_API_URL", "http://localhost:8000/api")
	v.SetDefault("API_TIMEOUT", "30s")
	v.SetDefault("AI_API_TIMEOUT", "60s")
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOCAL_STATE_DRIVER", "sqlite")
	v.SetDefault("LOCAL_STATE_PATH", "./data/resultmarketing.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("DEMO_TOKEN_TTL", "1h")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "crm-session-events")
	v.SetDefault("REALTIME_HEARTBEAT", "25s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.AIAPIURL = strings.TrimRight(strings.TrimSpace(cfg.AIAPIURL), "/")
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.SupabaseAnonKey = strings.TrimSpace(cfg.SupabaseAnonKey)

	if cfg.APIURL == "" {
		return nil, errors.New("config: API_URL must be set")
	}
	if cfg.AIAPIURL == "" {
		return nil, errors.New("config: AI_API_URL must be set")
	}
	if cfg.AITimeoutDuration() < cfg.APITimeoutDuration() {
		return nil, errors.New("config: AI_API_TIMEOUT must not be shorter than API_TIMEOUT")
	}

	switch cfg.LocalStateDriver {
	case "sqlite":
		if cfg.LocalStatePath == "" {
			return nil, errors.New("config: LOCAL_STATE_PATH must be set for the sqlite driver")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set for the redis driver")
		}
	case "memory":
	default:
		return nil, errors.New("config: LOCAL_STATE_DRIVER must be one of sqlite, redis, memory")
	}

	return &cfg, nil
}

// IsDemoMode reports whether the backend-as-a-service is unconfigured, which selects demo mode.
func (c *Config) IsDemoMode() bool {
	return c.SupabaseURL == "" || c.SupabaseAnonKey == ""
}

// APITimeoutDuration parses APITimeout. Returns 30s if unset or invalid.
func (c *Config) APITimeoutDuration() time.Duration {
	return parseDuration(c.APITimeout, 30*time.Second)
}

// AITimeoutDuration parses AIAPITimeout. Returns 60s if unset or invalid.
func (c *Config) AITimeoutDuration() time.Duration {
	return parseDuration(c.AIAPITimeout, 60*time.Second)
}

// OTPTTL parses OTPTTLRaw. Returns 5m if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return parseDuration(c.OTPTTLRaw, 5*time.Minute)
}

// DemoTokenTTL parses DemoTokenTTLRaw. Returns 1h if unset or invalid.
func (c *Config) DemoTokenTTL() time.Duration {
	return parseDuration(c.DemoTokenTTLRaw, time.Hour)
}

// HeartbeatInterval parses RealtimeHeartbeat. Returns 25s if unset or invalid.
func (c *Config) HeartbeatInterval() time.Duration {
	return parseDuration(c.RealtimeHeartbeat, 25*time.Second)
}

// RealtimeURL returns the websocket endpoint of the BaaS realtime service, or "" in demo mode.
func (c *Config) RealtimeURL() string {
	if c.IsDemoMode() {
		return ""
	}
	u := c.SupabaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/realtime/v1/websocket"
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka session event stream is enabled (non-empty list).
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
