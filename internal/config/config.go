// Package config loads and validates the hub configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the HUB_ prefix (e.g., HUB_REDIS_ADDR
// overrides redis.addr in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments.
//
// The HUB_TOKEN_SECRET variable is read directly by the auth package rather
// than through this file, so that infrastructure tooling can inject it as a
// generic secret without touching the config layer.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Quotas    QuotasConfig    `mapstructure:"quotas"`
	Invites   InvitesConfig   `mapstructure:"invites"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds the connection settings for the primary key-value store.
// All identity records (profiles, invites, API keys, quota counters) live here.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DatabaseConfig holds the audit database connection configuration.
// Postgres is used only for the append-only audit trail; the request
// hot path never touches it.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys APIKeyConfig `mapstructure:"api_keys"`
	Token   TokenConfig  `mapstructure:"token"`
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// TokenConfig selects how bearer tokens are verified.
//
// Mode "shared_secret" validates HS256 tokens signed with HUB_TOKEN_SECRET.
// Mode "oidc" validates tokens against the configured OIDC issuer's JWKS.
type TokenConfig struct {
	Mode string     `mapstructure:"mode"`
	OIDC OIDCConfig `mapstructure:"oidc"`
}

// OIDCConfig holds OIDC token verification configuration
type OIDCConfig struct {
	IssuerURL   string `mapstructure:"issuer_url"`
	ClientID    string `mapstructure:"client_id"`
	RoleClaim   string `mapstructure:"role_claim"`
	InviteClaim string `mapstructure:"invite_claim"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Headers      HeadersConfig      `mapstructure:"headers"`
}

// HeadersConfig holds the protective response header values. Empty or zero
// values suppress the corresponding header.
type HeadersConfig struct {
	HSTSMaxAgeSeconds     int    `mapstructure:"hsts_max_age_seconds"`
	FrameOptions          string `mapstructure:"frame_options"`
	ContentSecurityPolicy string `mapstructure:"content_security_policy"`
	ReferrerPolicy        string `mapstructure:"referrer_policy"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds the per-IP request throttle configuration.
// This is the transport-level throttle; per-operation quotas are configured
// separately under quotas.
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// QuotaConfig holds a single fixed-window operation quota
type QuotaConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// QuotasConfig holds the per-operation quotas
type QuotasConfig struct {
	Registration     QuotaConfig `mapstructure:"registration"`
	KeyIssuance      QuotaConfig `mapstructure:"key_issuance"`
	InviteGeneration QuotaConfig `mapstructure:"invite_generation"`
}

// InvitesConfig holds invite code generation defaults
type InvitesConfig struct {
	DefaultLength int           `mapstructure:"default_length"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// Enabled determines if audit logging is active
	Enabled bool `mapstructure:"enabled"`
	// LogReadOperations determines if GET requests should be logged
	LogReadOperations bool `mapstructure:"log_read_operations"`
	// LogFailedRequests determines if failed requests (4xx/5xx) should be logged
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.pool_size",

		// Audit database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Auth
		"auth.api_keys.enabled",
		"auth.api_keys.prefix",
		"auth.token.mode",
		"auth.token.oidc.issuer_url",
		"auth.token.oidc.client_id",
		"auth.token.oidc.role_claim",
		"auth.token.oidc.invite_claim",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.headers.hsts_max_age_seconds",
		"security.headers.frame_options",
		"security.headers.content_security_policy",
		"security.headers.referrer_policy",

		// Quotas
		"quotas.registration.limit",
		"quotas.registration.window",
		"quotas.key_issuance.limit",
		"quotas.key_issuance.window",
		"quotas.invite_generation.limit",
		"quotas.invite_generation.window",

		// Invites
		"invites.default_length",
		"invites.default_ttl",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.log_read_operations",
		"audit.log_failed_requests",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/learning-hub")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Database.Password = expandEnv(cfg.Database.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// Audit database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "learning_hub_audit")
	v.SetDefault("database.user", "hub")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.api_keys.enabled", true)
	v.SetDefault("auth.api_keys.prefix", "hub")
	v.SetDefault("auth.token.mode", "shared_secret")
	v.SetDefault("auth.token.oidc.role_claim", "role")
	v.SetDefault("auth.token.oidc.invite_claim", "invite_validated")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.headers.hsts_max_age_seconds", 31536000)
	v.SetDefault("security.headers.frame_options", "DENY")
	v.SetDefault("security.headers.content_security_policy", "default-src 'none'; frame-ancestors 'none'")
	v.SetDefault("security.headers.referrer_policy", "no-referrer")

	// Quota defaults
	v.SetDefault("quotas.registration.limit", 10)
	v.SetDefault("quotas.registration.window", "1h")
	v.SetDefault("quotas.key_issuance.limit", 20)
	v.SetDefault("quotas.key_issuance.window", "24h")
	v.SetDefault("quotas.invite_generation.limit", 100)
	v.SetDefault("quotas.invite_generation.window", "24h")

	// Invite defaults
	v.SetDefault("invites.default_length", 12)
	v.SetDefault("invites.default_ttl", "168h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "learning-hub-identity")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_read_operations", false)
	v.SetDefault("audit.log_failed_requests", false)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Audit.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when audit is enabled")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when audit is enabled")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when audit is enabled")
		}
	}

	switch c.Auth.Token.Mode {
	case "shared_secret":
	case "oidc":
		if c.Auth.Token.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.token.oidc.issuer_url is required in oidc mode")
		}
		if c.Auth.Token.OIDC.ClientID == "" {
			return fmt.Errorf("auth.token.oidc.client_id is required in oidc mode")
		}
	default:
		return fmt.Errorf("invalid auth.token.mode: %s (must be shared_secret or oidc)", c.Auth.Token.Mode)
	}

	if c.Auth.APIKeys.Enabled && c.Auth.APIKeys.Prefix == "" {
		return fmt.Errorf("auth.api_keys.prefix is required when API keys are enabled")
	}

	for name, q := range map[string]QuotaConfig{
		"registration":      c.Quotas.Registration,
		"key_issuance":      c.Quotas.KeyIssuance,
		"invite_generation": c.Quotas.InviteGeneration,
	} {
		if q.Limit < 1 {
			return fmt.Errorf("quotas.%s.limit must be positive", name)
		}
		if q.Window <= 0 {
			return fmt.Errorf("quotas.%s.window must be positive", name)
		}
	}

	if c.Invites.DefaultLength < 8 || c.Invites.DefaultLength > 16 {
		return fmt.Errorf("invites.default_length must be between 8 and 16")
	}
	if c.Invites.DefaultTTL <= 0 {
		return fmt.Errorf("invites.default_ttl must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string for the audit database
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
