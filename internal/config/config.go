package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // GYM_TIMEZONE must resolve in minimal containers
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database
	StoreDriver     string
	DBHost          string
	DBPort          int
	DBUser          string
	DBPassword      string
	DBName          string
	DBSSLMode       string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	StoreTimeout    time.Duration
	OccupancyNotify bool

	// Credential
	CredentialSecret    string
	RotationInterval    time.Duration
	CredentialTolerance time.Duration
	ReplayGuard         bool
	ManualCodeAttempts  int
	ManualCodeWindow    time.Duration

	// Identity
	JWTSecret string
	JWTIssuer string

	// Gym
	Timezone        string
	Locations       []string
	DefaultCurrency string

	// HTTP
	CORSOrigins     []string
	MaxBodyBytes    int64
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig

	// Scheduler
	ReconcileSchedule string
	ExpirySchedule    string
	PruneSchedule     string

	// Messaging
	AMQPURL      string
	AMQPExchange string

	// Metrics
	MetricsUser     string
	MetricsPassword string
}

// RateLimitConfig holds per-route-group request budgets, keyed by client IP.
type RateLimitConfig struct {
	Enabled                 bool
	ScanRequestsPerMinute   int
	ManualRequestsPerMinute int
	LedgerRequestsPerMinute int
	ReadRequestsPerMinute   int
}

// SecurityHeadersConfig holds response security headers. Empty values are not sent.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Database defaults (matches podman setup: make postgres-start)
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnvInt("DB_PORT", 25432),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "gymkeeper"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 5),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		OccupancyNotify: getEnvBool("OCCUPANCY_NOTIFY", true),

		// Credential defaults
		CredentialSecret:    getEnv("CREDENTIAL_SECRET", ""),
		RotationInterval:    getEnvDuration("CREDENTIAL_ROTATION_INTERVAL", 30*time.Second),
		CredentialTolerance: getEnvDuration("CREDENTIAL_TOLERANCE", 60*time.Second),
		ReplayGuard:         getEnvBool("CREDENTIAL_REPLAY_GUARD", false),
		ManualCodeAttempts:  getEnvInt("MANUAL_CODE_ATTEMPTS", 5),
		ManualCodeWindow:    getEnvDuration("MANUAL_CODE_WINDOW", time.Minute),

		// JWT defaults
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "gymkeeper"),

		// Gym defaults
		Timezone:        getEnv("GYM_TIMEZONE", "America/Mexico_City"),
		Locations:       getEnvList("GYM_LOCATIONS", []string{"main"}),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "MXN")),

		// HTTP defaults
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 64*1024)),
		RateLimit: RateLimitConfig{
			Enabled:                 getEnvBool("RATE_LIMIT_ENABLED", true),
			ScanRequestsPerMinute:   getEnvInt("RATE_LIMIT_SCAN_PER_MINUTE", 120),
			ManualRequestsPerMinute: getEnvInt("RATE_LIMIT_MANUAL_PER_MINUTE", 30),
			LedgerRequestsPerMinute: getEnvInt("RATE_LIMIT_LEDGER_PER_MINUTE", 60),
			ReadRequestsPerMinute:   getEnvInt("RATE_LIMIT_READ_PER_MINUTE", 300),
		},
		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 0),
			FrameOptions:       "DENY",
			ContentTypeOptions: "nosniff",
			ReferrerPolicy:     "no-referrer",
		},

		// Scheduler defaults
		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 3 * * *"),
		ExpirySchedule:    getEnv("EXPIRY_SCHEDULE", "15 3 * * *"),
		PruneSchedule:     getEnv("LIMITER_PRUNE_SCHEDULE", "*/10 * * * *"),

		// Messaging (optional)
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gymkeeper.events"),

		// Metrics (optional basic auth)
		MetricsUser:     getEnv("METRICS_USER", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Validate required fields
	if cfg.CredentialSecret == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET is required")
	}
	if len(cfg.CredentialSecret) < 32 {
		return nil, fmt.Errorf("CREDENTIAL_SECRET must be at least 32 bytes")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}
	if cfg.RotationInterval <= 0 || cfg.CredentialTolerance <= 0 {
		return nil, fmt.Errorf("credential rotation interval and tolerance must be positive")
	}
	if len(cfg.Locations) == 0 {
		return nil, fmt.Errorf("GYM_LOCATIONS must name at least one location")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves the gym timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid GYM_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// HasAMQP returns true if event publishing is configured.
func (c *Config) HasAMQP() bool {
	return c.AMQPURL != ""
}

// HasMetricsAuth returns true if /metrics is protected.
func (c *Config) HasMetricsAuth() bool {
	return c.MetricsUser != "" && c.MetricsPassword != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
