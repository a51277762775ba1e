package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config carries every recognized environment option. Defaults are chosen
// for local development; production deployments set SENTRA_ENV=production
// and must provide real secrets.
type Config struct {
	Port string `env:"PORT" envDefault:"8081"`
	Env  string `env:"SENTRA_ENV" envDefault:"development"`

	// Database (credential store, Postgres audit sink, case repository)
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"sentra_user"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"sentra_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Master secret for API-key signature derivation.
	AuthSecret string `env:"SENTRA_AUTH_SECRET"`
	// Secret for admin session JWTs.
	JWTSecret string `env:"JWT_SECRET"`

	// Rate limiting
	RateLimitDefault int            `env:"SENTRA_RATE_LIMIT_DEFAULT" envDefault:"100"`
	RateLimitWindow  time.Duration  `env:"SENTRA_RATE_WINDOW" envDefault:"1m"`
	RateLimitRoutes  map[string]int `env:"SENTRA_RATE_LIMIT_ROUTES" envSeparator:"," envKeyValSeparator:"="`
	PlanMultipliers  map[string]float64 `env:"SENTRA_PLAN_MULTIPLIERS" envSeparator:"," envKeyValSeparator:"="`

	// Redis counter store; empty address selects the in-memory store.
	RedisAddr     string `env:"SENTRA_REDIS_ADDR"`
	RedisPassword string `env:"SENTRA_REDIS_PASSWORD"`
	RedisDB       int    `env:"SENTRA_REDIS_DB" envDefault:"0"`

	// CORS
	CORSOrigins []string `env:"SENTRA_CORS_ORIGINS" envSeparator:","`

	// Security headers
	FrameOption           string   `env:"SENTRA_FRAME_OPTION" envDefault:"DENY"`
	CSPDirectives         []string `env:"SENTRA_CSP" envSeparator:";" envDefault:"default-src 'self';frame-ancestors 'none'"`
	HSTSMaxAge            int      `env:"SENTRA_HSTS_MAX_AGE" envDefault:"31536000"`
	HSTSIncludeSubdomains bool     `env:"SENTRA_HSTS_SUBDOMAINS" envDefault:"true"`
	HSTSPreload           bool     `env:"SENTRA_HSTS_PRELOAD" envDefault:"false"`

	// Audit
	AuditSink          string   `env:"SENTRA_AUDIT_SINK" envDefault:"postgres"`
	AuditFile          string   `env:"SENTRA_AUDIT_FILE" envDefault:"sentra-audit.log"`
	AuditSubject       string   `env:"SENTRA_AUDIT_SUBJECT" envDefault:"sentra.audit"`
	NATSURL            string   `env:"SENTRA_NATS_URL"`
	AuditRedact        []string `env:"SENTRA_AUDIT_REDACT" envSeparator:","`
	AuditMaxBody       int      `env:"SENTRA_AUDIT_MAX_BODY" envDefault:"8192"`
	AuditMaxDepth      int      `env:"SENTRA_AUDIT_MAX_DEPTH" envDefault:"8"`
	AuditQueueSize     int      `env:"SENTRA_AUDIT_QUEUE" envDefault:"1024"`
	AuditRetentionDays int      `env:"SENTRA_AUDIT_RETENTION_DAYS" envDefault:"90"`
	AuditCleanupCron   string   `env:"SENTRA_AUDIT_CLEANUP_CRON" envDefault:"0 3 * * *"`

	// Tracing. Enabled when either variable is set; the endpoint default
	// is the local OTLP/HTTP collector port.
	OTelEnable   bool   `env:"SENTRA_OTEL_ENABLE"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Role configuration file (YAML). Empty means no roles beyond
	// permissions attached directly to keys.
	RolesFile string `env:"SENTRA_ROLES_FILE"`

	// Paths that bypass the pipeline entirely (prefix match).
	BypassPaths    []string `env:"SENTRA_BYPASS_PATHS" envSeparator:"," envDefault:"/healthz,/readyz,/metrics,/static/"`
	TrustedProxies []string `env:"SENTRA_TRUSTED_PROXIES" envSeparator:","`
}

// Load reads .env (best effort, like the rest of the local tooling) and
// parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("config: no .env file loaded:", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Production() {
		if c.AuthSecret == "" {
			return fmt.Errorf("config: SENTRA_AUTH_SECRET is required in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("config: JWT_SECRET is required in production")
		}
	}
	if c.AuthSecret == "" {
		c.AuthSecret = "dev_auth_secret_123"
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev_jwt_secret_123"
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("config: SENTRA_RATE_WINDOW must be positive")
	}
	switch strings.ToLower(c.AuditSink) {
	case "postgres", "file", "nats", "memory":
	default:
		return fmt.Errorf("config: unknown audit sink %q", c.AuditSink)
	}
	return nil
}

// Production reports whether the process runs with production hardening.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
