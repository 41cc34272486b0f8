// Package config loads Procguard's configuration via spf13/viper with
// .env support via joho/godotenv, the teacher's config stack. Grounded
// on the call sites in the teacher's internal/app/application.go
// (`config.Load()`, `cfg.Database.URL`, `cfg.LogLevel`,
// `cfg.Environment`, `cfg.Server.Port/ReadTimeout/WriteTimeout`) since
// the teacher's own infrastructure/config source is not present in the
// retrieval pack; the shape here is reconstructed from that usage and
// extended with the fields this domain needs (resilience thresholds,
// Redis, JWT actor assertions, checkpoint signing).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DatabaseConfig holds the ledger store's connection settings.
// URL is mandatory (spec.md §6): Load returns an error if it is empty.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ApplyMigrations bool          `mapstructure:"apply_migrations"`
}

// ServerConfig holds the process's own listening parameters, kept even
// though this spec carries no HTTP router of its own: a health/metrics
// endpoint still listens on Port (SPEC_FULL.md §2).
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds the LKG cache's connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BreakerConfig mirrors resilience.Params for one track.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	HalfOpenSuccess  uint32        `mapstructure:"half_open_success"`
}

// ResilienceConfig holds the dual-track breaker parameters, one
// BreakerConfig per track, shared by every endpoint unless a deployment
// overrides them per-endpoint in code.
type ResilienceConfig struct {
	Availability BreakerConfig `mapstructure:"availability"`
	Integrity    BreakerConfig `mapstructure:"integrity"`
}

// IdentityConfig holds the actor assertion signing secret and audience.
type IdentityConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	Audience    string        `mapstructure:"audience"`
	AssertionTTL time.Duration `mapstructure:"assertion_ttl"`
}

// CheckpointConfig holds the checkpoint HMAC master secret.
type CheckpointConfig struct {
	MasterSecret string `mapstructure:"master_secret"`
}

// JobsConfig holds the cron schedules for the two reverification jobs.
type JobsConfig struct {
	FilterAuditCron string `mapstructure:"filter_audit_cron"`
	EvidenceCron    string `mapstructure:"evidence_cron"`
}

// TracingConfig mirrors tracing.Config's fields; Enabled defaults to
// false so a deployment with no collector never tries to dial one.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// LKGConfig controls how long a last-known-good snapshot is trusted
// before a degraded-mode read treats it as absent.
type LKGConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Config is the fully-resolved application configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Server      ServerConfig     `mapstructure:"server"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Resilience  ResilienceConfig `mapstructure:"resilience"`
	Identity    IdentityConfig   `mapstructure:"identity"`
	Checkpoint  CheckpointConfig `mapstructure:"checkpoint"`
	Jobs        JobsConfig       `mapstructure:"jobs"`
	Tracing     TracingConfig    `mapstructure:"tracing"`
	LKG         LKGConfig        `mapstructure:"lkg"`
}

// Load reads a .env file if present (missing is not an error), then
// binds environment variables through viper with PROCGUARD_ prefix and
// nested-key underscore replacement, applies defaults, and validates
// the mandatory fields.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROCGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.BindEnv("environment")
	v.BindEnv("log_level")
	v.BindEnv("database.url")
	v.BindEnv("database.apply_migrations")
	v.BindEnv("redis.addr")
	v.BindEnv("redis.password")
	v.BindEnv("identity.jwt_secret")
	v.BindEnv("identity.audience")
	v.BindEnv("checkpoint.master_secret")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.apply_migrations", false)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("resilience.availability.failure_threshold", 5)
	v.SetDefault("resilience.availability.reset_timeout", 30*time.Second)
	v.SetDefault("resilience.availability.half_open_success", 2)
	v.SetDefault("resilience.integrity.failure_threshold", 1)
	v.SetDefault("resilience.integrity.reset_timeout", 60*time.Second)
	v.SetDefault("resilience.integrity.half_open_success", 3)
	v.SetDefault("identity.audience", "procguard")
	v.SetDefault("identity.assertion_ttl", 15*time.Minute)
	v.SetDefault("jobs.filter_audit_cron", "@every 5m")
	v.SetDefault("jobs.evidence_cron", "@every 10m")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_url", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 0.1)
	v.SetDefault("lkg.ttl", 15*time.Minute)
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_URL (PROCGUARD_DATABASE_URL) is mandatory")
	}
	if cfg.Identity.JWTSecret == "" {
		return fmt.Errorf("config: identity.jwt_secret (PROCGUARD_IDENTITY_JWT_SECRET) is mandatory")
	}
	if cfg.Checkpoint.MasterSecret == "" {
		return fmt.Errorf("config: checkpoint.master_secret (PROCGUARD_CHECKPOINT_MASTER_SECRET) is mandatory")
	}
	return nil
}
