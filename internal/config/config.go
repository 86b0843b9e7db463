package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Auth          AuthConfig          `envconfig:"AUTH"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	DynamoDB      DynamoDBConfig      `envconfig:"DYNAMODB"`
	RateLimit     RateLimitConfig     `envconfig:"RATE_LIMIT"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	CORS          CORSConfig          `envconfig:"CORS"`
	Log           LogConfig           `envconfig:"LOG"`
	AWS           AWSConfig           `envconfig:"AWS"`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
}

type AuthConfig struct {
	Secret     string        `envconfig:"SECRET" default:"change-me-in-production"`
	TokenTTL   time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	CookieName string        `envconfig:"COOKIE_NAME" default:"portal_session"`
	Issuer     string        `envconfig:"ISSUER" default:"portal-api"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"12"`
}

type CacheConfig struct {
	TTL           time.Duration `envconfig:"TTL" default:"5m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
}

type RedisConfig struct {
	Address      string        `envconfig:"ADDRESS" default:"localhost:6379"`
	Password     string        `envconfig:"PASSWORD" default:""`
	Database     int           `envconfig:"DATABASE" default:"0"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"100"`
	PoolTimeout  time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"10"`
	TLSEnabled   bool          `envconfig:"TLS_ENABLED" default:"false"`
}

type DynamoDBConfig struct {
	UsersTableName         string `envconfig:"USERS_TABLE_NAME" default:"portal-users"`
	DistributorsTableName  string `envconfig:"DISTRIBUTORS_TABLE_NAME" default:"portal-distributors"`
	DocumentsTableName     string `envconfig:"DOCUMENTS_TABLE_NAME" default:"portal-documents"`
	NotificationsTableName string `envconfig:"NOTIFICATIONS_TABLE_NAME" default:"portal-notifications"`
	Region                 string `envconfig:"REGION" default:"eu-west-1"`
}

type RateLimitConfig struct {
	RPS         int           `envconfig:"RPS" default:"20"`
	Burst       int           `envconfig:"BURST" default:"40"`
	WindowSize  time.Duration `envconfig:"WINDOW_SIZE" default:"1s"`
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	ExemptPaths []string      `envconfig:"EXEMPT_PATHS" default:"/healthz,/readyz,/metrics"`
}

type ObservabilityConfig struct {
	MetricsPath    string  `envconfig:"METRICS_PATH" default:"/metrics"`
	OTLPEndpoint   string  `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4318"`
	TracingEnabled bool    `envconfig:"TRACING_ENABLED" default:"false"`
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"0.1"`
}

type CORSConfig struct {
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

type AWSConfig struct {
	Profile string `envconfig:"PROFILE" default:""`
}

func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Additional processing for slice fields that envconfig doesn't handle well
	if exemptPaths := os.Getenv("RATE_LIMIT_EXEMPT_PATHS"); exemptPaths != "" {
		cfg.RateLimit.ExemptPaths = strings.Split(exemptPaths, ",")
		for i := range cfg.RateLimit.ExemptPaths {
			cfg.RateLimit.ExemptPaths[i] = strings.TrimSpace(cfg.RateLimit.ExemptPaths[i])
		}
	}

	// Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether the server runs in production mode.
// Session cookies are marked Secure only in production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func validateConfig(cfg *Config) error {
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", cfg.Server.Port)
	}

	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive: %s", cfg.Auth.TokenTTL)
	}

	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive: %s", cfg.Cache.TTL)
	}

	if cfg.IsProduction() && cfg.Auth.Secret == "change-me-in-production" {
		return fmt.Errorf("AUTH_SECRET must be set in production")
	}

	if cfg.Observability.SampleRate < 0 || cfg.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %f", cfg.Observability.SampleRate)
	}

	return nil
}
