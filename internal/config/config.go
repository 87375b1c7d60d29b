package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthDevelopment = "development"
	AuthJWT         = "jwt"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	AuthMode    string `mapstructure:"AUTH_MODE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSigningKey   string        `mapstructure:"JWT_SIGNING_KEY"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	GoogleClientID  string        `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleJWKSURL   string        `mapstructure:"GOOGLE_JWKS_URL"`

	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimit       int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
	UploadLimit     string        `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	LinkCodeMaxAttempts   int           `mapstructure:"LINK_CODE_MAX_ATTEMPTS"`
	LinkCodeAttemptWindow time.Duration `mapstructure:"LINK_CODE_ATTEMPT_WINDOW"`

	EventsBackend string   `mapstructure:"EVENTS_BACKEND"`
	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic    string   `mapstructure:"KAFKA_TOPIC"`
	SQSQueueURL   string   `mapstructure:"SQS_QUEUE_URL"`

	BlobBackend string `mapstructure:"BLOB_BACKEND"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_SCHEMA", "REDIS_URL", "JWT_SIGNING_KEY", "ACCESS_TOKEN_TTL",
	"REFRESH_TOKEN_TTL", "GOOGLE_CLIENT_ID", "GOOGLE_JWKS_URL", "CORS_ORIGINS",
	"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "BODY_LIMIT", "UPLOAD_LIMIT",
	"REQUEST_TIMEOUT", "LINK_CODE_MAX_ATTEMPTS", "LINK_CODE_ATTEMPT_WINDOW",
	"EVENTS_BACKEND", "KAFKA_BROKERS", "KAFKA_TOPIC", "SQS_QUEUE_URL",
	"BLOB_BACKEND", "S3_BUCKET", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("ACCESS_TOKEN_TTL", "60m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h")
	v.SetDefault("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_REQUESTS", 300)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "6M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LINK_CODE_MAX_ATTEMPTS", 10)
	v.SetDefault("LINK_CODE_ATTEMPT_WINDOW", "10m")
	v.SetDefault("EVENTS_BACKEND", "log")
	v.SetDefault("KAFKA_TOPIC", "saude-events")
	v.SetDefault("BLOB_BACKEND", "memory")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments get development auth (dev login and the X-Account-ID header)
// and everything else gets jwt.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthDevelopment
	}
	return AuthJWT
}

// Validate checks that the configuration is consistent and safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	switch mode {
	case AuthDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed when ENV=production")
		}
	case AuthJWT:
		if len(c.JWTSigningKey) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 characters when AUTH_MODE is %q", mode)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthDevelopment, AuthJWT, mode)
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.LinkCodeMaxAttempts <= 0 || c.LinkCodeAttemptWindow <= 0 {
		return fmt.Errorf("LINK_CODE_MAX_ATTEMPTS and LINK_CODE_ATTEMPT_WINDOW must be positive")
	}

	switch c.EventsBackend {
	case "log":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_BACKEND is kafka")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when EVENTS_BACKEND is sqs")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be log, kafka or sqs, got %q", c.EventsBackend)
	}

	switch c.BlobBackend {
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("BLOB_BACKEND=memory is not allowed when ENV=production")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is s3")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be memory or s3, got %q", c.BlobBackend)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
