// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Challenge store backends.
const (
	ChallengeStoreMemory = "memory"
	ChallengeStoreRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// DatabaseDriver is "pgx" (Postgres) or "sqlite".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// DatabaseURL is the DSN for DatabaseDriver. Empty selects the in-memory account store (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// ChallengeStore is "memory" (single instance) or "redis" (shared between instances).
	ChallengeStore string `mapstructure:"CHALLENGE_STORE"`
	// RedisURL is the redis:// URL used when ChallengeStore is "redis".
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisKeyPrefix namespaces challenge keys (default hp:otp).
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	// OTPTTL is how long an issued code stays valid (default 5m).
	OTPTTL string `mapstructure:"OTP_TTL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTSecret is the HS256 secret (at least 32 bytes), used when no key pair is configured.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTOTPLoginTTL is the session lifetime after an OTP-gated login (e.g. "1h").
	JWTOTPLoginTTL string `mapstructure:"JWT_OTP_LOGIN_TTL"`
	// JWTDirectLoginTTL is the session lifetime after a direct password login (e.g. "168h").
	JWTDirectLoginTTL string `mapstructure:"JWT_DIRECT_LOGIN_TTL"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// HashConcurrency bounds concurrent bcrypt computations; 0 means GOMAXPROCS.
	HashConcurrency int `mapstructure:"HASH_CONCURRENCY"`

	// MailAPIURL is the mail relay endpoint codes are posted to.
	MailAPIURL string `mapstructure:"MAIL_API_URL"`
	// MailAPIKey is the bearer key for the mail relay.
	MailAPIKey string `mapstructure:"MAIL_API_KEY"`
	// MailSender is the From address of code mails.
	MailSender string `mapstructure:"MAIL_SENDER"`
	// OTPReturnToClient when true enables dev code mode: no mail is sent, codes are kept in memory and
	// readable through the dev gRPC service. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// RegistrationPolicyFile is an optional Rego file replacing the built-in registration policy.
	RegistrationPolicyFile string `mapstructure:"REGISTRATION_POLICY_FILE"`

	// Telemetry (optional). When the endpoint is set, traces, metrics and logs are exported via OTLP gRPC.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces a plaintext connection to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("DATABASE_DRIVER", "pgx")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("CHALLENGE_STORE", ChallengeStoreMemory)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_KEY_PREFIX", "hp:otp")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "health-portal")
	v.SetDefault("JWT_AUDIENCE", "health-portal-api")
	v.SetDefault("JWT_OTP_LOGIN_TTL", "1h")
	v.SetDefault("JWT_DIRECT_LOGIN_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("HASH_CONCURRENCY", 0)
	v.SetDefault("MAIL_API_URL", "")
	v.SetDefault("MAIL_API_KEY", "")
	v.SetDefault("MAIL_SENDER", "no-reply@health-portal.local")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("REGISTRATION_POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "health-portal")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseDriver != "pgx" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("config: DATABASE_DRIVER must be pgx or sqlite, got %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" && cfg.Env == "production" {
		return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}

	cfg.ChallengeStore = strings.ToLower(strings.TrimSpace(cfg.ChallengeStore))
	switch cfg.ChallengeStore {
	case ChallengeStoreMemory:
	case ChallengeStoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL must be set when CHALLENGE_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("config: CHALLENGE_STORE must be memory or redis, got %q", cfg.ChallengeStore)
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.HashConcurrency < 0 {
		return nil, errors.New("config: HASH_CONCURRENCY must not be negative")
	}

	return &cfg, nil
}

// ValidateServer checks the settings only the API server needs: a token signing key and a way to
// deliver codes. Tools such as migrate and seed skip it.
func (c *Config) ValidateServer() error {
	if c.JWTPrivateKey == "" && c.JWTPublicKey == "" && len(c.JWTSecret) < 32 {
		return errors.New("config: set JWT_PRIVATE_KEY and JWT_PUBLIC_KEY, or a JWT_SECRET of at least 32 bytes")
	}
	if !c.OTPReturnToClient && c.MailAPIURL == "" {
		return errors.New("config: MAIL_API_URL must be set unless OTP_RETURN_TO_CLIENT=true")
	}
	return nil
}

// ChallengeTTL parses OTPTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.OTPTTL, 5*time.Minute)
}

// OTPLoginTTL parses JWTOTPLoginTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) OTPLoginTTL() time.Duration {
	return parseDuration(c.JWTOTPLoginTTL, time.Hour)
}

// DirectLoginTTL parses JWTDirectLoginTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) DirectLoginTTL() time.Duration {
	return parseDuration(c.JWTDirectLoginTTL, 168*time.Hour)
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
