package config

import (
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"GRPC_ADDR", "APP_ENV", "DATABASE_DRIVER", "DATABASE_URL", "CHALLENGE_STORE", "REDIS_URL",
	"REDIS_KEY_PREFIX", "OTP_TTL", "JWT_PRIVATE_KEY", "JWT_PUBLIC_KEY", "JWT_SECRET", "JWT_ISSUER",
	"JWT_AUDIENCE", "JWT_OTP_LOGIN_TTL", "JWT_DIRECT_LOGIN_TTL", "BCRYPT_COST", "HASH_CONCURRENCY",
	"MAIL_API_URL", "MAIL_API_KEY", "MAIL_SENDER", "OTP_RETURN_TO_CLIENT", "REGISTRATION_POLICY_FILE",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME",
}

// clearEnv blanks every config key for the test. Viper ignores empty env values, so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.DatabaseDriver != "pgx" {
		t.Errorf("DatabaseDriver = %q, want pgx", cfg.DatabaseDriver)
	}
	if cfg.ChallengeStore != ChallengeStoreMemory {
		t.Errorf("ChallengeStore = %q, want memory", cfg.ChallengeStore)
	}
	if cfg.RedisKeyPrefix != "hp:otp" {
		t.Errorf("RedisKeyPrefix = %q, want hp:otp", cfg.RedisKeyPrefix)
	}
	if cfg.JWTIssuer != "health-portal" || cfg.JWTAudience != "health-portal-api" {
		t.Errorf("JWT iss/aud = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.ChallengeTTL() != 5*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 5m", cfg.ChallengeTTL())
	}
	if cfg.OTPLoginTTL() != time.Hour {
		t.Errorf("OTPLoginTTL = %v, want 1h", cfg.OTPLoginTTL())
	}
	if cfg.DirectLoginTTL() != 168*time.Hour {
		t.Errorf("DirectLoginTTL = %v, want 168h", cfg.DirectLoginTTL())
	}
	if cfg.OTelServiceName != "health-portal" {
		t.Errorf("OTelServiceName = %q", cfg.OTelServiceName)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_ADDR", ":9090")
	t.Setenv("JWT_ISSUER", "custom-issuer")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("OTP_TTL", "10m")
	t.Setenv("JWT_OTP_LOGIN_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("DatabaseDriver = %q, want sqlite", cfg.DatabaseDriver)
	}
	if cfg.ChallengeTTL() != 10*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 10m", cfg.ChallengeTTL())
	}
	if cfg.OTPLoginTTL() != 30*time.Minute {
		t.Errorf("OTPLoginTTL = %v, want 30m", cfg.OTPLoginTTL())
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // Should default to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"dev codes in production", map[string]string{"OTP_RETURN_TO_CLIENT": "true", "APP_ENV": "production", "DATABASE_URL": "postgres://x"}, "OTP_RETURN_TO_CLIENT"},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"production without database", map[string]string{"APP_ENV": "production"}, "DATABASE_URL"},
		{"unknown challenge store", map[string]string{"CHALLENGE_STORE": "etcd"}, "CHALLENGE_STORE"},
		{"redis without url", map[string]string{"CHALLENGE_STORE": "redis"}, "REDIS_URL"},
		{"negative hash concurrency", map[string]string{"HASH_CONCURRENCY": "-1"}, "HASH_CONCURRENCY"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTP_RETURN_TO_CLIENT", "true")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should be true")
	}
	if cfg.Production() {
		t.Error("development is not production")
	}
}

func TestLoad_RedisStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHALLENGE_STORE", " Redis ")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChallengeStore != ChallengeStoreRedis {
		t.Errorf("ChallengeStore = %q, want redis", cfg.ChallengeStore)
	}
}

func TestValidateServer(t *testing.T) {
	secret := strings.Repeat("s", 32)
	testCases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"hmac secret and mail relay", Config{JWTSecret: secret, MailAPIURL: "https://mail.example.com/send"}, true},
		{"key pair and dev codes", Config{JWTPrivateKey: "priv", JWTPublicKey: "pub", OTPReturnToClient: true}, true},
		{"short secret", Config{JWTSecret: "short", MailAPIURL: "https://mail.example.com/send"}, false},
		{"no signing key", Config{MailAPIURL: "https://mail.example.com/send"}, false},
		{"no delivery", Config{JWTSecret: secret}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateServer()
			if (err == nil) != tc.ok {
				t.Errorf("ValidateServer() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{OTPTTL: "invalid", JWTOTPLoginTTL: "-1h", JWTDirectLoginTTL: ""}
	if cfg.ChallengeTTL() != 5*time.Minute {
		t.Errorf("ChallengeTTL = %v, want 5m", cfg.ChallengeTTL())
	}
	if cfg.OTPLoginTTL() != time.Hour {
		t.Errorf("OTPLoginTTL = %v, want 1h", cfg.OTPLoginTTL())
	}
	if cfg.DirectLoginTTL() != 168*time.Hour {
		t.Errorf("DirectLoginTTL = %v, want 168h", cfg.DirectLoginTTL())
	}
}
