// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTSecret is the HS256 signing secret; used when no PEM key pair is configured.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// AccessTokenTTL is the access token lifetime (e.g. "60m").
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTokenTTL is the refresh token lifetime (e.g. "720h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`
	// SingleSessionLineage revokes every prior refresh token of an identity on login.
	SingleSessionLineage bool `mapstructure:"SINGLE_SESSION_LINEAGE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	OTPLength      int    `mapstructure:"OTP_LENGTH"`
	OTPTTL         string `mapstructure:"OTP_TTL"`
	OTPCooldown    string `mapstructure:"OTP_COOLDOWN"`
	OTPMaxAttempts int    `mapstructure:"OTP_MAX_ATTEMPTS"`
	// PhoneDefaultRegion is the ISO region used to parse phone numbers without a country code.
	PhoneDefaultRegion string `mapstructure:"PHONE_DEFAULT_REGION"`

	// Notifier selects code delivery: smtp, sms or dev. Unset means dev outside production
	// and smtp in production.
	Notifier     string `mapstructure:"NOTIFIER"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPFromName string `mapstructure:"SMTP_FROM_NAME"`
	// SMSLocalAPIKey is the API key for SMS Local; required when NOTIFIER=sms.
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// OTPReturnToClient enables dev OTP mode: codes are kept in memory for GET /dev/otp.
	// Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// AdmissionPolicyPath is an optional Rego file replacing the default login admission policy.
	AdmissionPolicyPath string `mapstructure:"ADMISSION_POLICY_PATH"`
	CORSAllowOrigins    string `mapstructure:"CORS_ALLOW_ORIGINS"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// KafkaBrokers is a comma-separated list of brokers for auth events; empty disables the producer.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group the worker uses when forwarding events to Loki.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL enables the worker's Kafka to Loki forwarder (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// Worker-only: how often the sweep runs and how long expired rows are retained.
	SweepInterval  string `mapstructure:"SWEEP_INTERVAL"`
	SweepRetention string `mapstructure:"SWEEP_RETENTION"`
}

// Engine is the immutable set of engine knobs built once at startup and passed by value
// into each component.
type Engine struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	SingleSessionLineage bool
	BcryptCost           int
	OTPLength            int
	OTPTTL               time.Duration
	OTPCooldown          time.Duration
	OTPMaxAttempts       int
	PhoneDefaultRegion   string
}

// DefaultEngine returns the engine defaults.
func DefaultEngine() Engine {
	return Engine{
		AccessTokenTTL:       60 * time.Minute,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		SingleSessionLineage: true,
		BcryptCost:           12,
		OTPLength:            6,
		OTPTTL:               5 * time.Minute,
		OTPCooldown:          60 * time.Second,
		OTPMaxAttempts:       3,
		PhoneDefaultRegion:   "PE",
	}
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "armala-auth")
	v.SetDefault("JWT_AUDIENCE", "armala-api")
	v.SetDefault("ACCESS_TOKEN_TTL", "60m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h") // 30d
	v.SetDefault("SINGLE_SESSION_LINEAGE", true)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("PHONE_DEFAULT_REGION", "PE")
	v.SetDefault("NOTIFIER", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_FROM_NAME", "Armala")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("ADMISSION_POLICY_PATH", "")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_TOPIC", "auth-events")
	v.SetDefault("KAFKA_GROUP_ID", "auth-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_RETENTION", "24h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 10 {
		return nil, errors.New("config: OTP_LENGTH must be between 4 and 10")
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	for key, val := range map[string]string{
		"ACCESS_TOKEN_TTL":  cfg.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": cfg.RefreshTokenTTL,
		"OTP_TTL":           cfg.OTPTTL,
		"OTP_COOLDOWN":      cfg.OTPCooldown,
		"SWEEP_INTERVAL":    cfg.SweepInterval,
		"SWEEP_RETENTION":   cfg.SweepRetention,
	} {
		d, err := time.ParseDuration(val)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("config: %s must be a positive duration, got %q", key, val)
		}
	}
	if cfg.Notifier == "" {
		cfg.Notifier = "dev"
		if cfg.Env == "production" {
			cfg.Notifier = "smtp"
		}
	}
	switch cfg.Notifier {
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			return nil, errors.New("config: SMTP_HOST and SMTP_FROM must be set when NOTIFIER=smtp")
		}
		if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
			return nil, fmt.Errorf("config: SMTP_PORT must be a valid port, got %d", cfg.SMTPPort)
		}
	case "sms":
		if cfg.SMSLocalAPIKey == "" {
			return nil, errors.New("config: SMS_LOCAL_API_KEY must be set when NOTIFIER=sms")
		}
	case "dev":
		if cfg.Env == "production" {
			return nil, errors.New("config: NOTIFIER=dev must not be used when APP_ENV=production")
		}
	default:
		return nil, fmt.Errorf("config: NOTIFIER must be smtp, sms or dev, got %q", cfg.Notifier)
	}

	return &cfg, nil
}

// DevOTPEnabled reports whether issued codes are kept in the in-process dev store and
// served from /dev/otp. Load refuses both triggers in production.
func (c *Config) DevOTPEnabled() bool {
	return c != nil && (c.OTPReturnToClient || c.Notifier == "dev")
}

// Engine returns the engine settings. Durations were validated by Load; an unparsable
// value (only possible for hand-built Configs) falls back to the default.
func (c *Config) Engine() Engine {
	def := DefaultEngine()
	return Engine{
		AccessTokenTTL:       parseDuration(c.AccessTokenTTL, def.AccessTokenTTL),
		RefreshTokenTTL:      parseDuration(c.RefreshTokenTTL, def.RefreshTokenTTL),
		SingleSessionLineage: c.SingleSessionLineage,
		BcryptCost:           orDefault(c.BcryptCost, def.BcryptCost),
		OTPLength:            orDefault(c.OTPLength, def.OTPLength),
		OTPTTL:               parseDuration(c.OTPTTL, def.OTPTTL),
		OTPCooldown:          parseDuration(c.OTPCooldown, def.OTPCooldown),
		OTPMaxAttempts:       orDefault(c.OTPMaxAttempts, def.OTPMaxAttempts),
		PhoneDefaultRegion:   orDefaultString(strings.ToUpper(strings.TrimSpace(c.PhoneDefaultRegion)), def.PhoneDefaultRegion),
	}
}

// SweepEvery parses SweepInterval. Returns 1h if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return parseDuration(c.SweepInterval, time.Hour)
}

// SweepRetain parses SweepRetention. Returns 24h if unset or invalid.
func (c *Config) SweepRetain() time.Duration {
	return parseDuration(c.SweepRetention, 24*time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func orDefaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
