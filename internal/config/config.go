package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config aggregates application configuration values.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	FrontendURL string
	CORSOrigins string

	Auth     AuthConfig
	Payment  PaymentConfig
	Meeting  MeetingConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Defaults FeeDefaults
}

// AuthConfig holds token signing and admin seeding settings.
type AuthConfig struct {
	JWTSecret      string
	AdminJWTSecret string
	TokenTTL       time.Duration
	AdminEmail     string
	AdminPassword  string
}

// PaymentConfig selects and configures the checkout provider.
type PaymentConfig struct {
	Provider         string // mock|stripe
	StripeSecretKey  string
	StripeWebhookKey string
	Currency         string
	Timeout          time.Duration
	DevSecret        string
}

// MeetingConfig controls generated consultation links.
type MeetingConfig struct {
	BaseURL string
}

// StorageConfig selects where uploaded documents live.
type StorageConfig struct {
	Driver    string // local|s3|supabase
	UploadDir string
	URLPrefix string

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

// FeeDefaults apply when an advocate has not configured a fee.
type FeeDefaults struct {
	AdvanceFee      decimal.Decimal
	ConsultationFee decimal.Decimal
}

const (
	defaultPort            = "3000"
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultPaymentTimeout  = 15 * time.Second
	minPaymentTimeout      = 10 * time.Second
	maxPaymentTimeout      = 20 * time.Second
	defaultAdvanceFee      = "1000"
	defaultConsultationFee = "500"
)

// Load reads configuration from the environment (and .env when present), applying defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:      valueOrDefault("APP_ENV", "dev"),
		Port:        valueOrDefault("PORT", defaultPort),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		FrontendURL: strings.TrimRight(valueOrDefault("FRONTEND_URL", "http://localhost:5173"), "/"),
		CORSOrigins: valueOrDefault("CORS_ORIGINS", "*"),
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
			AdminEmail:     strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
			AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		},
		Payment: PaymentConfig{
			Provider:         strings.ToLower(valueOrDefault("PAYMENT_PROVIDER", "mock")),
			StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
			StripeWebhookKey: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:         strings.ToLower(valueOrDefault("PAYMENT_CURRENCY", "inr")),
			DevSecret:        os.Getenv("DEV_PAYMENT_SECRET"),
		},
		Meeting: MeetingConfig{
			BaseURL: strings.TrimRight(valueOrDefault("MEETING_BASE_URL", "https://meet.jit.si"), "/"),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(valueOrDefault("STORAGE_DRIVER", "local")),
			UploadDir:      valueOrDefault("UPLOAD_DIR", "./uploads"),
			URLPrefix:      valueOrDefault("UPLOAD_URL_PREFIX", "/uploads"),
			S3Bucket:       os.Getenv("S3_BUCKET"),
			S3Region:       valueOrDefault("S3_REGION", "us-east-1"),
			S3Endpoint:     os.Getenv("S3_ENDPOINT"),
			S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
			S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
			SupabaseURL:    os.Getenv("SUPABASE_URL"),
			SupabaseKey:    os.Getenv("SUPABASE_SERVICE_KEY"),
			SupabaseBucket: os.Getenv("SUPABASE_BUCKET"),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", "info"),
			Format:        valueOrDefault("LOG_FORMAT", "text"),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	var err error
	if cfg.Auth.TokenTTL, err = parseDuration("TOKEN_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.Payment.Timeout, err = parseDuration("PAYMENT_TIMEOUT", defaultPaymentTimeout); err != nil {
		return Config{}, err
	}
	cfg.Payment.Timeout = clampDuration(cfg.Payment.Timeout, minPaymentTimeout, maxPaymentTimeout)

	if cfg.Defaults.AdvanceFee, err = parseDecimal("DEFAULT_ADVANCE_FEE", defaultAdvanceFee); err != nil {
		return Config{}, err
	}
	if cfg.Defaults.ConsultationFee, err = parseDecimal("DEFAULT_CONSULTATION_FEE", defaultConsultationFee); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c Config) IsDev() bool { return c.AppEnv == "dev" }

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.AdminJWTSecret == "" {
		if !c.IsDev() {
			return errors.New("JWT_SECRET and ADMIN_JWT_SECRET are required")
		}
		if c.Auth.JWTSecret == "" {
			c.Auth.JWTSecret = "dev-user-secret"
		}
		if c.Auth.AdminJWTSecret == "" {
			c.Auth.AdminJWTSecret = "dev-admin-secret"
		}
	}
	switch c.Payment.Provider {
	case "mock":
		// mock sessions always report paid
		if !c.IsDev() {
			return errors.New("PAYMENT_PROVIDER=mock is only allowed with APP_ENV=dev")
		}
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("unsupported PAYMENT_PROVIDER %q", c.Payment.Provider)
	}
	switch c.Storage.Driver {
	case "local", "s3", "supabase":
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseDecimal reads a fee that must be greater than zero.
func parseDecimal(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(valueOrDefault(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
