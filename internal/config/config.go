package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	ConfigPathEnvVar = "KIXIKILA_CONFIG"
	envPrefix        = "KIXIKILA_"
)

type Config struct {
	App      AppConfig      `koanf:"app"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	OTP      OTPConfig      `koanf:"otp"`
	Stripe   StripeConfig   `koanf:"stripe"`
	Twilio   TwilioConfig   `koanf:"twilio"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Cleanup  CleanupConfig  `koanf:"cleanup"`
}

type AppConfig struct {
	Env  string `koanf:"env"`
	Port string `koanf:"port"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// OTPConfig mirrors the lockout the mobile client used to apply locally:
// MaxAttempts wrong codes lock the phone out for BlockDuration.
type OTPConfig struct {
	TTL            time.Duration `koanf:"ttl"`
	Length         int           `koanf:"length"`
	MaxAttempts    int           `koanf:"max_attempts"`
	ResendCooldown time.Duration `koanf:"resend_cooldown"`
	BlockDuration  time.Duration `koanf:"block_duration"`
	CleanupGrace   time.Duration `koanf:"cleanup_grace"`
}

type StripeConfig struct {
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
	Currency      string `koanf:"currency"`
	VIPPriceID    string `koanf:"vip_price_id"`
	SuccessURL    string `koanf:"success_url"`
	CancelURL     string `koanf:"cancel_url"`
}

type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	FromNumber string `koanf:"from_number"`
}

type SecurityConfig struct {
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	AuthRateLimit   int           `koanf:"auth_rate_limit"`
	AuthRateWindow  time.Duration `koanf:"auth_rate_window"`
	MoneyRateLimit  int           `koanf:"money_rate_limit"`
	MoneyRateWindow time.Duration `koanf:"money_rate_window"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type CleanupConfig struct {
	Interval                  time.Duration `koanf:"interval"`
	WebhookRetention          time.Duration `koanf:"webhook_retention"`
	ReadNotificationRetention time.Duration `koanf:"read_notification_retention"`
	// PendingPaymentTTL is how long a card payment may wait for the
	// processor before it is cancelled.
	PendingPaymentTTL time.Duration `koanf:"pending_payment_ttl"`
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			Env:  "development",
			Port: "8080",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    30,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret",
			TokenTTL:  24 * time.Hour,
		},
		OTP: OTPConfig{
			TTL:            5 * time.Minute,
			Length:         6,
			MaxAttempts:    5,
			ResendCooldown: 60 * time.Second,
			BlockDuration:  15 * time.Minute,
			CleanupGrace:   24 * time.Hour,
		},
		Stripe: StripeConfig{
			Currency:   "aoa",
			SuccessURL: "http://localhost:3000/subscription/success",
			CancelURL:  "http://localhost:3000/subscription/cancel",
		},
		Security: SecurityConfig{
			AllowedOrigins:  []string{"*"},
			AuthRateLimit:   10,
			AuthRateWindow:  time.Minute,
			MoneyRateLimit:  30,
			MoneyRateWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Cleanup: CleanupConfig{
			Interval:                  time.Hour,
			WebhookRetention:          90 * 24 * time.Hour,
			ReadNotificationRetention: 90 * 24 * time.Hour,
			PendingPaymentTTL:         24 * time.Hour,
		},
	}
}

// Load layers defaults, an optional YAML file and the environment, in that order.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, path := range []string{os.Getenv(ConfigPathEnvVar), "config.yaml", "/etc/kixikila/config.yaml"} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var legacyEnv = map[string]string{
	"PORT":                  "app.port",
	"APP_ENV":               "app.env",
	"DATABASE_URL":          "database.url",
	"REDIS_ADDR":            "redis.addr",
	"REDIS_PASSWORD":        "redis.password",
	"JWT_SECRET":            "auth.jwt_secret",
	"TOKEN_TTL":             "auth.token_ttl",
	"ALLOWED_ORIGINS":       "security.allowed_origins",
	"STRIPE_SECRET_KEY":     "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET": "stripe.webhook_secret",
	"STRIPE_VIP_PRICE_ID":   "stripe.vip_price_id",
	"TWILIO_ACCOUNT_SID":    "twilio.account_sid",
	"TWILIO_AUTH_TOKEN":     "twilio.auth_token",
	"TWILIO_FROM_NUMBER":    "twilio.from_number",
	"LOG_LEVEL":             "logging.level",
	"LOG_FORMAT":            "logging.format",
}

// envKey maps DATABASE_URL style names and KIXIKILA_SECTION_KEY names to
// koanf paths. Anything else is dropped.
func envKey(name string) string {
	if path, ok := legacyEnv[name]; ok {
		return path
	}
	if !strings.HasPrefix(name, envPrefix) {
		return ""
	}
	rest := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok || key == "" {
		return ""
	}
	return section + "." + key
}

// listKeys are slice settings given as comma separated env values.
var listKeys = map[string]bool{
	"security.allowed_origins": true,
}

func envValue(name, value string) (string, any) {
	path := envKey(name)
	if path == "" || !listKeys[path] {
		return path, value
	}
	return path, splitList(value)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.App.Env != "development" && c.App.Env != "test"
}

func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes outside development"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.OTP.TTL <= 0 || c.OTP.ResendCooldown <= 0 || c.OTP.BlockDuration <= 0 {
		errs = append(errs, errors.New("otp durations must be positive"))
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		errs = append(errs, errors.New("otp.length must be between 4 and 10"))
	}
	if c.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("otp.max_attempts must be positive"))
	}
	if c.IsProduction() && c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("stripe.webhook_secret is required when stripe is enabled"))
	}
	return errors.Join(errs...)
}
