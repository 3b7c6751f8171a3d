package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultJWTSecret     = "change-me-jwt-secret"
	defaultGatewaySecret = "change-me-gateway-secret"
	defaultWebhookSecret = "change-me-webhook-secret"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"saheli.db"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AMQPURL      string        `envconfig:"AMQP_URL"`
	EventsTopic  string        `envconfig:"EVENTS_TOPIC" default:"booking.events"`
	WorkerAddr   string        `envconfig:"WORKER_ADDR" default:":8081"`
	CORSOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	Timezone     string        `envconfig:"TIMEZONE" default:"Asia/Kolkata"`
	JWTSecret    string        `envconfig:"JWT_SECRET" default:"change-me-jwt-secret"`
	JWTAccessTTL time.Duration `envconfig:"JWT_ACCESS_TTL" default:"24h"`

	Gateway GatewayConfig `envconfig:"GATEWAY"`
	Booking BookingConfig `envconfig:"BOOKING"`
	Sweeps  SweepConfig   `envconfig:"SWEEP"`
}

type GatewayConfig struct {
	KeyID         string        `envconfig:"KEY_ID" default:"rzp_test_key"`
	KeySecret     string        `envconfig:"KEY_SECRET" default:"change-me-gateway-secret"`
	WebhookSecret string        `envconfig:"WEBHOOK_SECRET" default:"change-me-webhook-secret"`
	BaseURL       string        `envconfig:"BASE_URL" default:"https://api.razorpay.com/v1"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"10s"`
	Currency      string        `envconfig:"CURRENCY" default:"INR"`
}

type BookingConfig struct {
	PaymentWindow          time.Duration `envconfig:"PAYMENT_WINDOW" default:"15m"`
	ManualStartLead        time.Duration `envconfig:"MANUAL_START_LEAD" default:"30m"`
	AutoStartGrace         time.Duration `envconfig:"AUTO_START_GRACE" default:"15m"`
	AutoCompleteGrace      time.Duration `envconfig:"AUTO_COMPLETE_GRACE" default:"30m"`
	ReminderLead           time.Duration `envconfig:"REMINDER_LEAD" default:"60m"`
	RemainingOrderCooldown time.Duration `envconfig:"REMAINING_ORDER_COOLDOWN" default:"30s"`
	SlotLockTTL            time.Duration `envconfig:"SLOT_LOCK_TTL" default:"10s"`
	CreateRatePerMinute    int           `envconfig:"CREATE_RATE_PER_MINUTE" default:"10"`
}

type SweepConfig struct {
	Expire       time.Duration `envconfig:"EXPIRE_INTERVAL" default:"5m"`
	AutoStart    time.Duration `envconfig:"AUTO_START_INTERVAL" default:"1m"`
	AutoComplete time.Duration `envconfig:"AUTO_COMPLETE_INTERVAL" default:"2m"`
	Reminder     time.Duration `envconfig:"REMINDER_INTERVAL" default:"5m"`
	LeaderTTL    time.Duration `envconfig:"LEADER_TTL" default:"50s"`
}

// Load reads an optional .env file and decodes SAHELI_* variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process("saheli", cfg); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	durations := map[string]time.Duration{
		"SAHELI_JWT_ACCESS_TTL":                   cfg.JWTAccessTTL,
		"SAHELI_GATEWAY_TIMEOUT":                  cfg.Gateway.Timeout,
		"SAHELI_BOOKING_PAYMENT_WINDOW":           cfg.Booking.PaymentWindow,
		"SAHELI_BOOKING_REMAINING_ORDER_COOLDOWN": cfg.Booking.RemainingOrderCooldown,
		"SAHELI_BOOKING_SLOT_LOCK_TTL":            cfg.Booking.SlotLockTTL,
		"SAHELI_SWEEP_EXPIRE_INTERVAL":            cfg.Sweeps.Expire,
		"SAHELI_SWEEP_AUTO_START_INTERVAL":        cfg.Sweeps.AutoStart,
		"SAHELI_SWEEP_AUTO_COMPLETE_INTERVAL":     cfg.Sweeps.AutoComplete,
		"SAHELI_SWEEP_REMINDER_INTERVAL":          cfg.Sweeps.Reminder,
		"SAHELI_SWEEP_LEADER_TTL":                 cfg.Sweeps.LeaderTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if cfg.Booking.ManualStartLead < 0 || cfg.Booking.AutoStartGrace < 0 || cfg.Booking.AutoCompleteGrace < 0 {
		return fmt.Errorf("booking grace windows must not be negative")
	}
	if cfg.Booking.CreateRatePerMinute <= 0 {
		return fmt.Errorf("SAHELI_BOOKING_CREATE_RATE_PER_MINUTE must be > 0")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("SAHELI_DATABASE_URL must not be empty")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("SAHELI_TIMEZONE is invalid: %w", err)
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release SAHELI_JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.Gateway.KeySecret, defaultGatewaySecret) {
			return fmt.Errorf("in prod/release SAHELI_GATEWAY_KEY_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.Gateway.WebhookSecret, defaultWebhookSecret) {
			return fmt.Errorf("in prod/release SAHELI_GATEWAY_WEBHOOK_SECRET must be set and not default")
		}
		if cfg.RedisAddr == "" {
			return fmt.Errorf("in prod/release SAHELI_REDIS_ADDR must be set")
		}
	}
	return nil
}

func isProdLike(appEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "prod", "production", "release":
		return true
	default:
		return false
	}
}

func isEmptyOrDefault(value, def string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == def
}
