// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// BookingConfig holds the defaults used when neither the organization nor the
// global app_settings rows override a value.
type BookingConfig struct {
	WindowDays            int    `yaml:"window_days"`
	SlotDurationMinutes   int    `yaml:"slot_duration_minutes"`
	MaxConsecutiveSlots   int    `yaml:"max_consecutive_slots"`
	PaymentTimeoutMinutes int    `yaml:"payment_timeout_minutes"`
	PeakStartHour         int    `yaml:"peak_start_hour"`
	PeakEndHour           int    `yaml:"peak_end_hour"`
	DefaultPhoneRegion    string `yaml:"default_phone_region"`
}

type RateLimitConfig struct {
	// Backend is "memory" (single instance) or "redis" (shared).
	Backend            string `yaml:"backend"`
	MaxAttemptsPerMin  int    `yaml:"max_attempts_per_minute"`
	TrustProxyForwards bool   `yaml:"trust_proxy_forwards"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // Loaded from environment
}

type SchedulerConfig struct {
	ExpirySweepCron string `yaml:"expiry_sweep_cron"`
}

type PaymentsConfig struct {
	// Provider is "none" or "omise".
	Provider   string `yaml:"provider"`
	ReturnURL  string `yaml:"return_url"`
	SourceType string `yaml:"source_type"`
	PublicKey  string `yaml:"-"` // Loaded from environment
	SecretKey  string `yaml:"-"` // Loaded from environment
}

type EmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type EventsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	BookingExchange string `yaml:"booking_exchange"`
	PaymentExchange string `yaml:"payment_exchange"`
	PaymentQueue    string `yaml:"payment_queue"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Booking   BookingConfig   `yaml:"booking"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Email     EmailConfig     `yaml:"email"`
	Events    EventsConfig    `yaml:"events"`

	Features struct {
		EnableDebug bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// DefaultBooking returns the booking defaults applied to zero-valued fields.
func DefaultBooking() BookingConfig {
	return BookingConfig{
		WindowDays:            14,
		SlotDurationMinutes:   60,
		MaxConsecutiveSlots:   4,
		PaymentTimeoutMinutes: 15,
		PeakStartHour:         18,
		PeakEndHour:           21,
		DefaultPhoneRegion:    "US",
	}
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Payments.PublicKey = os.Getenv("OMISE_PUBLIC_KEY")
	cfg.Payments.SecretKey = os.Getenv("OMISE_SECRET_KEY")
	cfg.Email.AccessKeyID = os.Getenv("AWS_SES_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SES_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultBooking()
	if c.Booking.WindowDays == 0 {
		c.Booking.WindowDays = defaults.WindowDays
	}
	if c.Booking.SlotDurationMinutes == 0 {
		c.Booking.SlotDurationMinutes = defaults.SlotDurationMinutes
	}
	if c.Booking.MaxConsecutiveSlots == 0 {
		c.Booking.MaxConsecutiveSlots = defaults.MaxConsecutiveSlots
	}
	if c.Booking.PaymentTimeoutMinutes == 0 {
		c.Booking.PaymentTimeoutMinutes = defaults.PaymentTimeoutMinutes
	}
	if c.Booking.PeakStartHour == 0 && c.Booking.PeakEndHour == 0 {
		c.Booking.PeakStartHour = defaults.PeakStartHour
		c.Booking.PeakEndHour = defaults.PeakEndHour
	}
	if c.Booking.DefaultPhoneRegion == "" {
		c.Booking.DefaultPhoneRegion = defaults.DefaultPhoneRegion
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.MaxAttemptsPerMin == 0 {
		c.RateLimit.MaxAttemptsPerMin = 10
	}
	if c.Scheduler.ExpirySweepCron == "" {
		c.Scheduler.ExpirySweepCron = "* * * * *"
	}
	if c.Payments.Provider == "" {
		c.Payments.Provider = "none"
	}
	if c.Payments.SourceType == "" {
		c.Payments.SourceType = "promptpay"
	}
	if c.Events.BookingExchange == "" {
		c.Events.BookingExchange = "booking.exchange"
	}
	if c.Events.PaymentExchange == "" {
		c.Events.PaymentExchange = "payment.exchange"
	}
	if c.Events.PaymentQueue == "" {
		c.Events.PaymentQueue = "booking.payment.q"
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if err := c.Booking.Validate(); err != nil {
		return err
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("unsupported rate limit backend: %s", c.RateLimit.Backend)
	}
	if c.RateLimit.MaxAttemptsPerMin < 1 {
		return fmt.Errorf("rate_limit.max_attempts_per_minute must be at least 1")
	}

	if _, err := cron.ParseStandard(c.Scheduler.ExpirySweepCron); err != nil {
		return fmt.Errorf("invalid scheduler.expiry_sweep_cron %q: %w", c.Scheduler.ExpirySweepCron, err)
	}

	switch c.Payments.Provider {
	case "none":
	case "omise":
		if c.Payments.PublicKey == "" || c.Payments.SecretKey == "" {
			return fmt.Errorf("omise keys are required for the omise payment provider")
		}
		if c.Payments.ReturnURL == "" {
			return fmt.Errorf("payments.return_url is required for the omise payment provider")
		}
	default:
		return fmt.Errorf("unsupported payment provider: %s", c.Payments.Provider)
	}

	if c.Email.Enabled {
		if c.Email.Region == "" || c.Email.Sender == "" {
			return fmt.Errorf("email region and sender are required when email is enabled")
		}
		if c.Email.AccessKeyID == "" || c.Email.SecretAccessKey == "" {
			return fmt.Errorf("ses credentials are required when email is enabled")
		}
	}

	if c.Events.Enabled && strings.TrimSpace(c.Events.URL) == "" {
		return fmt.Errorf("events url is required when events are enabled")
	}

	return nil
}

func (b BookingConfig) Validate() error {
	if b.WindowDays < 1 {
		return fmt.Errorf("booking.window_days must be at least 1")
	}
	if b.SlotDurationMinutes < 1 {
		return fmt.Errorf("booking.slot_duration_minutes must be at least 1")
	}
	if b.MaxConsecutiveSlots < 1 {
		return fmt.Errorf("booking.max_consecutive_slots must be at least 1")
	}
	if b.PaymentTimeoutMinutes < 1 {
		return fmt.Errorf("booking.payment_timeout_minutes must be at least 1")
	}
	if b.PeakStartHour < 0 || b.PeakEndHour > 24 || b.PeakStartHour >= b.PeakEndHour {
		return fmt.Errorf("booking peak window must satisfy 0 <= start < end <= 24")
	}
	return nil
}
