package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `app:
  name: "Courtside"
  port: 8080
database:
  driver: "sqlite"
  filename: "data/test.db"
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Booking != DefaultBooking() {
		t.Errorf("booking defaults not applied: %+v", cfg.Booking)
	}
	if cfg.RateLimit.Backend != "memory" || cfg.RateLimit.MaxAttemptsPerMin != 10 {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Scheduler.ExpirySweepCron != "* * * * *" {
		t.Errorf("unexpected sweep cron %q", cfg.Scheduler.ExpirySweepCron)
	}
	if cfg.Payments.Provider != "none" || cfg.Events.PaymentQueue != "booking.payment.q" {
		t.Errorf("unexpected payment/event defaults: %+v %+v", cfg.Payments, cfg.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("minimal config should validate: %v", err)
	}
}

func TestParse_KeepsExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `booking:
  window_days: 7
  peak_start_hour: 17
  peak_end_hour: 20
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Booking.WindowDays != 7 || cfg.Booking.PeakStartHour != 17 || cfg.Booking.PeakEndHour != 20 {
		t.Errorf("explicit booking values overwritten: %+v", cfg.Booking)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing name", func(c *Config) { c.App.Name = "" }, "app name"},
		{"unsupported driver", func(c *Config) { c.Database.Driver = "postgres" }, "unsupported database driver"},
		{"redis without addr", func(c *Config) { c.RateLimit.Backend = "redis" }, "redis addr"},
		{"unknown limiter", func(c *Config) { c.RateLimit.Backend = "etcd" }, "rate limit backend"},
		{"bad cron", func(c *Config) { c.Scheduler.ExpirySweepCron = "every minute" }, "expiry_sweep_cron"},
		{"omise without keys", func(c *Config) { c.Payments.Provider = "omise" }, "omise keys"},
		{"email without credentials", func(c *Config) {
			c.Email.Enabled = true
			c.Email.Region = "us-east-1"
			c.Email.Sender = "a@example.com"
		}, "ses credentials"},
		{"events without url", func(c *Config) { c.Events.Enabled = true }, "events url"},
		{"inverted peak window", func(c *Config) {
			c.Booking.PeakStartHour = 21
			c.Booking.PeakEndHour = 18
		}, "peak window"},
		{"zero window", func(c *Config) { c.Booking.WindowDays = -1 }, "window_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalYAML))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_ReadsEnvSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	body := minimalYAML + `payments:
  provider: "omise"
  return_url: "https://example.com/return"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OMISE_PUBLIC_KEY", "pkey_test")
	t.Setenv("OMISE_SECRET_KEY", "skey_test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Payments.PublicKey != "pkey_test" || cfg.Payments.SecretKey != "skey_test" {
		t.Errorf("secrets not loaded from environment: %+v", cfg.Payments)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
