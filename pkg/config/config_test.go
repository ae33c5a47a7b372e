package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:          "user:pass@tcp(localhost:3306)/queues",
		Port:                 "8080",
		Env:                  "development",
		NoShowSweepInterval:  time.Minute,
		NoShowAfter:          10 * time.Minute,
		PendingSweepInterval: time.Minute,
		PendingVerifyTimeout: 15 * time.Minute,
		CheckInLimit:         3,
		CheckInWindow:        5 * time.Minute,
		NotifyLimit:          10,
		NotifyWindow:         time.Hour,
		GeneralLimit:         100,
		GeneralWindow:        15 * time.Minute,
		BufferMaxMessages:    100,
	}
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }},
		{"missing auth secret in production", func(c *Config) { c.Env = "production"; c.AuthSecret = "" }},
		{"empty port", func(c *Config) { c.Port = "" }},
		{"zero sweep interval", func(c *Config) { c.NoShowSweepInterval = 0 }},
		{"zero sweep cutoff", func(c *Config) { c.PendingVerifyTimeout = 0 }},
		{"zero rate limit", func(c *Config) { c.CheckInLimit = 0 }},
		{"zero buffer capacity", func(c *Config) { c.BufferMaxMessages = 0 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "user:pass@tcp(db:3306)/queues")
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_CHECKIN_LIMIT", "5")
	t.Setenv("RATE_CHECKIN_WINDOW", "10m")
	t.Setenv("NOSHOW_AFTER", "20m")

	cfg := Load()
	if cfg.DatabaseURL != "user:pass@tcp(db:3306)/queues" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.CheckInLimit != 5 || cfg.CheckInWindow != 10*time.Minute {
		t.Fatalf("check-in limit = %d window = %v", cfg.CheckInLimit, cfg.CheckInWindow)
	}
	if cfg.NoShowAfter != 20*time.Minute {
		t.Fatalf("NoShowAfter = %v", cfg.NoShowAfter)
	}
}

func TestDiffKeys(t *testing.T) {
	a := validConfig()
	b := validConfig()
	if got := diffKeys(a, b); len(got) != 0 {
		t.Fatalf("diff of identical configs = %v", got)
	}

	b.CheckInLimit = 6
	b.NoShowAfter = 30 * time.Minute
	b.LogLevel = "debug"
	got := diffKeys(a, b)
	want := map[string]bool{"CheckInRate": true, "NoShowSweep": true, "Logging": true}
	if len(got) != len(want) {
		t.Fatalf("diffKeys = %v", got)
	}
	for _, f := range got {
		if !want[f] {
			t.Fatalf("unexpected field %q in %v", f, got)
		}
	}

	if got := diffKeys(nil, b); len(got) != 1 || got[0] != "all" {
		t.Fatalf("nil diff = %v", got)
	}
}
