package config

import "fmt"

// Validate rejects configurations that cannot run. Soft settings (missing
// SMS or VAPID credentials) only disable their channel, so they pass.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.Env == "production" && c.AuthSecret == "" {
		return fmt.Errorf("config: AUTH_SECRET is required in production")
	}
	if c.Port == "" {
		return fmt.Errorf("config: PORT must not be empty")
	}
	if c.NoShowSweepInterval <= 0 || c.PendingSweepInterval <= 0 {
		return fmt.Errorf("config: sweep intervals must be positive")
	}
	if c.NoShowAfter <= 0 || c.PendingVerifyTimeout <= 0 {
		return fmt.Errorf("config: sweep cutoffs must be positive")
	}
	if c.CheckInLimit <= 0 || c.NotifyLimit <= 0 || c.GeneralLimit <= 0 {
		return fmt.Errorf("config: rate limits must be positive")
	}
	if c.BufferMaxMessages <= 0 {
		return fmt.Errorf("config: buffer capacity must be positive")
	}
	return nil
}
