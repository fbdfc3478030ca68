package config

import (
	"fmt"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/robfig/cron/v3"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but orion only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade orion to a release that understands this config")
	}

	if cfg.DatabasePath == "" {
		return errors.New(errors.ErrConfig,
			"database_path is empty - orion needs somewhere to keep devices",
			"Set database_path in your config, e.g. ~/.local/share/orion/orion.db")
	}

	if err := validateDurations(cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the timeouts and intervals in your config.")
	}

	if cfg.BroadcastBuffer < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("broadcast_buffer must be at least 1, got %d", cfg.BroadcastBuffer), "")
	}
	if cfg.HistorySize < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("history_size must be at least 1, got %d", cfg.HistorySize), "")
	}

	if err := validateRetention(cfg.Retention); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'retention' section in your config.")
	}

	return nil
}

// validateDurations checks that every timeout and interval is positive.
func validateDurations(cfg *Config) error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"connect_timeout", cfg.ConnectTimeout},
		{"probe_timeout", cfg.ProbeTimeout},
		{"monitor_interval", cfg.MonitorInterval},
		{"stream_interval", cfg.StreamInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v - try something like '1s' or '5s'", d.name, d.value)
		}
	}
	return nil
}

// validateRetention checks the prune schedule parses and keep is sane.
// Disabled retention is not checked.
func validateRetention(r RetentionConfig) error {
	if !r.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return fmt.Errorf("retention.schedule '%s' isn't a valid cron expression: %v", r.Schedule, err)
	}
	if r.Keep <= 0 {
		return fmt.Errorf("retention.keep must be positive, got %v - try '168h' for a week", r.Keep)
	}
	return nil
}
