package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config is the orion configuration file.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// DatabasePath is the SQLite file holding devices and samples.
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`

	// KnownHostsPath enables host key checking against this file, recording
	// unknown hosts on first use. Empty disables host key checking.
	KnownHostsPath string `yaml:"known_hosts_path" mapstructure:"known_hosts_path"`

	// SSHConfigPath lets device hosts be ~/.ssh/config aliases.
	SSHConfigPath string `yaml:"ssh_config_path" mapstructure:"ssh_config_path"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	MonitorInterval time.Duration `yaml:"monitor_interval" mapstructure:"monitor_interval"`
	StreamInterval  time.Duration `yaml:"stream_interval" mapstructure:"stream_interval"`

	// BroadcastBuffer is the per-subscriber sample buffer for live streams.
	BroadcastBuffer int `yaml:"broadcast_buffer" mapstructure:"broadcast_buffer"`

	// HistorySize is how many samples the watch dashboard keeps per device.
	HistorySize int `yaml:"history_size" mapstructure:"history_size"`

	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
}

// RetentionConfig controls pruning of stored samples.
type RetentionConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Schedule is a cron expression or descriptor such as "@hourly".
	Schedule string `yaml:"schedule" mapstructure:"schedule"`

	// Keep is how long samples are retained.
	Keep time.Duration `yaml:"keep" mapstructure:"keep"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:         CurrentConfigVersion,
		DatabasePath:    "~/.local/share/orion/orion.db",
		KnownHostsPath:  "~/.config/orion/known_hosts",
		SSHConfigPath:   "~/.ssh/config",
		ConnectTimeout:  5 * time.Second,
		ProbeTimeout:    3 * time.Second,
		MonitorInterval: 5 * time.Second,
		StreamInterval:  time.Second,
		BroadcastBuffer: 16,
		HistorySize:     60,
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "@hourly",
			Keep:     7 * 24 * time.Hour,
		},
	}
}
