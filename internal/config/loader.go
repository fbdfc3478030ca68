package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the config file looked for in the current directory.
	ConfigFileName = "orion.yaml"
	// GlobalConfigDir is the directory for global config, relative to home.
	GlobalConfigDir = ".config/orion"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. ORION_CONNECT_TIMEOUT.
	EnvPrefix = "ORION"
	// DotEnvFile is loaded into the environment before config is read.
	DotEnvFile = ".env"
)

// Load reads config from the specified path. Environment variables
// (ORION_DATABASE_PATH, ORION_RETENTION_KEEP, ...) override file values.
func Load(path string) (*Config, error) {
	loadDotEnv()

	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'orion config init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. orion.yaml in current directory
// 3. ~/.config/orion/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if global := GlobalConfigPath(); global != "" {
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// GlobalConfigPath returns ~/.config/orion/config.yaml, or "" when the home
// directory is unknown.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// LoadOrDefault loads the config found by Find(explicit), or defaults with
// environment overrides applied when there is no config file.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}

	if path == "" {
		loadDotEnv()
		cfg, err := parseConfig(newViper(), "environment")
		return cfg, "", err
	}

	cfg, err := Load(path)
	return cfg, path, err
}

// newViper returns a viper instance with defaults registered for every key,
// so AutomaticEnv can override any of them.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("known_hosts_path", d.KnownHostsPath)
	v.SetDefault("ssh_config_path", d.SSHConfigPath)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("probe_timeout", d.ProbeTimeout)
	v.SetDefault("monitor_interval", d.MonitorInterval)
	v.SetDefault("stream_interval", d.StreamInterval)
	v.SetDefault("broadcast_buffer", d.BroadcastBuffer)
	v.SetDefault("history_size", d.HistorySize)
	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.schedule", d.Retention.Schedule)
	v.SetDefault("retention.keep", d.Retention.Keep)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, source string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+source)
	}

	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)
	cfg.KnownHostsPath = ExpandPath(cfg.KnownHostsPath)
	cfg.SSHConfigPath = ExpandPath(cfg.SSHConfigPath)

	return cfg, nil
}

// loadDotEnv loads .env from the current directory. Variables already set
// in the environment win.
func loadDotEnv() {
	if err := godotenv.Load(DotEnvFile); err != nil && !os.IsNotExist(err) {
		logger.Default().Warn("Error loading %s: %v", DotEnvFile, err)
	}
}
