package doctor

import (
	"context"
	"fmt"

	"github.com/orion-fleet/orion/internal/config"
)

// ConfigFileCheck reports which config file is in effect. Running on
// defaults is a warning that --fix resolves by writing ./orion.yaml.
type ConfigFileCheck struct {
	Explicit string // --config, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(context.Context) CheckResult {
	path, err := config.Find(c.Explicit)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    "Config file not usable: " + c.Explicit,
			Suggestion: "Check the --config path, or run 'orion config init'",
		}
	}
	if path == "" {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "No config file, using defaults",
			Suggestion: "Run 'orion config init' to write " + config.ConfigFileName,
			Fixable:    true,
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: "Config file: " + path,
	}
}

func (c *ConfigFileCheck) Fix() error {
	if c.Explicit != "" {
		return config.WriteDefault(c.Explicit, false)
	}
	return config.WriteDefault(config.ConfigFileName, false)
}

// ConfigValidCheck loads the effective config and validates it.
type ConfigValidCheck struct {
	Explicit string
}

func (c *ConfigValidCheck) Name() string     { return "config_valid" }
func (c *ConfigValidCheck) Category() string { return CategoryConfig }

func (c *ConfigValidCheck) Run(context.Context) CheckResult {
	cfg, _, err := config.LoadOrDefault(c.Explicit)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    "Config is invalid",
			Suggestion: firstLine(err.Error()),
		}
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("Config is valid (stream every %s, retention %s)",
			cfg.StreamInterval, retentionSummary(cfg.Retention)),
	}
}

func (c *ConfigValidCheck) Fix() error { return nil }

func retentionSummary(r config.RetentionConfig) string {
	if !r.Enabled {
		return "off"
	}
	return fmt.Sprintf("keeps %s", r.Keep)
}

// NewConfigChecks creates the configuration checks.
func NewConfigChecks(explicit string) []Check {
	return []Check{
		&ConfigFileCheck{Explicit: explicit},
		&ConfigValidCheck{Explicit: explicit},
	}
}
