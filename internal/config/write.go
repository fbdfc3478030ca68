package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/orion-fleet/orion/internal/errors"
	"gopkg.in/yaml.v3"
)

const fileHeader = `# orion configuration
# Durations use Go syntax: 500ms, 5s, 1h, 168h.
# Any key can be overridden with an ORION_ variable, e.g. ORION_RETENTION_KEEP=72h.

`

// WriteDefault writes DefaultConfig to path, creating parent directories.
// An existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Config file already exists: %s", path),
			"Use --force to overwrite it")
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config",
			"This shouldn't happen - please report this bug")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to create directory for %s", path),
			"Check directory permissions")
	}

	if err := os.WriteFile(path, []byte(fileHeader+string(data)), 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", path),
			"Check directory permissions")
	}
	return nil
}
