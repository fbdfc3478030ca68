package doctor

import (
	"context"
	"fmt"

	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/util"
)

// DatabaseCheck opens the database, migrating it if needed, and counts what
// it holds.
type DatabaseCheck struct {
	Path string
}

func (c *DatabaseCheck) Name() string     { return "database" }
func (c *DatabaseCheck) Category() string { return CategoryStorage }

func (c *DatabaseCheck) Run(context.Context) CheckResult {
	store, err := storage.Open(c.Path)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    "Can't open database " + c.Path,
			Suggestion: firstLine(err.Error()),
		}
	}
	defer store.Close()

	devices, samples, err := store.Counts()
	if err != nil {
		return CheckResult{Status: StatusFail, Message: firstLine(err.Error())}
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("Database %s: %s, %s", c.Path,
			util.Count(int(devices), "device"), util.Count(int(samples), "sample")),
	}
}

func (c *DatabaseCheck) Fix() error { return nil }
