// Package doctor runs diagnostic checks over orion's configuration, SSH
// setup, database and registered devices.
package doctor

import (
	"context"
	"fmt"
	"sync"

	"github.com/orion-fleet/orion/internal/util"
)

// Check categories, in report order.
const (
	CategoryConfig  = "CONFIG"
	CategorySSH     = "SSH"
	CategoryStorage = "STORAGE"
	CategoryDevices = "DEVICES"
)

// CheckStatus represents the result status of a check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns a human-readable status string.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText makes statuses read as "pass", "warn", "fail" in JSON.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CheckStatus) UnmarshalText(text []byte) error {
	for _, st := range []CheckStatus{StatusPass, StatusWarn, StatusFail} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown check status %q", text)
}

// CheckResult contains the outcome of running a check.
type CheckResult struct {
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Fixable    bool        `json:"fixable,omitempty"` // --fix can address it
}

// Check is one diagnostic.
type Check interface {
	Name() string
	Category() string
	Run(ctx context.Context) CheckResult
	// Fix attempts to repair what Run reported. Checks that can't fix
	// anything return nil and never mark results Fixable.
	Fix() error
}

// maxConcurrent bounds how many checks run at once. Device checks each hold
// a TCP probe open for up to the probe timeout.
const maxConcurrent = 8

// Run executes checks concurrently and returns their results in the order
// of checks. With fix set, each fixable failure is fixed and re-run once.
func Run(ctx context.Context, checks []Check, fix bool) []CheckResult {
	results := make([]CheckResult, len(checks))
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = canceled(c, ctx.Err())
				return
			}

			r := run(ctx, c)
			if fix && r.Fixable && r.Status != StatusPass {
				if err := c.Fix(); err == nil {
					r = run(ctx, c)
				} else {
					r.Suggestion = "Automatic fix failed: " + err.Error()
				}
			}
			results[i] = r
		}(i, check)
	}
	wg.Wait()
	return results
}

// run fills in the name and category so checks needn't repeat them.
func run(ctx context.Context, c Check) CheckResult {
	r := c.Run(ctx)
	r.Name = c.Name()
	r.Category = c.Category()
	return r
}

func canceled(c Check, err error) CheckResult {
	return CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
		Status:   StatusFail,
		Message:  "Not run: " + err.Error(),
	}
}

// CountByStatus counts results by status.
func CountByStatus(results []CheckResult) map[CheckStatus]int {
	counts := make(map[CheckStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}

// HasFailures reports whether any result failed.
func HasFailures(results []CheckResult) bool {
	return CountByStatus(results)[StatusFail] > 0
}

// HasIssues reports whether any result failed or warned.
func HasIssues(results []CheckResult) bool {
	counts := CountByStatus(results)
	return counts[StatusFail]+counts[StatusWarn] > 0
}

// FixableCount returns the number of issues --fix could address.
func FixableCount(results []CheckResult) int {
	n := 0
	for _, r := range results {
		if r.Fixable && r.Status != StatusPass {
			n++
		}
	}
	return n
}

// GroupByCategory returns results per category and the categories in the
// order they first appear.
func GroupByCategory(results []CheckResult) ([]string, map[string][]CheckResult) {
	var order []string
	grouped := make(map[string][]CheckResult)
	for _, r := range results {
		if _, ok := grouped[r.Category]; !ok {
			order = append(order, r.Category)
		}
		grouped[r.Category] = append(grouped[r.Category], r)
	}
	return order, grouped
}

// Summary returns a one-line summary of results.
func Summary(results []CheckResult) string {
	counts := CountByStatus(results)
	total := counts[StatusWarn] + counts[StatusFail]
	if total == 0 {
		return "Everything looks good"
	}
	return util.Count(total, "issue") + " found"
}
