package doctor

import (
	"context"
	"fmt"
	"sort"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// Prober checks TCP reachability.
type Prober interface {
	Probe(host string, port int) (bool, error)
}

// DeviceReachableCheck probes one device's SSH port. It does not log in.
type DeviceReachableCheck struct {
	DeviceName string
	Credential sshutil.Credential
	Prober     Prober
}

func (c *DeviceReachableCheck) Name() string     { return "device_" + c.DeviceName }
func (c *DeviceReachableCheck) Category() string { return CategoryDevices }

func (c *DeviceReachableCheck) Run(context.Context) CheckResult {
	addr := c.Credential.Address()
	ok, err := c.Prober.Probe(c.Credential.Host, c.Credential.Port)
	if err == nil && ok {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s (%s)", c.DeviceName, addr),
		}
	}

	suggestion := fmt.Sprintf("%s may be powered off or on another network", c.DeviceName)
	switch errors.CodeOf(err) {
	case errors.ErrTimeout:
		suggestion = "No answer; the device may be off or behind a firewall"
	case errors.ErrUnreachable:
		suggestion = "Connection refused or no route; check that sshd is running"
	}
	return CheckResult{
		Status:     StatusFail,
		Message:    fmt.Sprintf("%s: %s not reachable", c.DeviceName, addr),
		Suggestion: suggestion,
	}
}

func (c *DeviceReachableCheck) Fix() error { return nil }

// NewDeviceChecks creates one reachability check per device name in creds.
func NewDeviceChecks(creds map[string]sshutil.Credential, prober Prober) []Check {
	names := make([]string, 0, len(creds))
	for name := range creds {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		checks = append(checks, &DeviceReachableCheck{
			DeviceName: name,
			Credential: creds[name],
			Prober:     prober,
		})
	}
	return checks
}
