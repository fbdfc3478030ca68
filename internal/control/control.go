// Package control runs privileged device commands over a session: power
// mode, shutdown, reboot, and system information.
package control

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/session"
)

const (
	powerModeQueryCommand = `sh -lc 'sudo -n nvpmodel -q 2>/dev/null || nvpmodel -q 2>/dev/null || echo "unknown"'`
	shutdownCommand       = "sudo -n shutdown"
	rebootCommand         = "sh -lc 'sudo -n reboot 2>/dev/null || reboot 2>/dev/null'"

	systemInfoCommand = `sh -lc '
hostname=$(hostname)
os=$(uname -s)
kernel=$(uname -r)
cuda=$(nvcc --version 2>/dev/null | grep "release" | sed -E "s/.*release ([0-9.]+).*/\1/" || echo "")
jetpack=$(dpkg -l | grep nvidia-jetpack | awk "{print \$3}" | head -1 || echo "")
uptime_sec=$(cat /proc/uptime | awk "{print int(\$1)}")
echo "$hostname"
echo "$os"
echo "$kernel"
echo "$cuda"
echo "$jetpack"
echo "$uptime_sec"
'`
)

// ShutdownScheduled is returned by Shutdown when the command printed nothing.
const ShutdownScheduled = "Shutdown scheduled successfully."

// Executor runs a command on a registered session.
type Executor interface {
	Run(ctx context.Context, id, cmd string) (*session.Result, error)
}

// SystemInfo describes a device's software stack.
type SystemInfo struct {
	Hostname  string  `json:"hostname"`
	OS        string  `json:"os"`
	Kernel    string  `json:"kernel"`
	CUDA      *string `json:"cuda"`
	JetPack   *string `json:"jetpack"`
	UptimeSec uint64  `json:"uptime_sec"`
	UpdatedAt int64   `json:"updated_at"` // unix milliseconds
}

// Uptime returns UptimeSec as a duration.
func (s SystemInfo) Uptime() time.Duration {
	return time.Duration(s.UptimeSec) * time.Second
}

// Service issues device control commands.
type Service struct {
	exec  Executor
	clock func() time.Time
}

// NewService creates a Service running commands through exec. clock stamps
// system info; nil means time.Now.
func NewService(exec Executor, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{exec: exec, clock: clock}
}

// PowerMode returns the current nvpmodel mode name, e.g. "MAXN". When the
// output has no "Power Mode:" line the trimmed output is returned as is,
// which is "unknown" on boards without nvpmodel.
func (s *Service) PowerMode(ctx context.Context, id string) (string, error) {
	res, err := s.exec.Run(ctx, id, powerModeQueryCommand)
	if err != nil {
		return "", err
	}
	return parsePowerMode(res.Stdout), nil
}

func parsePowerMode(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Power Mode") {
			continue
		}
		if _, mode, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(mode)
		}
	}
	return strings.TrimSpace(out)
}

// SetPowerMode switches nvpmodel to mode.
func (s *Service) SetPowerMode(ctx context.Context, id string, mode int) error {
	if mode < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("invalid power mode %d", mode),
			"Power modes are non-negative ids; list them with: nvpmodel -p --verbose")
	}

	cmd := fmt.Sprintf("sh -lc 'sudo -n nvpmodel -m %d 2>/dev/null || nvpmodel -m %d 2>/dev/null'", mode, mode)
	res, err := s.exec.Run(ctx, id, cmd)
	if err != nil {
		return err
	}
	if res.ExitStatus != 0 {
		return errors.New(errors.ErrRemoteCommand,
			"nvpmodel failed: "+strings.TrimSpace(res.Stdout+res.Stderr),
			"Setting the power mode needs passwordless sudo for nvpmodel")
	}
	return nil
}

// Shutdown schedules a shutdown and returns the message printed by the
// device. A non-zero exit is ErrRemoteCommand carrying stderr.
func (s *Service) Shutdown(ctx context.Context, id string) (string, error) {
	res, err := s.exec.Run(ctx, id, shutdownCommand)
	if err != nil {
		return "", err
	}

	if res.ExitStatus != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("Shutdown command failed with exit status: %d", res.ExitStatus)
		}
		return "", errors.New(errors.ErrRemoteCommand, msg,
			"Allow passwordless sudo for shutdown on the device")
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		return out, nil
	}
	return ShutdownScheduled, nil
}

// Reboot asks the device to reboot. The connection usually drops before an
// exit status arrives, so only failure to run the command is reported.
func (s *Service) Reboot(ctx context.Context, id string) error {
	_, err := s.exec.Run(ctx, id, rebootCommand)
	return err
}

// SystemInfo fetches hostname, OS, kernel, CUDA and JetPack versions, and
// uptime. Missing lines fall back to "unknown", nil, or 0.
func (s *Service) SystemInfo(ctx context.Context, id string) (*SystemInfo, error) {
	res, err := s.exec.Run(ctx, id, systemInfoCommand)
	if err != nil {
		return nil, err
	}

	info := parseSystemInfo(res.Stdout)
	info.UpdatedAt = s.clock().UnixMilli()
	return info, nil
}

func parseSystemInfo(out string) *SystemInfo {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	line := func(i int) string {
		if i < len(lines) {
			return strings.TrimSpace(lines[i])
		}
		return ""
	}
	orUnknown := func(v string) string {
		if v == "" {
			return "unknown"
		}
		return v
	}
	optional := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}

	uptime, _ := strconv.ParseUint(line(5), 10, 64)
	return &SystemInfo{
		Hostname:  orUnknown(line(0)),
		OS:        orUnknown(line(1)),
		Kernel:    orUnknown(line(2)),
		CUDA:      optional(line(3)),
		JetPack:   optional(line(4)),
		UptimeSec: uptime,
	}
}
