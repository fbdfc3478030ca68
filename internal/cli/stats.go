package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/fleet"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/internal/ui"
)

var (
	statsFollow   bool
	statsInterval time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats <device>",
	Short: "Show CPU, memory and GPU usage",
	Long: `Sample a device's CPU, memory and GPU usage.

CPU usage is measured between two readings, so a single run takes one
interval. With --follow the device streams until interrupted; every sample
is stored and printed as one line.

Examples:
  orion stats orin-01
  orion stats orin-01 --follow --interval 2s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := statsInterval
		if interval == 0 {
			interval = cfg.StreamInterval
		}
		if interval < 0 {
			return errors.New(errors.ErrConfig, "--interval must be positive", "Use a duration like 1s or 500ms")
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		d, sid, err := connect(cmd, svc, args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		if statsFollow {
			return followStats(ctx, cmd.OutOrStdout(), svc, sid, interval)
		}

		s, err := sampleTwice(ctx, svc, sid, interval)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return emit(out, s, func() error {
			fmt.Fprint(out, renderSample(d.Name, *s))
			return nil
		})
	},
}

// sampleTwice primes the CPU counters and returns the second sample.
func sampleTwice(ctx context.Context, svc *fleet.Service, sid string, interval time.Duration) (*telemetry.Sample, error) {
	if _, err := svc.SampleOnce(ctx, sid); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(interval):
	}
	return svc.SampleOnce(ctx, sid)
}

func followStats(ctx context.Context, out io.Writer, svc *fleet.Service, sid string, interval time.Duration) error {
	ch, cancel := svc.Subscribe(0)
	defer cancel()

	if err := svc.StartStream(sid, interval); err != nil {
		return err
	}
	defer svc.StopStream(sid)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-ch:
			if !ok {
				return nil
			}
			if s.DeviceID != sid {
				continue
			}
			if machineMode {
				if err := writeJSONLine(out, s); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, formatSampleLine(s))
		}
	}
}

// renderSample is the multi-line block used by one-shot stats.
func renderSample(name string, s telemetry.Sample) string {
	pairs := []ui.KV{
		{Key: "CPU", Value: ui.RenderGauge(s.CPUPercent, 20)},
		{Key: "RAM", Value: ui.RenderGauge(s.RAMPercent(), 20) + ui.MutedStyle().Render(fmt.Sprintf("  %d / %d MB", s.RAMUsedMB, s.RAMTotalMB))},
	}
	if s.GPUUtil != nil {
		pairs = append(pairs, ui.KV{Key: "GPU", Value: ui.RenderGauge(*s.GPUUtil, 20)})
	}
	if s.GPUTempC != nil {
		pairs = append(pairs, ui.KV{Key: "GPU temp", Value: fmt.Sprintf("%.1f°C", *s.GPUTempC)})
	}
	return ui.RenderKV(name, pairs)
}

// formatSampleLine is one line of --follow output.
func formatSampleLine(s telemetry.Sample) string {
	var b strings.Builder
	b.WriteString(time.UnixMilli(s.Timestamp).Format("15:04:05"))
	fmt.Fprintf(&b, "  cpu %5.1f%%  ram %d/%d MB (%.0f%%)", s.CPUPercent, s.RAMUsedMB, s.RAMTotalMB, s.RAMPercent())
	if s.GPUUtil != nil {
		fmt.Fprintf(&b, "  gpu %5.1f%%", *s.GPUUtil)
	} else {
		b.WriteString("  gpu    n/a")
	}
	if s.GPUTempC != nil {
		fmt.Fprintf(&b, " %.0f°C", *s.GPUTempC)
	}
	return b.String()
}

func init() {
	statsCmd.Flags().BoolVarP(&statsFollow, "follow", "f", false, "stream until interrupted")
	statsCmd.Flags().DurationVarP(&statsInterval, "interval", "i", 0, "sampling interval (default: stream_interval)")
	rootCmd.AddCommand(statsCmd)
}
