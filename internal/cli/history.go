package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/fleet"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/internal/ui"
)

var (
	historyLimit int
	historySince time.Duration
	historyUntil time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history <device>",
	Short: "Show stored telemetry for a device",
	Long: `Print stored samples for a device, oldest first. A numeric id works
for devices that have since been removed, as long as retention hasn't
pruned their samples.

Examples:
  orion history orin-01
  orion history orin-01 --since 1h --limit 500
  orion history 3 --since 24h --until 23h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		id, name, err := historyTarget(svc, args[0])
		if err != nil {
			return err
		}

		filter, err := historyFilter(time.Now(), historyLimit, historySince, historyUntil)
		if err != nil {
			return err
		}
		samples, err := svc.Samples(id, filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return emit(out, samples, func() error {
			if len(samples) == 0 {
				fmt.Fprintf(out, "No samples for %s\n", name)
				return nil
			}
			fmt.Fprintln(out, ui.TitleStyle().Render(name)+ui.MutedStyle().Render(fmt.Sprintf("  %d samples", len(samples))))
			fmt.Fprint(out, ui.RenderTable(historyColumns, historyRows(samples)))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "cpu "+ui.RenderPercentSparkline(series(samples, cpuOf), 60))
			return nil
		})
	},
}

var historyColumns = []ui.TableColumn{
	{Title: "TIME", Width: 19},
	{Title: "CPU", Width: 7},
	{Title: "RAM MB", Width: 13},
	{Title: "GPU", Width: 7},
	{Title: "TEMP", Width: 6},
}

func historyRows(samples []telemetry.Sample) [][]string {
	rows := make([][]string, len(samples))
	for i, s := range samples {
		rows[i] = []string{
			time.UnixMilli(s.Timestamp).Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1f%%", s.CPUPercent),
			fmt.Sprintf("%d/%d", s.RAMUsedMB, s.RAMTotalMB),
			optionalValue(s.GPUUtil, "%.0f%%"),
			optionalValue(s.GPUTempC, "%.0f°C"),
		}
	}
	return rows
}

func optionalValue(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func cpuOf(s telemetry.Sample) float64 { return s.CPUPercent }

func series(samples []telemetry.Sample, pick func(telemetry.Sample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = pick(s)
	}
	return out
}

// historyTarget accepts a device name or any numeric id, including ids of
// removed devices.
func historyTarget(svc *fleet.Service, arg string) (uint, string, error) {
	if id, err := strconv.ParseUint(arg, 10, 0); err == nil && id > 0 {
		if d, err := svc.Device(uint(id)); err == nil {
			return d.ID, d.Name, nil
		}
		return uint(id), "device " + arg, nil
	}
	d, err := resolveDevice(svc, arg)
	if err != nil {
		return 0, "", err
	}
	return d.ID, d.Name, nil
}

// historyFilter turns relative --since/--until into absolute bounds.
func historyFilter(now time.Time, limit int, since, until time.Duration) (storage.SampleFilter, error) {
	if limit < 0 || since < 0 || until < 0 {
		return storage.SampleFilter{}, errors.New(errors.ErrConfig,
			"--limit, --since and --until can't be negative", "")
	}
	if since > 0 && until > 0 && until >= since {
		return storage.SampleFilter{}, errors.New(errors.ErrConfig,
			"--until must be more recent than --since",
			"Both are measured back from now: --since 2h --until 1h")
	}

	f := storage.SampleFilter{Limit: limit}
	if since > 0 {
		f.StartTS = now.Add(-since).UnixMilli()
	}
	if until > 0 {
		f.EndTS = now.Add(-until).UnixMilli()
	}
	return f, nil
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete samples older than retention.keep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		n, err := svc.PruneNow(commandContext(cmd))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return emit(out, map[string]int64{"pruned": n}, func() error {
			fmt.Fprintf(out, "%s Pruned %d samples older than %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), n, cfg.Retention.Keep)
			return nil
		})
	},
}

func init() {
	f := historyCmd.Flags()
	f.IntVarP(&historyLimit, "limit", "n", storage.DefaultSampleLimit, "maximum samples to show")
	f.DurationVar(&historySince, "since", 0, "only samples newer than this long ago")
	f.DurationVar(&historyUntil, "until", 0, "only samples older than this long ago")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
