package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/watch"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [device...]",
	Short: "Live dashboard of device telemetry",
	Long: `Connect to devices, stream their telemetry into the database and show
a live dashboard. With no arguments every registered device is watched;
devices that can't be reached are reported and skipped.

Retention runs in the background while the dashboard is open.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  s           Cycle sort order (name/CPU/RAM/GPU)
  up/k        Select previous device
  down/j      Select next device
  Enter       Device detail
  Esc         Back
  ?           Help

Examples:
  orion watch
  orion watch orin-01 nano --interval 2s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := watchInterval
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

		var targets []storage.Device
		if len(args) == 0 {
			if targets, err = svc.ListDevices(); err != nil {
				return err
			}
		} else {
			for _, arg := range args {
				d, err := resolveDevice(svc, arg)
				if err != nil {
					return err
				}
				targets = append(targets, *d)
			}
		}
		if len(targets) == 0 {
			return errors.New(errors.ErrNotFound, "No devices to watch", "Add one with: orion device add")
		}

		var devices []watch.Device
		for _, d := range targets {
			sp := spinner(cmd, "Connecting to "+d.Name)
			sid, err := svc.ConnectDevice(d.ID)
			if err == nil {
				err = svc.StartStream(sid, interval)
			}
			if err != nil {
				sp.Fail(fmt.Sprintf("%s: %s", d.Name, errors.CodeOf(err)))
				continue
			}
			sp.Success("Streaming " + d.Name)
			devices = append(devices, watch.Device{SessionID: sid, Name: d.Name})
		}
		if len(devices) == 0 {
			return errors.New(errors.ErrUnreachable, "No device could be connected", "Check them with: orion device list --probe")
		}

		if err := svc.StartRetention(); err != nil {
			return err
		}

		return watch.Run(svc, devices, watch.Options{
			Interval:    interval,
			HistorySize: cfg.HistorySize,
			Buffer:      cfg.BroadcastBuffer,
		})
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "sampling interval (default: stream_interval)")
	rootCmd.AddCommand(watchCmd)
}
