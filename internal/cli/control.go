package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/control"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/ui"
)

var (
	powerYes      bool
	sysinfoCached bool
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Read or change a device's nvpmodel power mode",
}

var powerGetCmd = &cobra.Command{
	Use:   "get <device>",
	Short: "Print the current power mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		d, sid, err := connect(cmd, svc, args[0])
		if err != nil {
			return err
		}
		mode, err := svc.PowerMode(commandContext(cmd), sid)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return emit(out, map[string]string{"device": d.Name, "power_mode": mode}, func() error {
			fmt.Fprintf(out, "%s: %s\n", d.Name, mode)
			return nil
		})
	},
}

var powerSetCmd = &cobra.Command{
	Use:   "set <device> <mode>",
	Short: "Switch the power mode (nvpmodel -m)",
	Long: `Switch a device to an nvpmodel mode by number. Mode numbers differ
between boards; 'nvpmodel -p --verbose' on the device lists them.

Examples:
  orion power set orin-01 0
  orion power set nano 1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := strconv.Atoi(args[1])
		if err != nil || mode < 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Invalid power mode '%s'", args[1]),
				"Use the mode number, e.g. 0 for MAXN on most boards")
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
		if err := svc.SetPowerMode(commandContext(cmd), sid, mode); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return emit(out, map[string]interface{}{"device": d.Name, "mode": mode}, func() error {
			fmt.Fprintf(out, "%s %s switched to mode %d\n", ui.SuccessStyle().Render(ui.SymbolSuccess), d.Name, mode)
			return nil
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <device>",
	Short: "Schedule a device shutdown",
	Long: `Run 'shutdown' on the device. The login user needs passwordless sudo
for it. Linux schedules the shutdown one minute out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		d, err := resolveDevice(svc, args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(fmt.Sprintf("Shut down '%s'?", d.Name), powerYes)
		if err != nil || !ok {
			return err
		}

		_, sid, err := connect(cmd, svc, args[0])
		if err != nil {
			return err
		}
		msg, err := svc.Shutdown(commandContext(cmd), sid)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return emit(out, map[string]string{"device": d.Name, "message": msg}, func() error {
			fmt.Fprintf(out, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), msg)
			return nil
		})
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot <device>",
	Short: "Reboot a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		d, err := resolveDevice(svc, args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(fmt.Sprintf("Reboot '%s'?", d.Name), powerYes)
		if err != nil || !ok {
			return err
		}

		_, sid, err := connect(cmd, svc, args[0])
		if err != nil {
			return err
		}
		if err := svc.Reboot(commandContext(cmd), sid); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return emit(out, map[string]string{"device": d.Name, "status": "rebooting"}, func() error {
			fmt.Fprintf(out, "%s %s is rebooting\n", ui.SuccessStyle().Render(ui.SymbolSuccess), d.Name)
			return nil
		})
	},
}

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo <device>",
	Short: "Show hostname, kernel, CUDA and JetPack versions",
	Long: `Read system information from a device. The result is stored, and
--cached prints the stored copy without connecting.

Examples:
  orion sysinfo orin-01
  orion sysinfo orin-01 --cached`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		var (
			info *control.SystemInfo
			name string
		)
		if sysinfoCached {
			d, err := resolveDevice(svc, args[0])
			if err != nil {
				return err
			}
			name = d.Name
			if info, err = svc.StoredSystemInfo(d.ID); err != nil {
				return err
			}
			if info == nil {
				return errors.New(errors.ErrNotFound,
					fmt.Sprintf("No stored system info for %s", d.Name),
					"Run without --cached to fetch it")
			}
		} else {
			d, sid, err := connect(cmd, svc, args[0])
			if err != nil {
				return err
			}
			name = d.Name
			if info, err = svc.FetchSystemInfo(commandContext(cmd), sid); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		return emit(out, info, func() error {
			fmt.Fprint(out, renderSystemInfo(name, info))
			return nil
		})
	},
}

func renderSystemInfo(name string, info *control.SystemInfo) string {
	orNA := func(s *string) string {
		if s == nil {
			return "n/a"
		}
		return *s
	}
	return ui.RenderKV(name, []ui.KV{
		{Key: "Hostname", Value: info.Hostname},
		{Key: "OS", Value: info.OS},
		{Key: "Kernel", Value: info.Kernel},
		{Key: "CUDA", Value: orNA(info.CUDA)},
		{Key: "JetPack", Value: orNA(info.JetPack)},
		{Key: "Uptime", Value: info.Uptime().String()},
	})
}

func init() {
	shutdownCmd.Flags().BoolVarP(&powerYes, "yes", "y", false, "don't ask for confirmation")
	rebootCmd.Flags().BoolVarP(&powerYes, "yes", "y", false, "don't ask for confirmation")
	sysinfoCmd.Flags().BoolVar(&sysinfoCached, "cached", false, "print the stored copy without connecting")

	powerCmd.AddCommand(powerGetCmd, powerSetCmd)
	rootCmd.AddCommand(powerCmd, shutdownCmd, rebootCmd, sysinfoCmd)
}
