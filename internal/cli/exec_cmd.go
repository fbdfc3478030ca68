package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/errors"
)

var execCmd = &cobra.Command{
	Use:   "exec <device> -- <command...>",
	Short: "Run a command on a device",
	Long: `Run a shell command on a device and print its output. orion exits
with the remote command's exit status.

Examples:
  orion exec orin-01 -- uname -a
  orion exec 2 -- "tegrastats --interval 1000 | head -n1"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		device, command, err := splitExecArgs(args)
		if err != nil {
			return err
		}

		_, sid, err := connect(cmd, svc, device)
		if err != nil {
			return err
		}

		res, err := svc.Run(commandContext(cmd), sid, command)
		if err != nil {
			return err
		}

		if machineMode {
			if err := WriteJSONSuccess(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
		}
		if res.ExitStatus != 0 {
			return errors.NewExitError(res.ExitStatus)
		}
		return nil
	},
}

// splitExecArgs separates the device from the remote command line. Flag
// parsing stops at the device, so a "--" separator arrives as a plain
// argument and is dropped here.
func splitExecArgs(args []string) (device, command string, err error) {
	device, rest := args[0], args[1:]
	if len(rest) > 0 && rest[0] == "--" {
		rest = rest[1:]
	}
	command = strings.TrimSpace(strings.Join(rest, " "))
	if command == "" {
		return "", "", errors.New(errors.ErrConfig, "No command given", "Usage: orion exec <device> -- <command...>")
	}
	return device, command, nil
}

var probePort int

var probeCmd = &cobra.Command{
	Use:   "probe <host>",
	Short: "Check whether a host's SSH port accepts connections",
	Long: `Open a TCP connection to host:port without logging in. Useful before
adding a device.

Examples:
  orion probe 10.0.0.5
  orion probe nano.lan --port 2222`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		sp := spinner(cmd, fmt.Sprintf("Probing %s:%d", args[0], probePort))
		ok, err := svc.Probe(args[0], probePort)
		if err != nil {
			sp.Fail("")
			return err
		}
		sp.Success(fmt.Sprintf("%s:%d is reachable", args[0], probePort))
		return emit(cmd.OutOrStdout(), map[string]interface{}{"host": args[0], "port": probePort, "reachable": ok}, func() error { return nil })
	},
}

func init() {
	execCmd.Flags().SetInterspersed(false)
	probeCmd.Flags().IntVarP(&probePort, "port", "p", 22, "port to probe")
	rootCmd.AddCommand(execCmd, probeCmd)
}

// commandContext returns cmd's context, or Background when run outside
// ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
