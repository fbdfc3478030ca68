package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/config"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/fleet"
	"github.com/orion-fleet/orion/internal/logger"
)

var (
	configFlag string
	debugFlag  bool
)

// Loaded in PersistentPreRunE.
var (
	cfg        *config.Config
	configPath string
)

// newService builds the service commands run against. Tests replace it.
var newService = func(c *config.Config, log logger.Logger) (*fleet.Service, error) {
	return fleet.Open(c, log)
}

var rootCmd = &cobra.Command{
	Use:   "orion",
	Short: "Manage and monitor a fleet of Jetson boards over SSH",
	Long: `orion keeps a registry of NVIDIA Jetson devices, connects to them over
SSH, and streams CPU, memory and GPU telemetry into a local database.

Get started:
  orion config init
  orion device add orin-01 --host 10.0.0.5 --user jetson
  orion watch`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetDebug(debugFlag)
		if skipsConfig(cmd) {
			return nil
		}
		return loadConfig()
	},
}

// skipsConfig reports whether cmd runs without a loaded configuration.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfig"] == "true" {
			return true
		}
	}
	return false
}

func loadConfig() error {
	c, path, err := config.LoadOrDefault(configFlag)
	if err != nil {
		return err
	}
	if err := config.Validate(c); err != nil {
		return err
	}
	cfg, configPath = c, path
	return nil
}

// openService opens the fleet service for the loaded configuration.
func openService() (*fleet.Service, error) {
	return newService(cfg, logger.NewEnvLogger("[orion]"))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ./orion.yaml or ~/.config/orion/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "print debug logs")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "print machine-readable JSON")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	if code, ok := errors.GetExitCode(err); ok {
		return code
	}

	if machineMode {
		_ = WriteJSONFromError(rootCmd.OutOrStdout(), err)
		return 1
	}

	stderr := rootCmd.ErrOrStderr()
	if isUnknownCommandError(err) {
		fmt.Fprintf(stderr, "%s\n", err)
		if name := extractUnknownCommand(err); name != "" {
			if s := rootCmd.SuggestionsFor(name); len(s) > 0 {
				fmt.Fprintf(stderr, "\nDid you mean: %s?\n", strings.Join(s, ", "))
			}
		}
		fmt.Fprintln(stderr, "\nRun 'orion --help' for usage.")
		return 1
	}

	var structured *errors.Error
	if stderrors.As(err, &structured) {
		fmt.Fprint(stderr, structured.Error())
	} else {
		fmt.Fprintf(stderr, "✗ %v\n", err)
	}
	return 1
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls foo out of `unknown command "foo" for "orion"`.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for orion.

Examples:
  orion completion bash > /etc/bash_completion.d/orion
  orion completion zsh > "${fpath[1]}/_orion"
  orion completion fish > ~/.config/fish/completions/orion.fish`,
	ValidArgs:   []string{"bash", "zsh", "fish", "powershell"},
	Args:        cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Annotations: map[string]string{"skipConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletion(out)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
