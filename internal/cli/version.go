package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via SetVersionInfo from main.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionShort bool

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
	Go      string `json:"go"`
	OSArch  string `json:"os_arch"`
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{"skipConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		info := versionInfo{
			Version: formatVersion(version),
			Commit:  commit,
			Built:   date,
			Go:      runtime.Version(),
			OSArch:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		return emit(out, info, func() error {
			if versionShort {
				fmt.Fprintln(out, version)
				return nil
			}
			fmt.Fprintf(out, "orion %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built: %s\n", info.Built)
			fmt.Fprintf(out, "go: %s\n", info.Go)
			fmt.Fprintf(out, "os/arch: %s\n", info.OSArch)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
}

// formatVersion adds a 'v' prefix to release versions.
func formatVersion(v string) string {
	if v == "" || v == "dev" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// SetVersionInfo is called from main with ldflags values.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
