package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orion-fleet/orion/internal/config"
	"github.com/orion-fleet/orion/internal/doctor"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/fleet"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/internal/ui"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

var doctorFix bool

// DoctorOutput is the --json form of a doctor report.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Summary    SummaryOutput    `json:"summary"`
}

// CategoryOutput is one category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	Fixable  int  `json:"fixable"`
	AllClear bool `json:"all_clear"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration, SSH setup, database and device reachability",
	Long: `Run diagnostic checks and print a report. Devices are probed on their
SSH port only; nothing logs in.

Exits 1 when any check fails. --fix writes a missing config file and
tightens private key permissions.

Examples:
  orion doctor
  orion doctor --fix
  orion doctor --json`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c := doctorConfig()

		var (
			creds    map[string]sshutil.Credential
			keyPaths []string
			prober   doctor.Prober
		)
		svc, err := newService(c, logger.Noop())
		if err == nil {
			defer svc.Close()
			creds, keyPaths = deviceCredentials(svc)
			prober = svc
		}

		checks := doctor.NewConfigChecks(configFlag)
		checks = append(checks, doctor.NewSSHChecks(c.KnownHostsPath, c.SSHConfigPath, keyPaths)...)
		checks = append(checks, &doctor.DatabaseCheck{Path: c.DatabasePath})
		if prober != nil {
			checks = append(checks, doctor.NewDeviceChecks(creds, prober)...)
		}

		results := doctor.Run(commandContext(cmd), checks, doctorFix)

		out := cmd.OutOrStdout()
		if err := emit(out, doctorOutput(results), func() error {
			renderDoctorReport(out, results)
			return nil
		}); err != nil {
			return err
		}
		if doctor.HasFailures(results) {
			return errors.NewExitError(1)
		}
		return nil
	},
}

// doctorConfig loads the config, falling back to defaults when it can't be
// loaded. The config checks report why.
func doctorConfig() *config.Config {
	c, _, err := config.LoadOrDefault(configFlag)
	if err == nil && config.Validate(c) == nil {
		return c
	}
	c = config.DefaultConfig()
	c.DatabasePath = config.ExpandPath(c.DatabasePath)
	c.KnownHostsPath = config.ExpandPath(c.KnownHostsPath)
	c.SSHConfigPath = config.ExpandPath(c.SSHConfigPath)
	return c
}

// deviceCredentials returns each device's credential by name, and the key
// files key-auth devices use.
func deviceCredentials(svc *fleet.Service) (map[string]sshutil.Credential, []string) {
	devices, err := svc.ListDevices()
	if err != nil {
		return nil, nil
	}
	creds := make(map[string]sshutil.Credential, len(devices))
	seen := make(map[string]bool)
	var keyPaths []string
	for _, d := range devices {
		cred, err := svc.Credential(d.ID)
		if err != nil {
			continue
		}
		name := d.Name
		if _, dup := creds[name]; dup {
			name = fmt.Sprintf("%s#%d", d.Name, d.ID)
		}
		creds[name] = cred
		if cred.AuthType == sshutil.AuthKey && !seen[cred.PrivateKeyPath] {
			seen[cred.PrivateKeyPath] = true
			keyPaths = append(keyPaths, cred.PrivateKeyPath)
		}
	}
	return creds, keyPaths
}

func doctorOutput(results []doctor.CheckResult) DoctorOutput {
	order, grouped := doctor.GroupByCategory(results)
	out := DoctorOutput{Categories: make([]CategoryOutput, 0, len(order))}
	for _, cat := range order {
		out.Categories = append(out.Categories, CategoryOutput{Name: cat, Results: grouped[cat]})
	}

	counts := doctor.CountByStatus(results)
	out.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		Fixable:  doctor.FixableCount(results),
		AllClear: !doctor.HasIssues(results),
	}
	return out
}

func renderDoctorReport(w io.Writer, results []doctor.CheckResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.TitleStyle().Render("orion diagnostic report"))
	fmt.Fprintln(w)

	order, grouped := doctor.GroupByCategory(results)
	for _, cat := range order {
		fmt.Fprintln(w, ui.TitleStyle().Render(cat))
		for _, r := range grouped[cat] {
			renderCheckResult(w, r)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	if !doctor.HasIssues(results) {
		fmt.Fprintf(w, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), doctor.Summary(results))
		return
	}
	fmt.Fprintf(w, "%s %s\n", ui.ErrorStyle().Render(ui.SymbolFail), doctor.Summary(results))
	if n := doctor.FixableCount(results); n > 0 && !doctorFix {
		fmt.Fprintf(w, "\n  Run with %s to fix %d of them.\n", ui.MutedStyle().Render("--fix"), n)
	}
}

func renderCheckResult(w io.Writer, r doctor.CheckResult) {
	symbol, style := ui.SymbolSuccess, ui.SuccessStyle()
	switch r.Status {
	case doctor.StatusWarn:
		symbol, style = ui.SymbolWarning, ui.WarningStyle()
	case doctor.StatusFail:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	fmt.Fprintf(w, "  %s %s\n", style.Render(symbol), r.Message)
	if r.Suggestion != "" && r.Status != doctor.StatusPass {
		for _, line := range strings.Split(r.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", ui.MutedStyle().Render(line))
		}
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "attempt automatic fixes where possible")
	rootCmd.AddCommand(doctorCmd)
}
