package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/fleet"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/ui"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// deviceAddOptions holds the flags of `device add`.
type deviceAddOptions struct {
	Host          string
	Port          int
	User          string
	Password      string
	PasswordStdin bool
	KeyPath       string
	Description   string
}

var (
	addOpts      deviceAddOptions
	removeYes    bool
	listProbe    bool
	importDesc   string
	importRename string
)

var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"devices", "dev"},
	Short:   "Add, list and remove devices",
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a device after checking that it accepts the credential",
	Long: `Register a device. The SSH port is probed and a full login is made
before anything is stored, so a device that is added is known to work.

With no --key the device uses password authentication. The password is
read from --password, from stdin with --password-stdin, or prompted for.
Missing host or user are prompted for when running in a terminal.

Examples:
  orion device add orin-01 --host 10.0.0.5 --user jetson
  orion device add nano --host nano.lan --user dev --key ~/.ssh/id_ed25519
  echo "$PW" | orion device add agx --host 10.0.0.7 --user nvidia --password-stdin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := credentialFromFlags(addOpts)
		if err != nil {
			return err
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		sp := spinner(cmd, fmt.Sprintf("Checking %s", cred.Address()))
		id, err := svc.AddDevice(args[0], addOpts.Description, cred)
		if err != nil {
			sp.Fail("")
			return err
		}
		sp.Success(fmt.Sprintf("Added %s as device %d", args[0], id))

		return emit(cmd.OutOrStdout(), map[string]interface{}{"id": id, "name": args[0]}, func() error { return nil })
	},
}

// credentialFromFlags builds a credential from flags, prompting for what is
// missing when stdin is a terminal.
func credentialFromFlags(o deviceAddOptions) (sshutil.Credential, error) {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && !machineMode

	if (o.Host == "" || o.User == "") && interactive {
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Host").Description("IP address, hostname or ssh_config alias").Value(&o.Host),
			huh.NewInput().Title("User").Value(&o.User),
		))
		if err := form.Run(); err != nil {
			return sshutil.Credential{}, errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't read device details", "Pass --host and --user instead")
		}
	}

	cred := sshutil.Credential{
		Host:     strings.TrimSpace(o.Host),
		Port:     o.Port,
		Username: strings.TrimSpace(o.User),
	}

	if o.KeyPath != "" {
		cred.AuthType = sshutil.AuthKey
		cred.PrivateKeyPath = o.KeyPath
		return cred, cred.Validate()
	}

	cred.AuthType = sshutil.AuthPassword
	switch {
	case o.Password != "":
		cred.Password = o.Password
	case o.PasswordStdin:
		pw, err := readLine(os.Stdin)
		if err != nil {
			return cred, errors.WrapWithCode(err, errors.ErrConfig, "Couldn't read password from stdin", "")
		}
		cred.Password = pw
	case interactive:
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cred.Username, cred.Host)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return cred, errors.WrapWithCode(err, errors.ErrConfig, "Couldn't read password", "")
		}
		cred.Password = string(pw)
	}
	return cred, cred.Validate()
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type deviceListEntry struct {
	storage.Device
	Address string `json:"address"`
	Online  *bool  `json:"online,omitempty"`
}

var deviceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		devices, err := svc.ListDevices()
		if err != nil {
			return err
		}

		entries := make([]deviceListEntry, len(devices))
		rows := make([]ui.DeviceRow, len(devices))
		for i, d := range devices {
			entries[i] = deviceListEntry{Device: d}
			if cred, err := svc.Credential(d.ID); err == nil {
				entries[i].Address = cred.Address()
				if cred.Username != "" {
					entries[i].Address = cred.Username + "@" + entries[i].Address
				}
				if listProbe {
					ok, _ := svc.Probe(cred.Host, cred.Port)
					entries[i].Online = &ok
				}
			}
			rows[i] = ui.DeviceRow{
				ID:        d.SessionID(),
				Name:      d.Name,
				Address:   entries[i].Address,
				Connected: entries[i].Online != nil && *entries[i].Online,
				LastSeen:  formatLastConnected(d.LastConnectedAt, time.Now()),
			}
		}

		out := cmd.OutOrStdout()
		return emit(out, entries, func() error {
			fmt.Fprint(out, ui.RenderDeviceTable(rows))
			return nil
		})
	},
}

var deviceRemoveCmd = &cobra.Command{
	Use:     "remove <device>",
	Aliases: []string{"rm"},
	Short:   "Remove a device and its stored credential",
	Long: `Remove a device. Its credential is deleted; stored samples are kept
until retention prunes them.

Examples:
  orion device remove orin-01
  orion device remove 3 --yes`,
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

		ok, err := confirm(fmt.Sprintf("Remove device '%s'?", d.Name), removeYes)
		if err != nil || !ok {
			return err
		}

		if err := svc.RemoveDevice(d.ID); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), map[string]interface{}{"removed": d.ID}, func() error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), d.Name)
			return nil
		})
	},
}

var deviceImportCmd = &cobra.Command{
	Use:   "import [alias]",
	Short: "Add a device from an ssh_config host",
	Long: `Add a device from a Host entry in ssh_config (ssh_config_path in the
config). The entry must name a user; its IdentityFile, or the first default
key in ~/.ssh, is used for key authentication.

Without an alias an interactive picker lists the hosts.

Examples:
  orion device import
  orion device import orin --name orin-01`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := sshutil.ParseSSHConfigFile(cfg.SSHConfigPath)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("Couldn't read %s", cfg.SSHConfigPath),
				"Set ssh_config_path in the config file")
		}

		entry, err := pickEntry(entries, args)
		if err != nil || entry == nil {
			return err
		}

		cred, ok := entry.Credential()
		if !ok {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Host '%s' has no usable user or key", entry.Alias),
				"Add User and IdentityFile to the entry, or use: orion device add")
		}

		name := entry.Alias
		if importRename != "" {
			name = importRename
		}
		desc := importDesc
		if desc == "" {
			desc = entry.Description()
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		sp := spinner(cmd, fmt.Sprintf("Checking %s", cred.Address()))
		id, err := svc.AddDevice(name, desc, cred)
		if err != nil {
			sp.Fail("")
			return err
		}
		sp.Success(fmt.Sprintf("Imported %s as device %d", name, id))
		return emit(cmd.OutOrStdout(), map[string]interface{}{"id": id, "name": name}, func() error { return nil })
	},
}

func pickEntry(entries []sshutil.SSHHostEntry, args []string) (*sshutil.SSHHostEntry, error) {
	if len(args) == 1 {
		for i := range entries {
			if entries[i].Alias == args[0] {
				return &entries[i], nil
			}
		}
		return nil, errors.New(errors.ErrNotFound,
			fmt.Sprintf("No Host '%s' in ssh_config", args[0]),
			"Run 'orion device import' without an alias to pick one")
	}
	if len(entries) == 0 {
		return nil, errors.New(errors.ErrConfig, "No hosts in ssh_config", "Use: orion device add")
	}
	return ui.PickHost(entries, os.Stdin, os.Stderr)
}

// resolveDevice finds a device by numeric id or by exact name.
func resolveDevice(svc *fleet.Service, arg string) (*storage.Device, error) {
	if id, err := strconv.ParseUint(arg, 10, 0); err == nil && id > 0 {
		return svc.Device(uint(id))
	}

	devices, err := svc.ListDevices()
	if err != nil {
		return nil, err
	}
	var matches []storage.Device
	for _, d := range devices {
		if d.Name == arg {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.New(errors.ErrNotFound,
			fmt.Sprintf("No device named '%s'", arg),
			"List devices with: orion device list")
	case 1:
		return &matches[0], nil
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("%d devices are named '%s'", len(matches), arg),
			"Use the device id instead")
	}
}

// connect resolves arg and opens its session.
func connect(cmd *cobra.Command, svc *fleet.Service, arg string) (*storage.Device, string, error) {
	d, err := resolveDevice(svc, arg)
	if err != nil {
		return nil, "", err
	}

	sp := spinner(cmd, "Connecting to "+d.Name)
	sid, err := svc.ConnectDevice(d.ID)
	if err != nil {
		sp.Fail("")
		return nil, "", err
	}
	sp.Success("Connected to " + d.Name)
	return d, sid, nil
}

// spinner writes progress to stderr so stdout stays clean for output.
func spinner(cmd *cobra.Command, label string) *ui.Spinner {
	s := ui.NewSpinnerTo(cmd.ErrOrStderr(), label)
	if !machineMode {
		s.Start()
	}
	return s
}

// confirm asks a yes/no question unless yes is already set. It refuses to
// guess when there is no terminal to ask on.
func confirm(question string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New(errors.ErrConfig, question+" needs confirmation", "Pass --yes to confirm")
	}

	var ok bool
	form := huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(question).Value(&ok)))
	if err := form.Run(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrConfig, "Couldn't get your answer", "Pass --yes to confirm")
	}
	return ok, nil
}

func formatLastConnected(ms *int64, now time.Time) string {
	if ms == nil {
		return ""
	}
	return formatAgo(now.Sub(time.UnixMilli(*ms)))
}

func formatAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func init() {
	f := deviceAddCmd.Flags()
	f.StringVar(&addOpts.Host, "host", "", "device address or ssh_config alias")
	f.IntVar(&addOpts.Port, "port", 22, "SSH port")
	f.StringVarP(&addOpts.User, "user", "u", "", "login user")
	f.StringVar(&addOpts.Password, "password", "", "login password (prefer --password-stdin)")
	f.BoolVar(&addOpts.PasswordStdin, "password-stdin", false, "read the password from stdin")
	f.StringVar(&addOpts.KeyPath, "key", "", "private key file; selects key authentication")
	f.StringVarP(&addOpts.Description, "description", "d", "", "free-form description")

	deviceListCmd.Flags().BoolVar(&listProbe, "probe", false, "check each device's SSH port")
	deviceRemoveCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "don't ask for confirmation")
	deviceImportCmd.Flags().StringVar(&importRename, "name", "", "device name (default: the alias)")
	deviceImportCmd.Flags().StringVarP(&importDesc, "description", "d", "", "description (default: from the entry)")

	deviceCmd.AddCommand(deviceAddCmd, deviceListCmd, deviceRemoveCmd, deviceImportCmd)
	rootCmd.AddCommand(deviceCmd)
}
