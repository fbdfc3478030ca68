package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/orion-fleet/orion/internal/util"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// KnownHostsCheck verifies the trust-on-first-use known_hosts file parses.
// A missing file is fine; the first connection creates it.
type KnownHostsCheck struct {
	Path string
}

func (c *KnownHostsCheck) Name() string     { return "known_hosts" }
func (c *KnownHostsCheck) Category() string { return CategorySSH }

func (c *KnownHostsCheck) Run(context.Context) CheckResult {
	if _, err := os.Stat(c.Path); os.IsNotExist(err) {
		return CheckResult{
			Status:  StatusPass,
			Message: "No trusted host keys yet; the first connection records them",
		}
	}

	if _, err := knownhosts.New(c.Path); err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    "known_hosts is unreadable: " + firstLine(err.Error()),
			Suggestion: fmt.Sprintf("Fix or remove %s", c.Path),
		}
	}

	n, err := countEntries(c.Path)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("known_hosts trusts %s", util.Count(n, "host key")),
	}
}

func (c *KnownHostsCheck) Fix() error { return nil }

func countEntries(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			n++
		}
	}
	return n, scanner.Err()
}

// SSHConfigCheck verifies ssh_config parses. Without it aliases don't
// resolve and 'device import' has nothing to offer, which is a warning.
type SSHConfigCheck struct {
	Path string
}

func (c *SSHConfigCheck) Name() string     { return "ssh_config" }
func (c *SSHConfigCheck) Category() string { return CategorySSH }

func (c *SSHConfigCheck) Run(context.Context) CheckResult {
	if c.Path == "" {
		return CheckResult{Status: StatusPass, Message: "ssh_config lookup disabled"}
	}
	if _, err := os.Stat(c.Path); os.IsNotExist(err) {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "No ssh_config at " + c.Path,
			Suggestion: "Aliases and 'orion device import' need it; set ssh_config_path to \"\" to silence this",
		}
	}

	entries, err := sshutil.ParseSSHConfigFile(c.Path)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    "ssh_config doesn't parse: " + firstLine(err.Error()),
			Suggestion: "Check the syntax of " + c.Path,
		}
	}

	aliases := make([]string, 0, len(entries))
	for _, e := range entries {
		aliases = append(aliases, e.Alias)
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("ssh_config hosts: %s", util.JoinOrNone(aliases)),
	}
}

func (c *SSHConfigCheck) Fix() error { return nil }

// KeyPermissionsCheck flags private keys readable by group or others, which
// OpenSSH refuses and so should orion's users.
type KeyPermissionsCheck struct {
	Paths []string
}

func (c *KeyPermissionsCheck) Name() string     { return "key_permissions" }
func (c *KeyPermissionsCheck) Category() string { return CategorySSH }

func (c *KeyPermissionsCheck) Run(context.Context) CheckResult {
	var checked int
	var missing, insecure []string
	for _, p := range c.Paths {
		info, err := os.Stat(p)
		if err != nil {
			missing = append(missing, p)
			continue
		}
		checked++
		if info.Mode().Perm()&0o077 != 0 {
			insecure = append(insecure, filepath.Base(p))
		}
	}

	switch {
	case len(missing) > 0:
		return CheckResult{
			Status:     StatusFail,
			Message:    "Missing private keys: " + util.JoinOrNone(missing),
			Suggestion: "Restore the keys or re-add the devices that use them",
		}
	case len(insecure) > 0:
		return CheckResult{
			Status:     StatusWarn,
			Message:    "Insecure permissions on: " + util.JoinOrNone(insecure),
			Suggestion: "Fix: chmod 600 <keyfile>",
			Fixable:    true,
		}
	case checked == 0:
		return CheckResult{Status: StatusPass, Message: "No private keys in use"}
	default:
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s with safe permissions", util.Count(checked, "private key"))}
	}
}

func (c *KeyPermissionsCheck) Fix() error {
	for _, p := range c.Paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o077 != 0 {
			if err := os.Chmod(p, 0o600); err != nil {
				return fmt.Errorf("chmod %s: %w", p, err)
			}
		}
	}
	return nil
}

// NewSSHChecks creates the SSH checks. keyPaths are the private keys that
// registered devices authenticate with.
func NewSSHChecks(knownHostsPath, sshConfigPath string, keyPaths []string) []Check {
	return []Check{
		&KnownHostsCheck{Path: knownHostsPath},
		&SSHConfigCheck{Path: sshConfigPath},
		&KeyPermissionsCheck{Paths: keyPaths},
	}
}

func firstLine(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "✗ ")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
