package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// SSHHostEntry represents a parsed host entry from SSH config.
type SSHHostEntry struct {
	Alias        string // The Host pattern (alias)
	Hostname     string // The HostName value (actual host to connect to)
	User         string // The User value
	Port         string // The Port value
	IdentityFile string // The IdentityFile value
}

// Description returns a user-friendly description of the host.
func (h SSHHostEntry) Description() string {
	parts := []string{}

	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}
	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}
	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}

	if len(parts) == 0 {
		return h.Alias
	}
	return strings.Join(parts, ", ")
}

// Credential converts the entry into a key-auth credential. Entries without
// an IdentityFile fall back to the first default key present in ~/.ssh.
// ok is false when no usable key or user can be found.
func (h SSHHostEntry) Credential() (cred Credential, ok bool) {
	keyPath := h.IdentityFile
	if keyPath == "" {
		keyPath = DefaultIdentityFile()
	}
	if keyPath == "" || h.User == "" {
		return Credential{}, false
	}

	host := h.Hostname
	if host == "" {
		host = h.Alias
	}
	port := 22
	if h.Port != "" {
		p, err := strconv.Atoi(h.Port)
		if err != nil {
			return Credential{}, false
		}
		port = p
	}

	return Credential{
		Host:           host,
		Port:           port,
		Username:       h.User,
		AuthType:       AuthKey,
		PrivateKeyPath: keyPath,
	}, true
}

// ParseSSHConfigFile parses the specified SSH config file and returns the
// concrete host aliases in it, skipping wildcard patterns.
func ParseSSHConfigFile(configPath string) ([]SSHHostEntry, error) {
	content, _, err := preprocessSSHConfig(expandPath(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No SSH config is fine
		}
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var hosts []SSHHostEntry
	seen := make(map[string]bool)

	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()

			if strings.Contains(alias, "*") || strings.Contains(alias, "?") {
				continue
			}
			if seen[alias] {
				continue
			}
			seen[alias] = true

			entry := SSHHostEntry{Alias: alias}
			entry.Hostname, _ = cfg.Get(alias, "HostName")
			entry.User, _ = cfg.Get(alias, "User")
			entry.Port, _ = cfg.Get(alias, "Port")
			if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
				entry.IdentityFile = expandPath(identity)
			}

			hosts = append(hosts, entry)
		}
	}

	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Alias < hosts[j].Alias
	})

	return hosts, nil
}

// ResolveAlias fills in connection details for cred.Host from an SSH config.
// HostName replaces the alias; Port, User, and (for key auth) IdentityFile
// only fill fields the credential left empty. ok is false when the config is
// missing or doesn't mention the host.
func ResolveAlias(configPath string, cred Credential) (Credential, bool) {
	content, _, err := preprocessSSHConfig(expandPath(configPath))
	if err != nil {
		return cred, false
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return cred, false
	}

	found := false
	alias := cred.Host

	if hostname, _ := cfg.Get(alias, "HostName"); hostname != "" {
		cred.Host = hostname
		found = true
	}
	if port, _ := cfg.Get(alias, "Port"); port != "" && cred.Port == 0 {
		if p, err := strconv.Atoi(port); err == nil {
			cred.Port = p
			found = true
		}
	}
	if user, _ := cfg.Get(alias, "User"); user != "" && cred.Username == "" {
		cred.Username = user
		found = true
	}
	if cred.AuthType == AuthKey && cred.PrivateKeyPath == "" {
		if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
			cred.PrivateKeyPath = expandPath(identity)
			found = true
		}
	}

	return cred, found
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// kevinburke/ssh_config can't parse Match, so anything after it is ignored.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

// DefaultIdentityFile returns the first of the usual private keys that exists
// in ~/.ssh, or "" if none do.
func DefaultIdentityFile() string {
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(homeDir(), ".ssh", name)
		if _, err := os.Stat(keyPath); err == nil {
			return keyPath
		}
	}
	return ""
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
