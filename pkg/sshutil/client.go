package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	// DefaultConnectTimeout bounds each TCP connect attempt.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultHandshakeTimeout bounds the SSH handshake plus authentication.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The host named by the credential
	Address string // The resolved address (ip:port) that was dialed
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// Authenticated reports whether the handshake completed with accepted
// credentials. x/crypto only hands back a client after successful auth, so
// this is true for any live Client.
func (c *Client) Authenticated() bool {
	return c.Client != nil && len(c.Client.SessionID()) > 0
}

// GetHost returns the host named by the credential.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// Options configures an Authenticator.
type Options struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration

	// KnownHostsPath enables host key verification against that file.
	// Empty means any host key is accepted.
	KnownHostsPath string

	// SSHConfigPath enables alias resolution from an OpenSSH client config.
	SSHConfigPath string

	Logger logger.Logger
}

type (
	resolveFunc   func(ctx context.Context, host string) ([]string, error)
	dialFunc      func(network, address string, timeout time.Duration) (net.Conn, error)
	handshakeFunc func(conn net.Conn, cred Credential, address string, config *ssh.ClientConfig) (Conn, error)
)

// Authenticator opens authenticated connections from credentials.
type Authenticator struct {
	opts Options
	log  logger.Logger

	resolve   resolveFunc
	dial      dialFunc
	handshake handshakeFunc
}

// NewAuthenticator creates an Authenticator, filling zero timeouts with defaults.
func NewAuthenticator(opts Options) *Authenticator {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Authenticator{
		opts:      opts,
		log:       logger.OrDefault(opts.Logger),
		resolve:   lookupHost,
		dial:      net.DialTimeout,
		handshake: clientHandshake,
	}
}

// Authenticate validates cred, connects to the first reachable address of
// its host, performs the SSH handshake, and authenticates.
//
// Failures are structured errors: ErrConfig before any network I/O,
// ErrUnreachable or ErrTimeout when no address accepts a TCP connection,
// ErrAuth when the server rejects the credentials, and ErrUnreachable for
// any other handshake failure.
func (a *Authenticator) Authenticate(cred Credential) (Conn, error) {
	if a.opts.SSHConfigPath != "" {
		if resolved, ok := ResolveAlias(a.opts.SSHConfigPath, cred); ok {
			a.log.Debug("resolved ssh_config alias %s -> %s", cred.Host, resolved.Host)
			cred = resolved
		}
	}

	if err := cred.Validate(); err != nil {
		return nil, err
	}

	auth, err := authMethods(cred)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := a.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         a.opts.HandshakeTimeout,
	}

	conn, address, err := a.connect(cred)
	if err != nil {
		return nil, err
	}

	client, err := a.handshake(conn, cred, address, config)
	if err != nil {
		conn.Close()
		return nil, handshakeError(cred, err)
	}

	if !client.Authenticated() {
		client.Close()
		return nil, errors.New(errors.ErrAuth,
			fmt.Sprintf("authentication failed for %s@%s", cred.Username, cred.Host),
			"Check the username and password, or that the key is authorized on the device")
	}

	a.log.Debug("authenticated %s@%s via %s", cred.Username, cred.Host, address)
	return client, nil
}

// connect resolves the credential's host and tries each address in turn.
func (a *Authenticator) connect(cred Credential) (net.Conn, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.ConnectTimeout)
	defer cancel()

	hosts, err := a.resolve(ctx, cred.Host)
	if err != nil || len(hosts) == 0 {
		if err == nil {
			err = fmt.Errorf("no addresses for %s", cred.Host)
		}
		return nil, "", errors.WrapWithCode(err, errors.ErrUnreachable,
			fmt.Sprintf("Can't resolve '%s'", cred.Host),
			"Check the hostname, or use the device's IP address")
	}

	port := fmt.Sprintf("%d", cred.Port)
	var lastErr error
	allTimeouts := true
	for _, h := range hosts {
		address := net.JoinHostPort(h, port)
		conn, err := a.dial("tcp", address, a.opts.ConnectTimeout)
		if err == nil {
			return conn, address, nil
		}
		a.log.Debug("dial %s failed: %v", address, err)
		lastErr = err
		if !isTimeout(err) {
			allTimeouts = false
		}
	}

	if allTimeouts {
		return nil, "", errors.WrapWithCode(lastErr, errors.ErrTimeout,
			fmt.Sprintf("Connection Timed Out reaching %s", cred.Address()),
			"The device might be offline or blocked by a firewall")
	}
	return nil, "", errors.WrapWithCode(lastErr, errors.ErrUnreachable,
		fmt.Sprintf("Unable to open TCP connection to %s", cred.Address()),
		suggestionForDialError(lastErr))
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return Classify(err).Code == errors.ErrTimeout
}

// handshakeError maps a handshake failure. Anything the classifier can't
// place is treated as the device being unreachable over SSH.
func handshakeError(cred Credential, err error) error {
	var hostKeyErr *HostKeyMismatchError
	if stderrors.As(err, &hostKeyErr) {
		return errors.New(errors.ErrSSH, hostKeyErr.Error(), hostKeyErr.Suggestion())
	}

	classified := Classify(err)
	if classified.Code != errors.ErrSSH {
		return classified
	}
	return errors.WrapWithCode(err, errors.ErrUnreachable,
		fmt.Sprintf("SSH handshake with '%s' didn't go through", cred.Host),
		"Check that the port is an SSH server: ssh -p <port> <user>@<host>")
}

func lookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	return net.DefaultResolver.LookupHost(ctx, host)
}

// clientHandshake runs the SSH handshake over an already-dialed connection.
// x/crypto only applies config.Timeout in ssh.Dial, so the deadline is set here.
func clientHandshake(conn net.Conn, cred Credential, address string, config *ssh.ClientConfig) (Conn, error) {
	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}
	// Host keys are recorded against the name the user gave, not the resolved IP.
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, cred.Address(), config)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    cred.Host,
		Address: address,
	}, nil
}

// authMethods builds the auth method for the credential's auth type.
func authMethods(cred Credential) ([]ssh.AuthMethod, error) {
	switch cred.AuthType {
	case AuthPassword:
		return []ssh.AuthMethod{ssh.Password(cred.Password)}, nil
	case AuthKey:
		signer, err := loadSigner(cred.PrivateKeyPath, cred.Password)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, errors.New(errors.ErrConfig,
		fmt.Sprintf("unsupported auth type '%s'", cred.AuthType),
		"Use 'password' or 'key'")
}

// loadSigner reads a private key, using passphrase only when the key is encrypted.
func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	keyPath = expandPath(keyPath)
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't read private key %s", keyPath),
			"Check the path and file permissions")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !stderrors.As(err, &missing) {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't parse private key %s", keyPath),
			"Make sure the file is an OpenSSH or PEM private key")
	}

	if passphrase == "" {
		encErr := &EncryptedKeyError{Path: keyPath}
		return nil, errors.WrapWithCode(encErr, errors.ErrConfig,
			encErr.Error(),
			"Supply the key passphrase as the credential password")
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't decrypt private key %s", keyPath),
			"Check the key passphrase")
	}
	return signer, nil
}

// hostKeyCallback returns a known_hosts verifier when a path is configured.
func (a *Authenticator) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if a.opts.KnownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // boards get reflashed; opt in via known_hosts_path
	}
	cb, err := createHostKeyCallback(expandPath(a.opts.KnownHostsPath))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to load known_hosts",
			"Check known_hosts_path in your config")
	}
	return cb, nil
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The device's host key doesn't match known_hosts (it may have been reflashed).\n"+
			"  Known types: %s\n"+
			"  Device sent: %s\n\n"+
			"  Remove the old entry:\n"+
			"    ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, host, e.KnownHosts)
}

// createHostKeyCallback wraps the knownhosts callback to provide better error
// messages, creating an empty known_hosts file if none exists.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if stderrors.As(err, &keyErr) {
				if len(keyErr.Want) > 0 {
					return &HostKeyMismatchError{
						Hostname:     hostname,
						ReceivedType: key.Type(),
						KnownHosts:   knownHostsPath,
						Want:         keyErr.Want,
					}
				}
				// First contact: remember the key.
				return appendKnownHost(knownHostsPath, hostname, key)
			}
		}
		return err
	}, nil
}

func appendKnownHost(knownHostsPath, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to record host key: %w", err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to record host key: %w", err)
	}
	return nil
}
