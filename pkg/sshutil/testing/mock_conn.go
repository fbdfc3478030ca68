// Package testing provides in-memory stand-ins for SSH connections so the
// session registry, sampler, and control layers can be tested without a
// device on the network.
package testing

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/orion-fleet/orion/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

type patternResponse struct {
	pattern string
	re      *regexp.Regexp
	resp    CommandResponse
}

// ErrClosed is returned by Exec after Close.
var ErrClosed = errors.New("ssh: connection closed")

// MockConn simulates an authenticated SSH connection.
// Commands resolve in order: exact match, then registered patterns in
// registration order, then a few shell builtins (true, false, echo).
// Anything else succeeds with no output.
type MockConn struct {
	mu            sync.Mutex
	host          string
	address       string
	closed        bool
	authenticated bool
	execErr       error
	delay         time.Duration
	exact         map[string]CommandResponse
	patterns      []patternResponse
	calls         []string
}

// NewMockConn creates an authenticated mock connection.
func NewMockConn(host string) *MockConn {
	return &MockConn{
		host:          host,
		address:       host + ":22",
		authenticated: true,
		exact:         make(map[string]CommandResponse),
	}
}

// Exec returns the response registered for cmd.
func (m *MockConn) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, ErrClosed
	}
	if m.execErr != nil {
		return nil, nil, -1, m.execErr
	}

	if resp, ok := m.exact[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}
	for _, p := range m.patterns {
		if p.re.MatchString(cmd) {
			return p.resp.Stdout, p.resp.Stderr, p.resp.ExitCode, p.resp.Error
		}
	}

	return builtin(cmd)
}

func builtin(cmd string) ([]byte, []byte, int, error) {
	cmd = strings.TrimSpace(cmd)
	switch {
	case cmd == "true":
		return nil, nil, 0, nil
	case cmd == "false":
		return nil, nil, 1, nil
	case strings.HasPrefix(cmd, "echo "):
		return []byte(strings.TrimPrefix(cmd, "echo ") + "\n"), nil, 0, nil
	}
	return nil, nil, 0, nil
}

// Close marks the connection as closed.
func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Authenticated reports the value set by SetAuthenticated (true by default).
func (m *MockConn) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// SetAuthenticated overrides the post-handshake auth check.
func (m *MockConn) SetAuthenticated(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = ok
}

// GetHost returns the host name.
func (m *MockConn) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockConn) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for an exact command.
func (m *MockConn) SetCommandResponse(cmd string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact[cmd] = resp
}

// SetPatternResponse registers a canned response for commands matching a
// regular expression. Device commands are full of shell metacharacters, so
// exact commands belong in SetCommandResponse.
func (m *MockConn) SetPatternResponse(pattern string, resp CommandResponse) {
	re := regexp.MustCompile(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, patternResponse{pattern: pattern, re: re, resp: resp})
}

// SetExecError makes every subsequent Exec fail with err, as if the channel
// could not be opened. Pass nil to restore normal behavior.
func (m *MockConn) SetExecError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execErr = err
}

// SetDelay makes each Exec take at least d.
func (m *MockConn) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns the commands executed so far, in order.
func (m *MockConn) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times cmd was executed.
func (m *MockConn) CallCount(cmd string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == cmd {
			n++
		}
	}
	return n
}

var _ sshutil.Conn = (*MockConn)(nil)
