package sshutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
)

// DefaultProbeTimeout bounds each TCP connect attempt made by ProbeTCP.
const DefaultProbeTimeout = 3 * time.Second

// Prober checks whether a device's SSH port accepts TCP connections.
type Prober struct {
	Timeout time.Duration

	resolve resolveFunc
	dial    dialFunc
}

// NewProber creates a Prober with the given per-address timeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{Timeout: timeout, resolve: lookupHost, dial: net.DialTimeout}
}

// ProbeTCP resolves host and dials each address until one accepts.
// No SSH handshake is attempted.
func ProbeTCP(host string, port int, timeout time.Duration) (bool, error) {
	return NewProber(timeout).Probe(host, port)
}

// Probe reports true on the first address that accepts a TCP connection.
// On failure it returns false with an ErrUnreachable or ErrTimeout error.
func (p *Prober) Probe(host string, port int) (bool, error) {
	if host == "" || port < 1 || port > 65535 {
		return false, errors.New(errors.ErrConfig,
			fmt.Sprintf("invalid probe target %q port %d", host, port),
			"Pass a host and a port between 1 and 65535")
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	hosts, err := p.resolve(ctx, host)
	if err != nil || len(hosts) == 0 {
		if err == nil {
			err = fmt.Errorf("no addresses for %s", host)
		}
		return false, errors.WrapWithCode(err, errors.ErrUnreachable,
			fmt.Sprintf("Can't resolve '%s'", host),
			"Check the hostname, or use the device's IP address")
	}

	var lastErr error
	allTimeouts := true
	for _, h := range hosts {
		conn, err := p.dial("tcp", net.JoinHostPort(h, strconv.Itoa(port)), p.Timeout)
		if err == nil {
			conn.Close()
			return true, nil
		}
		lastErr = err
		if !isTimeout(err) {
			allTimeouts = false
		}
	}

	if allTimeouts {
		return false, errors.WrapWithCode(lastErr, errors.ErrTimeout,
			fmt.Sprintf("Connection Timed Out probing %s:%d", host, port),
			"The device might be offline or blocked by a firewall")
	}
	return false, errors.WrapWithCode(lastErr, errors.ErrUnreachable,
		fmt.Sprintf("host unreachable or port closed: %s:%d", host, port),
		suggestionForDialError(lastErr))
}
