package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"

	"github.com/orion-fleet/orion/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec opens a fresh channel, runs cmd with both streams drained into
// buffers, and waits for the channel to close.
// A remote non-zero exit is returned as exitCode with a nil error.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if c.Client == nil {
		return nil, nil, -1, errors.New(errors.ErrSSH,
			"connection is closed",
			"Reconnect the device")
	}

	session, err := c.Client.NewSession()
	if err != nil {
		classified := Classify(err)
		if classified.Code == errors.ErrSSH {
			classified = errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Failed to open a channel on %s", c.Address),
				"Connection may have been closed. Try reconnecting.")
		}
		return nil, nil, -1, classified
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(err, &exitErr) {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		// The channel closed without an exit-status (e.g. the board went away mid-command).
		var missing *ssh.ExitMissingError
		if stderrors.As(err, &missing) {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Command ended without an exit status: %s", cmd),
				"The device may have dropped the connection")
		}
		return nil, nil, -1, Classify(err)
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
}
