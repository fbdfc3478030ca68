package sshutil

// Conn is an authenticated SSH connection to one device.
// Both the real Client and the mocks in sshutil/testing satisfy it.
//
// A Conn is not safe for concurrent Exec calls from the caller's point of
// view; the session registry serializes access per handle.
type Conn interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Close closes the SSH connection.
	Close() error

	// Authenticated reports whether the server accepted our credentials.
	Authenticated() bool

	// GetHost returns the host the credential named (alias or address).
	GetHost() string

	// GetAddress returns the resolved host:port that was dialed.
	GetAddress() string
}
