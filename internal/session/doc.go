// Package session owns the live SSH connections to devices.
//
// A Registry maps caller-chosen session ids (usually a device id) to one
// authenticated connection each. It is constructed explicitly and injected
// wherever connections are needed; there is no package-level state.
//
// # Lifecycle
//
//	Connect     - authenticate and register, or return early if already live
//	Run         - execute one command on a session, serialized per connection
//	Disconnect  - remove and close a session
//	Close       - stop every monitor, wait for them, and close everything
//
// # Monitoring
//
// Every registered session gets a monitor goroutine. Each interval (default
// 5s) it runs "true" on the connection. If the command can't be executed at
// all the session is removed and closed; a non-zero exit status is still a
// live connection. A monitor never removes a newer handle registered under
// the same id, and a dead session is only visible as its absence from List
// and the events recorded for it.
//
// # Concurrency
//
// The id map sits behind an RWMutex. Each connection has its own mutex held
// for exactly one command, so the monitor and callers never interleave on a
// channel, and the map lock is never held across network I/O.
package session
