package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/pkg/sshutil"
)

// DefaultMonitorInterval is how often a session's liveness is checked.
const DefaultMonitorInterval = 5 * time.Second

// Transport opens authenticated connections. *sshutil.Authenticator
// implements it; tests use sshutil/testing.FakeTransport.
type Transport interface {
	Authenticate(cred sshutil.Credential) (sshutil.Conn, error)
}

// Options configures a Registry.
type Options struct {
	MonitorInterval time.Duration
	Logger          logger.Logger
}

// Result is the outcome of one remote command. A non-zero ExitStatus is data,
// not an error.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitStatus int    `json:"exit_status"`
}

// handle is one registered connection.
type handle struct {
	id          string
	conn        sshutil.Conn
	connectedAt time.Time

	mu       sync.Mutex // held for exactly one Exec
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *handle) signalStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// exec runs one command with the handle lock held.
func (h *handle) exec(cmd string) ([]byte, []byte, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Exec(cmd)
}

// Registry maps session ids to live connections.
type Registry struct {
	transport Transport
	interval  time.Duration
	log       logger.Logger

	mu       sync.RWMutex
	sessions map[string]*handle

	eventsMu sync.RWMutex
	events   map[string][]Event

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an empty Registry.
func New(transport Transport, opts Options) *Registry {
	interval := opts.MonitorInterval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Registry{
		transport: transport,
		interval:  interval,
		log:       logger.OrDefault(opts.Logger),
		sessions:  make(map[string]*handle),
		events:    make(map[string][]Event),
		closing:   make(chan struct{}),
	}
}

// Connect registers an authenticated session under id and returns id.
//
// If id is already registered nothing happens: no authentication, no new
// monitor. Authentication runs without the registry lock; if a concurrent
// Connect for the same id wins the race, this call's connection is closed
// and the existing session is kept. On failure nothing is registered and the
// error carries a classified code (ErrConfig, ErrUnreachable, ErrAuth, ...).
func (r *Registry) Connect(id string, cred sshutil.Credential) (string, error) {
	if id == "" {
		return "", errors.New(errors.ErrConfig, "session id is required", "")
	}
	if r.IsAlive(id) {
		r.log.Debug("session %s already connected", id)
		return id, nil
	}
	if r.isClosing() {
		return "", errClosed()
	}

	conn, err := r.transport.Authenticate(cred)
	if err != nil {
		return "", sshutil.Classify(err)
	}

	h := &handle{
		id:          id,
		conn:        conn,
		connectedAt: time.Now(),
		stop:        make(chan struct{}),
	}

	r.mu.Lock()
	if r.isClosing() {
		r.mu.Unlock()
		_ = conn.Close()
		return "", errClosed()
	}
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		r.log.Debug("session %s connected concurrently, dropping duplicate", id)
		_ = conn.Close()
		return id, nil
	}
	r.sessions[id] = h
	r.wg.Add(1)
	r.mu.Unlock()

	go r.monitor(h)

	r.emitEvent(id, EventConnected, conn.GetAddress())
	return id, nil
}

// Disconnect removes the session and closes its connection. It waits for an
// in-flight command on the session to finish. Close errors are logged, not
// returned.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	h, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return errors.NotFound(id)
	}

	h.signalStop()
	r.closeHandle(h)
	r.emitEvent(id, EventDisconnected, "disconnected by caller")
	return nil
}

// IsAlive reports whether id is registered. It does no I/O; a session whose
// connection died is reported alive until its monitor notices.
func (r *Registry) IsAlive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// List returns the registered session ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// ConnectedAt returns when the session was registered.
func (r *Registry) ConnectedAt(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	if !ok {
		return time.Time{}, false
	}
	return h.connectedAt, true
}

// Run executes cmd on the session's connection and returns its output and
// exit status. Commands on the same session run one at a time.
//
// Run returns ErrNotFound before any I/O when id isn't registered, and the
// context's error when ctx is already done. Failure to execute at all is a
// classified transport error.
func (r *Registry) Run(ctx context.Context, id, cmd string) (*Result, error) {
	r.mu.RLock()
	h, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(id)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stdout, stderr, exitCode, err := h.exec(cmd)
	if err != nil {
		return nil, sshutil.Classify(err)
	}

	return &Result{
		Stdout:     string(stdout),
		Stderr:     string(stderr),
		ExitStatus: exitCode,
	}, nil
}

// Close stops every monitor, waits for them to exit, then closes and removes
// all sessions. Close is idempotent; Connect fails after it.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.closing) })

	r.mu.Lock()
	handles := make([]*handle, 0, len(r.sessions))
	for id, h := range r.sessions {
		handles = append(handles, h)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.signalStop()
	}
	r.wg.Wait()

	for _, h := range handles {
		r.closeHandle(h)
		r.emitEvent(h.id, EventDisconnected, "registry closed")
	}
}

func (r *Registry) closeHandle(h *handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.conn.Close(); err != nil {
		r.log.Debug("closing session %s: %v", h.id, err)
	}
}

func (r *Registry) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

func errClosed() error {
	return errors.New(errors.ErrConfig, "session registry is closed", "")
}
