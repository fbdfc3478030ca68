package testing

import (
	"sync"
	"time"

	"github.com/orion-fleet/orion/pkg/sshutil"
)

// FakeTransport hands out MockConns instead of dialing. It counts
// Authenticate calls so tests can assert how often the network would have
// been touched.
type FakeTransport struct {
	mu      sync.Mutex
	calls   int
	err     error
	delay   time.Duration
	factory func(sshutil.Credential) *MockConn
	conns   []*MockConn
}

// NewFakeTransport creates a transport that succeeds with a fresh MockConn
// for every valid credential.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Authenticate validates cred like the real authenticator, then returns the
// configured error or a new MockConn.
func (f *FakeTransport) Authenticate(cred sshutil.Credential) (sshutil.Conn, error) {
	f.mu.Lock()
	f.calls++
	delay, err, factory := f.delay, f.err, f.factory
	f.mu.Unlock()

	if verr := cred.Validate(); verr != nil {
		return nil, verr
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	var conn *MockConn
	if factory != nil {
		conn = factory(cred)
	} else {
		conn = NewMockConn(cred.Host)
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	return conn, nil
}

// Calls returns the number of Authenticate calls.
func (f *FakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// SetError makes subsequent Authenticate calls fail with err.
func (f *FakeTransport) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDelay makes each Authenticate call take at least d, widening race windows.
func (f *FakeTransport) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetConnFactory controls the MockConn returned for each credential.
func (f *FakeTransport) SetConnFactory(factory func(sshutil.Credential) *MockConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factory = factory
}

// Conns returns every connection handed out so far.
func (f *FakeTransport) Conns() []*MockConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockConn, len(f.conns))
	copy(out, f.conns)
	return out
}

// LastConn returns the most recent connection, or nil.
func (f *FakeTransport) LastConn() *MockConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}
