package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/pkg/sshutil"
	sshtesting "github.com/orion-fleet/orion/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCred() sshutil.Credential {
	return sshutil.Credential{
		Host:     "10.0.0.5",
		Port:     22,
		Username: "jetson",
		AuthType: sshutil.AuthPassword,
		Password: "nvidia",
	}
}

func newTestRegistry(t *testing.T, transport Transport, interval time.Duration) *Registry {
	t.Helper()
	if interval == 0 {
		interval = time.Hour
	}
	r := New(transport, Options{MonitorInterval: interval, Logger: logger.NewBufferLogger()})
	t.Cleanup(r.Close)
	return r
}

func TestConnect_RegistersSession(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)

	id, err := r.Connect("1", testCred())
	require.NoError(t, err)

	assert.Equal(t, "1", id)
	assert.True(t, r.IsAlive("1"))
	assert.Equal(t, []string{"1"}, r.List())

	_, ok := r.ConnectedAt("1")
	assert.True(t, ok)

	events := r.Events("1")
	require.Len(t, events, 1)
	assert.Equal(t, EventConnected, events[0].Type)
}

func TestConnect_Idempotent(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)

	_, err := r.Connect("1", testCred())
	require.NoError(t, err)
	id, err := r.Connect("1", testCred())
	require.NoError(t, err)

	assert.Equal(t, "1", id)
	assert.Equal(t, 1, transport.Calls(), "second connect must not authenticate")
	assert.Len(t, r.List(), 1)
}

func TestConnect_ConcurrentSameID(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	transport.SetDelay(20 * time.Millisecond)
	r := newTestRegistry(t, transport, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Connect("1", testCred())
			assert.NoError(t, err)
			assert.Equal(t, "1", id)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"1"}, r.List())

	// Exactly one connection survives; every loser was closed.
	open := 0
	for _, c := range transport.Conns() {
		if !c.IsClosed() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestConnect_AuthFailureLeavesNoSession(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	transport.SetError(stderrors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"))
	r := newTestRegistry(t, transport, 0)

	_, err := r.Connect("1", testCred())
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.ErrAuth), "got %v", err)
	assert.False(t, r.IsAlive("1"))
	assert.Empty(t, r.List())
}

func TestConnect_ConfigErrorBeforeAuth(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)

	cred := testCred()
	cred.AuthType = "kerberos"

	_, err := r.Connect("1", cred)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Empty(t, transport.Conns())
	assert.False(t, r.IsAlive("1"))
}

func TestConnect_EmptyID(t *testing.T) {
	r := newTestRegistry(t, sshtesting.NewFakeTransport(), 0)

	_, err := r.Connect("", testCred())
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestDisconnect(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)

	_, err := r.Connect("1", testCred())
	require.NoError(t, err)
	conn := transport.LastConn()

	require.NoError(t, r.Disconnect("1"))

	assert.False(t, r.IsAlive("1"))
	assert.True(t, conn.IsClosed())

	events := r.Events("1")
	require.Len(t, events, 2)
	assert.Equal(t, EventDisconnected, events[1].Type)
}

func TestDisconnect_NotFound(t *testing.T) {
	r := newTestRegistry(t, sshtesting.NewFakeTransport(), 0)

	err := r.Disconnect("missing")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestDisconnect_ThenReconnect(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)

	_, err := r.Connect("1", testCred())
	require.NoError(t, err)
	require.NoError(t, r.Disconnect("1"))

	_, err = r.Connect("1", testCred())
	require.NoError(t, err)
	assert.Equal(t, 2, transport.Calls())
	assert.True(t, r.IsAlive("1"))
}

func TestList_Sorted(t *testing.T) {
	r := newTestRegistry(t, sshtesting.NewFakeTransport(), 0)

	for _, id := range []string{"3", "1", "2"} {
		_, err := r.Connect(id, testCred())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"1", "2", "3"}, r.List())
}

func TestRun(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	transport.SetConnFactory(func(cred sshutil.Credential) *sshtesting.MockConn {
		c := sshtesting.NewMockConn(cred.Host)
		c.SetCommandResponse("uptime", sshtesting.CommandResponse{Stdout: []byte("up 3 days\n")})
		c.SetCommandResponse("cat /nope", sshtesting.CommandResponse{
			Stderr: []byte("cat: /nope: No such file or directory\n"), ExitCode: 1,
		})
		return c
	})
	r := newTestRegistry(t, transport, 0)
	_, err := r.Connect("1", testCred())
	require.NoError(t, err)

	tests := []struct {
		name string
		cmd  string
		want Result
	}{
		{name: "stdout", cmd: "uptime", want: Result{Stdout: "up 3 days\n"}},
		{name: "false exits 1 without error", cmd: "false", want: Result{ExitStatus: 1}},
		{name: "stderr and exit status", cmd: "cat /nope", want: Result{Stderr: "cat: /nope: No such file or directory\n", ExitStatus: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), "1", tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *res)
		})
	}
}

func TestRun_NotFound(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)

	_, err := r.Run(context.Background(), "missing", "true")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	assert.Zero(t, transport.Calls())
}

func TestRun_CancelledContext(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)
	_, err := r.Connect("1", testCred())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Run(ctx, "1", "uptime")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, transport.LastConn().CallCount("uptime"))
}

func TestRun_ChannelFailureIsClassified(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)
	_, err := r.Connect("1", testCred())
	require.NoError(t, err)

	transport.LastConn().SetExecError(stderrors.New("read tcp 10.0.0.5:22: i/o timeout"))

	res, err := r.Run(context.Background(), "1", "uptime")
	assert.Nil(t, res)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout), "got %v", err)
}

func TestRun_SerializedPerSession(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := newTestRegistry(t, transport, 0)
	_, err := r.Connect("1", testCred())
	require.NoError(t, err)

	conn := transport.LastConn()
	conn.SetDelay(30 * time.Millisecond)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Run(context.Background(), "1", fmt.Sprintf("echo %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, conn.Calls(), 3)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestClose_ClosesEverything(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	r := New(transport, Options{MonitorInterval: 10 * time.Millisecond, Logger: logger.Noop()})

	for _, id := range []string{"1", "2"} {
		_, err := r.Connect(id, testCred())
		require.NoError(t, err)
	}

	r.Close()
	r.Close()

	assert.Empty(t, r.List())
	for _, c := range transport.Conns() {
		assert.True(t, c.IsClosed())
	}

	_, err := r.Connect("3", testCred())
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
