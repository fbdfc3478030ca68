package telemetry

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/internal/session"
	"github.com/orion-fleet/orion/pkg/sshutil"
	sshtesting "github.com/orion-fleet/orion/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor replays queued results per command.
type scriptedExecutor struct {
	mu      sync.Mutex
	results map[string][]*session.Result
	errs    map[string]error
	panics  map[string]bool
	calls   []string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		results: make(map[string][]*session.Result),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
	}
}

func (e *scriptedExecutor) queue(cmd, stdout string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[cmd] = append(e.results[cmd], &session.Result{Stdout: stdout})
}

func (e *scriptedExecutor) Run(_ context.Context, _, cmd string) (*session.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, cmd)

	if e.panics[cmd] {
		panic("boom")
	}
	if err := e.errs[cmd]; err != nil {
		return nil, err
	}
	queued := e.results[cmd]
	if len(queued) == 0 {
		return &session.Result{}, nil
	}
	res := queued[0]
	if len(queued) > 1 {
		e.results[cmd] = queued[1:]
	}
	return res, nil
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestSampler_CPUDelta(t *testing.T) {
	exec := newScriptedExecutor()
	exec.queue(StatsCommand, "cpu 200 0 100 700 0 0 0 0\n7764 2208\n")
	exec.queue(StatsCommand, "cpu 300 0 140 760 0 0 0 0\n7764 2300\n")
	exec.queue(TegrastatsCommand, "GR3D_FREQ 12% GPU@44C\n")

	s := NewSampler(exec, Options{Logger: logger.Noop(), Clock: fixedClock(1700000000000)})

	first, err := s.Sample(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.CPUPercent, "first sample has nothing to diff against")
	assert.Equal(t, int64(7764), first.RAMTotalMB)
	assert.Equal(t, int64(2208), first.RAMUsedMB)
	assert.Equal(t, int64(1700000000000), first.Timestamp)
	assert.Equal(t, "1", first.DeviceID)
	require.NotNil(t, first.GPUUtil)
	assert.Equal(t, 12.0, *first.GPUUtil)
	require.NotNil(t, first.GPUTempC)
	assert.Equal(t, 44.0, *first.GPUTempC)

	second, err := s.Sample(context.Background(), "1")
	require.NoError(t, err)
	assert.InDelta(t, 70.0, second.CPUPercent, 1e-9)
	assert.Equal(t, int64(2300), second.RAMUsedMB)
}

func TestSampler_CountersPerSession(t *testing.T) {
	exec := newScriptedExecutor()
	exec.queue(StatsCommand, "cpu 200 0 100 700\n1 1\n")
	exec.queue(StatsCommand, "cpu 300 0 140 760\n1 1\n")
	exec.queue(StatsCommand, "cpu 300 0 140 760\n1 1\n")

	s := NewSampler(exec, Options{Logger: logger.Noop()})

	_, err := s.Sample(context.Background(), "a")
	require.NoError(t, err)

	// "b" has never been sampled, so it starts from zero even though "a" has history.
	b, err := s.Sample(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.CPUPercent)

	// Same counters twice: no progress.
	b, err = s.Sample(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.CPUPercent)
}

func TestSampler_RolloverAfterReboot(t *testing.T) {
	exec := newScriptedExecutor()
	exec.queue(StatsCommand, "cpu 90000 0 10000 50000\n1 1\n")
	exec.queue(StatsCommand, "cpu 10 0 10 80\n1 1\n")

	s := NewSampler(exec, Options{Logger: logger.Noop()})
	_, err := s.Sample(context.Background(), "1")
	require.NoError(t, err)

	got, err := s.Sample(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.CPUPercent)
}

func TestSampler_ParseError(t *testing.T) {
	exec := newScriptedExecutor()
	exec.queue(StatsCommand, "sh: cat: not found\n")

	s := NewSampler(exec, Options{Logger: logger.Noop()})
	_, err := s.Sample(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrParse))
	assert.NotContains(t, exec.calls, TegrastatsCommand)
}

func TestSampler_StatsErrorPropagates(t *testing.T) {
	exec := newScriptedExecutor()
	exec.errs[StatsCommand] = errors.NotFound("1")

	s := NewSampler(exec, Options{Logger: logger.Noop()})
	_, err := s.Sample(context.Background(), "1")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestSampler_GPUFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *scriptedExecutor)
	}{
		{"transport error", func(e *scriptedExecutor) {
			e.errs[TegrastatsCommand] = stderrors.New("ssh: channel open failed")
		}},
		{"panic", func(e *scriptedExecutor) { e.panics[TegrastatsCommand] = true }},
		{"empty output", func(e *scriptedExecutor) { e.queue(TegrastatsCommand, "") }},
		{"garbage output", func(e *scriptedExecutor) { e.queue(TegrastatsCommand, "no such binary\n") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newScriptedExecutor()
			exec.queue(StatsCommand, "cpu 1 2 3 4\n7764 2208\n")
			tt.setup(exec)

			buf := logger.NewBufferLogger()
			s := NewSampler(exec, Options{Logger: buf})

			got, err := s.Sample(context.Background(), "1")
			require.NoError(t, err)
			assert.Nil(t, got.GPUUtil)
			assert.Nil(t, got.GPUTempC)
			assert.Equal(t, int64(7764), got.RAMTotalMB)
		})
	}
}

func TestSampler_OverRegistry(t *testing.T) {
	transport := sshtesting.NewFakeTransport()
	transport.SetConnFactory(func(cred sshutil.Credential) *sshtesting.MockConn {
		c := sshtesting.NewMockConn(cred.Host)
		c.SetCommandResponse(StatsCommand, sshtesting.CommandResponse{
			Stdout: []byte("cpu 200 0 100 700 0 0 0 0\n3956 1024\n"),
		})
		c.SetCommandResponse(TegrastatsCommand, sshtesting.CommandResponse{ExitCode: 127})
		return c
	})

	reg := session.New(transport, session.Options{MonitorInterval: time.Hour, Logger: logger.Noop()})
	t.Cleanup(reg.Close)

	_, err := reg.Connect("7", sshutil.Credential{
		Host: "10.0.0.7", Port: 22, Username: "jetson",
		AuthType: sshutil.AuthPassword, Password: "nvidia",
	})
	require.NoError(t, err)

	s := NewSampler(reg, Options{Logger: logger.Noop()})
	got, err := s.Sample(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, "7", got.DeviceID)
	assert.Equal(t, int64(3956), got.RAMTotalMB)
	assert.Equal(t, int64(1024), got.RAMUsedMB)
	assert.Nil(t, got.GPUUtil)

	_, err = s.Sample(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}
