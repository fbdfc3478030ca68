package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/orion-fleet/orion/internal/config"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/fleet"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/internal/storage"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/pkg/sshutil"
	sshtesting "github.com/orion-fleet/orion/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	mu  sync.Mutex
	err error
}

func (p *stubProber) Probe(host string, port int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return false, p.err
	}
	return true, nil
}

// harness runs orion commands against a temp config and database, with SSH
// replaced by sshtesting.FakeTransport.
type harness struct {
	dir        string
	configPath string
	transport  *sshtesting.FakeTransport
	prober     *stubProber
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	h := &harness{
		dir:        dir,
		configPath: filepath.Join(dir, "orion.yaml"),
		transport:  sshtesting.NewFakeTransport(),
		prober:     &stubProber{},
	}
	require.NoError(t, config.WriteDefault(h.configPath, false))

	h.transport.SetConnFactory(func(cred sshutil.Credential) *sshtesting.MockConn {
		c := sshtesting.NewMockConn(cred.Host)
		c.SetCommandResponse(telemetry.StatsCommand, sshtesting.CommandResponse{
			Stdout: []byte("cpu 200 0 100 700 0 0 0 0\n7764 2208\n"),
		})
		c.SetCommandResponse(telemetry.TegrastatsCommand, sshtesting.CommandResponse{
			Stdout: []byte("RAM 2208/7764MB GR3D_FREQ 25% GPU@40C\n"),
		})
		c.SetCommandResponse("uname -a", sshtesting.CommandResponse{Stdout: []byte("Linux orin 5.10.120-tegra aarch64\n")})
		return c
	})

	orig := newService
	newService = func(c *config.Config, log logger.Logger) (*fleet.Service, error) {
		store, err := storage.Open(filepath.Join(dir, "orion.db"))
		if err != nil {
			return nil, err
		}
		cc := *c
		cc.SSHConfigPath = ""
		cc.MonitorInterval = time.Hour
		return fleet.New(fleet.Options{
			Config:    &cc,
			Store:     store,
			Transport: h.transport,
			Prober:    h.prober,
			Logger:    logger.Noop(),
		})
	}
	t.Cleanup(func() {
		newService = orig
		resetFlags()
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	return h
}

// resetFlags restores flag variables; cobra keeps them across Execute calls.
func resetFlags() {
	configFlag = ""
	debugFlag = false
	machineMode = false
	cfg, configPath = nil, ""

	addOpts = deviceAddOptions{Port: 22}
	removeYes, listProbe = false, false
	importDesc, importRename = "", ""

	configInitForce, configInitGlobal = false, false
	historyLimit, historySince, historyUntil = storage.DefaultSampleLimit, 0, 0
	statsFollow, statsInterval = false, 0
	probePort = 22
	powerYes, sysinfoCached = false, false
	watchInterval = 0
	doctorFix = false
	versionShort = false
}

func (h *harness) run(args ...string) (int, string, string) {
	resetFlags()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	code := run(append([]string{"--config", h.configPath}, args...))
	return code, stdout.String(), stderr.String()
}

func (h *harness) addDevice(t *testing.T, name string) {
	t.Helper()
	code, _, stderr := h.run("device", "add", name, "--host", "10.0.0.5", "--user", "jetson", "--password", "nvidia")
	require.Equal(t, 0, code, stderr)
}

func decodeEnvelope(t *testing.T, out string) JSONEnvelope {
	t.Helper()
	var env JSONEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

func TestDeviceAddAndList(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("--json", "device", "add", "orin-01", "--host", "10.0.0.5", "--user", "jetson", "--password", "nvidia", "-d", "bench")
	require.Equal(t, 0, code)
	env := decodeEnvelope(t, out)
	assert.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, "orin-01", data["name"])

	code, out, _ = h.run("--json", "device", "list")
	require.Equal(t, 0, code)
	env = decodeEnvelope(t, out)
	list := env.Data.([]interface{})
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "orin-01", entry["name"])
	assert.Equal(t, "bench", entry["description"])
	assert.Equal(t, "jetson@10.0.0.5:22", entry["address"])
	assert.NotContains(t, entry, "online", "only set with --probe")

	code, out, _ = h.run("device", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "orin-01")
}

func TestDeviceList_Empty(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("device", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No devices")
}

func TestDeviceAdd_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		args     []string
		wantCode string
	}{
		{
			name:     "missing user",
			args:     []string{"--host", "10.0.0.5", "--password", "x"},
			wantCode: string(errors.ErrConfig),
		},
		{
			name: "unreachable",
			setup: func(h *harness) {
				h.prober.err = errors.New(errors.ErrUnreachable, "host unreachable or port closed", "")
			},
			args:     []string{"--host", "10.0.0.5", "--user", "jetson", "--password", "x"},
			wantCode: string(errors.ErrUnreachable),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			args := append([]string{"--json", "device", "add", "orin"}, tt.args...)
			code, out, _ := h.run(args...)
			assert.Equal(t, 1, code)

			env := decodeEnvelope(t, out)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)

			_, out, _ = h.run("--json", "device", "list")
			assert.Empty(t, decodeEnvelope(t, out).Data)
		})
	}
}

func TestDeviceRemove(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "orin-01")

	// No terminal to confirm on.
	code, _, stderr := h.run("device", "remove", "orin-01")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--yes")

	code, out, _ := h.run("device", "remove", "orin-01", "--yes")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Removed orin-01")

	code, _, _ = h.run("device", "remove", "orin-01", "--yes")
	assert.Equal(t, 1, code)
}

func TestExec(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "orin-01")

	code, out, _ := h.run("exec", "orin-01", "--", "uname", "-a")
	assert.Equal(t, 0, code)
	assert.Equal(t, "Linux orin 5.10.120-tegra aarch64\n", out)
	assert.Contains(t, h.transport.LastConn().Calls(), "uname -a", "the -- separator is not sent")

	code, _, _ = h.run("exec", "1", "--", "false")
	assert.Equal(t, 1, code, "remote exit status is the process exit status")

	code, _, _ = h.run("exec", "nope", "--", "true")
	assert.Equal(t, 1, code)
}

func TestStatsAndHistory(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "orin-01")

	code, out, stderr := h.run("--json", "stats", "orin-01", "--interval", "5ms")
	require.Equal(t, 0, code, stderr)
	sample := decodeEnvelope(t, out).Data.(map[string]interface{})
	assert.Equal(t, float64(7764), sample["ram_total_mb"])
	assert.Equal(t, float64(25), sample["gpu_util"])
	assert.Equal(t, "1", sample["device_id"])

	code, out, _ = h.run("--json", "history", "orin-01")
	require.Equal(t, 0, code)
	samples := decodeEnvelope(t, out).Data.([]interface{})
	assert.Len(t, samples, 2, "both readings of a one-shot sample are stored")

	code, out, _ = h.run("history", "orin-01", "-n", "1")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1 samples")

	// Samples outlive the device.
	code, _, _ = h.run("device", "remove", "1", "--yes")
	require.Equal(t, 0, code)
	code, out, _ = h.run("--json", "history", "1")
	require.Equal(t, 0, code)
	assert.Len(t, decodeEnvelope(t, out).Data, 2)
}

func TestStats_BadInterval(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("stats", "orin-01", "--interval", "-1s")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--interval")
}

func TestHistoryPrune(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("--json", "history", "prune")
	require.Equal(t, 0, code)
	data := decodeEnvelope(t, out).Data.(map[string]interface{})
	assert.Equal(t, float64(0), data["pruned"])
}

func TestConfigInit(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "nested", "orion.yaml")

	resetFlags()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&bytes.Buffer{})

	require.Equal(t, 0, run([]string{"config", "init", "--config", path}))
	assert.Contains(t, stdout.String(), "Wrote")

	resetFlags()
	assert.Equal(t, 1, run([]string{"config", "init", "--config", path}), "refuses to overwrite")

	resetFlags()
	assert.Equal(t, 0, run([]string{"config", "init", "--config", path, "--force"}))

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().StreamInterval, c.StreamInterval)
}

func TestConfigSet(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("config", "set", "retention.keep", "72h")
	require.Equal(t, 0, code, stderr)

	c, err := config.Load(h.configPath)
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, c.Retention.Keep)

	code, _, _ = h.run("config", "set", "retention", "off")
	assert.Equal(t, 1, code, "can't replace a section with a value")
}

func TestConfigShow(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("config", "show")
	require.Equal(t, 0, code)
	assert.Contains(t, out, h.configPath)
	assert.Contains(t, out, "stream_interval")
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	code, out, _ := h.run("version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "orion v1.2.3")
	assert.Contains(t, out, "commit: abc123")

	code, out, _ = h.run("version", "--short")
	require.Equal(t, 0, code)
	assert.Equal(t, "1.2.3\n", out)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("devcie")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Did you mean")
	assert.Contains(t, stderr, "device")
}

func TestDoctor(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "orin-01")

	code, out, _ := h.run("--json", "doctor")
	require.Equal(t, 0, code, out)

	var report struct {
		Data DoctorOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)

	var names []string
	for _, c := range report.Data.Categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"CONFIG", "SSH", "STORAGE", "DEVICES"}, names)
	assert.Zero(t, report.Data.Summary.Fail)
	assert.Equal(t, 1, report.Data.Summary.Warn, "no ssh_config in the temp home")

	h.prober.err = errors.New(errors.ErrTimeout, "probe timed out", "")
	code, out, _ = h.run("doctor")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "orin-01: 10.0.0.5:22 not reachable")
	assert.Contains(t, out, "issue")
}
