package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/orion-fleet/orion/internal/control"
	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCred() sshutil.Credential {
	return sshutil.Credential{
		Host:     "10.0.0.5",
		Port:     22,
		Username: "jetson",
		AuthType: sshutil.AuthPassword,
		Password: "nvidia",
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orion.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.FileExists(t, path)
}

func TestCreateDevice(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.CreateDevice("orin-01", "bench unit", testCred())
	require.NoError(t, err)
	assert.NotZero(t, id)

	devices, err := s.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "orin-01", devices[0].Name)
	assert.Equal(t, "bench unit", devices[0].Description)
	assert.Equal(t, "1", devices[0].SessionID())
	assert.Nil(t, devices[0].LastConnectedAt)

	cred, err := s.CredentialFor(id)
	require.NoError(t, err)
	assert.Equal(t, testCred(), cred)
}

func TestCreateDevice_EmptyName(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.CreateDevice("  ", "", testCred())
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	devices, err := s.ListDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestDeleteDevice(t *testing.T) {
	s := setupTestStore(t)
	id, err := s.CreateDevice("orin-01", "", testCred())
	require.NoError(t, err)

	require.NoError(t, s.DeleteDevice(id))

	_, err = s.GetDevice(id)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	_, err = s.CredentialFor(id)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	err = s.DeleteDevice(id)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestTouchDevice(t *testing.T) {
	s := setupTestStore(t)
	id, err := s.CreateDevice("orin-01", "", testCred())
	require.NoError(t, err)

	at := time.UnixMilli(1700000000123)
	require.NoError(t, s.TouchDevice(id, at))

	d, err := s.GetDevice(id)
	require.NoError(t, err)
	require.NotNil(t, d.LastConnectedAt)
	assert.Equal(t, int64(1700000000123), *d.LastConnectedAt)
}

func TestCredentialFor_Missing(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.CredentialFor(42)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestSamples_ChronologicalWithLimit(t *testing.T) {
	s := setupTestStore(t)
	util := 33.0

	for ts := int64(1); ts <= 5; ts++ {
		require.NoError(t, s.InsertSample(telemetry.Sample{
			Timestamp:  ts * 1000,
			CPUPercent: float64(ts),
			RAMUsedMB:  100,
			RAMTotalMB: 200,
			GPUUtil:    &util,
			DeviceID:   "1",
		}))
	}
	require.NoError(t, s.InsertSample(telemetry.Sample{Timestamp: 9000, DeviceID: "2"}))

	tests := []struct {
		name   string
		filter SampleFilter
		want   []int64
	}{
		{"default limit", SampleFilter{}, []int64{1000, 2000, 3000, 4000, 5000}},
		{"newest three", SampleFilter{Limit: 3}, []int64{3000, 4000, 5000}},
		{"start bound", SampleFilter{StartTS: 4000}, []int64{4000, 5000}},
		{"end bound", SampleFilter{EndTS: 2000}, []int64{1000, 2000}},
		{"both bounds", SampleFilter{StartTS: 2000, EndTS: 4000, Limit: 2}, []int64{3000, 4000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadSamples(1, tt.filter)
			require.NoError(t, err)

			var ts []int64
			for _, sample := range got {
				ts = append(ts, sample.Timestamp)
				assert.Equal(t, "1", sample.DeviceID)
			}
			assert.Equal(t, tt.want, ts)
		})
	}

	got, err := s.ReadSamples(1, SampleFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].GPUUtil)
	assert.Equal(t, 33.0, *got[0].GPUUtil)
	assert.Nil(t, got[0].GPUTempC)
}

func TestInsertSample_BadDeviceID(t *testing.T) {
	s := setupTestStore(t)

	for _, id := range []string{"", "abc", "0", "-1"} {
		err := s.InsertSample(telemetry.Sample{DeviceID: id})
		assert.True(t, errors.IsCode(err, errors.ErrConfig), id)
	}
}

func TestPruneSamples(t *testing.T) {
	s := setupTestStore(t)
	for _, ts := range []int64{1000, 2000, 3000} {
		require.NoError(t, s.InsertSample(telemetry.Sample{Timestamp: ts, DeviceID: "1"}))
	}

	n, err := s.PruneSamples(time.UnixMilli(2500))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.ReadSamples(1, SampleFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, int64(3000), left[0].Timestamp)
}

func TestCounts(t *testing.T) {
	s := setupTestStore(t)

	devices, samples, err := s.Counts()
	require.NoError(t, err)
	assert.Zero(t, devices)
	assert.Zero(t, samples)

	_, err = s.CreateDevice("orin", "", testCred())
	require.NoError(t, err)
	require.NoError(t, s.InsertSample(telemetry.Sample{Timestamp: 1000, DeviceID: "1"}))
	require.NoError(t, s.InsertSample(telemetry.Sample{Timestamp: 2000, DeviceID: "1"}))

	devices, samples, err = s.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(1), devices)
	assert.Equal(t, int64(2), samples)
}

func TestSystemInfo_Upsert(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.GetSystemInfo(1)
	require.NoError(t, err)
	assert.Nil(t, got)

	cuda := "12.2"
	require.NoError(t, s.UpsertSystemInfo(1, &control.SystemInfo{
		Hostname: "orin-01", OS: "Linux", Kernel: "5.15", CUDA: &cuda, UptimeSec: 10, UpdatedAt: 100,
	}))
	require.NoError(t, s.UpsertSystemInfo(1, &control.SystemInfo{
		Hostname: "orin-01", OS: "Linux", Kernel: "5.15", UptimeSec: 20, UpdatedAt: 200,
	}))

	got, err = s.GetSystemInfo(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(20), got.UptimeSec)
	assert.Equal(t, int64(200), got.UpdatedAt)
	assert.Nil(t, got.CUDA)

	var count int64
	require.NoError(t, s.db.Model(&SystemInfo{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestParseDeviceID(t *testing.T) {
	id, err := ParseDeviceID("17")
	require.NoError(t, err)
	assert.Equal(t, uint(17), id)

	_, err = ParseDeviceID("seventeen")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
