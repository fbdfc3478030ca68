package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHistory(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"default size", 0, DefaultHistorySize},
		{"negative size", -1, DefaultHistorySize},
		{"custom size", 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(tt.size)
			require.NotNil(t, h)
			assert.Equal(t, tt.expected, h.size)
		})
	}
}

func TestHistory_RingWrapsOldestFirst(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(Sample{DeviceID: "1", CPUPercent: float64(i * 10), Timestamp: int64(i)})
	}

	assert.Equal(t, 3, h.Count("1"))
	assert.Equal(t, []float64{30, 40, 50}, h.CPU("1", 10))
	assert.Equal(t, []float64{40, 50}, h.CPU("1", 2))

	latest, ok := h.Latest("1")
	require.True(t, ok)
	assert.Equal(t, int64(5), latest.Timestamp)
}

func TestHistory_SeriesSkipMissingValues(t *testing.T) {
	util := 42.0
	h := NewHistory(10)
	h.Push(Sample{DeviceID: "1", RAMUsedMB: 512, RAMTotalMB: 1024})
	h.Push(Sample{DeviceID: "1", GPUUtil: &util})

	assert.Equal(t, []float64{50}, h.RAM("1", 10))
	assert.Equal(t, []float64{42}, h.GPU("1", 10))
}

func TestHistory_UnknownDevice(t *testing.T) {
	h := NewHistory(10)

	assert.Nil(t, h.CPU("nope", 5))
	assert.Nil(t, h.GPU("nope", 5))
	assert.Zero(t, h.Count("nope"))
	_, ok := h.Latest("nope")
	assert.False(t, ok)
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(10)
	h.Push(Sample{DeviceID: "1"})
	h.Push(Sample{DeviceID: "2"})

	h.Clear("1")

	assert.Zero(t, h.Count("1"))
	assert.Equal(t, 1, h.Count("2"))
}

func TestHistory_Concurrent(t *testing.T) {
	h := NewHistory(20)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Push(Sample{DeviceID: "1", CPUPercent: float64(j)})
				_ = h.CPU("1", 5)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, h.Count("1"))
}
