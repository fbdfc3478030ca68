package telemetry

import "sync"

// DefaultHistorySize is the number of samples retained per device.
const DefaultHistorySize = 60

// History keeps the most recent samples per device id in fixed-size rings.
// It is safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	size    int
	devices map[string]*ring
}

// ring is a fixed-size circular buffer of samples.
type ring struct {
	data  []Sample
	head  int
	count int
}

// NewHistory creates a History holding size samples per device.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:    size,
		devices: make(map[string]*ring),
	}
}

// Push appends s to the ring of s.DeviceID.
func (h *History) Push(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.devices[s.DeviceID]
	if !ok {
		r = &ring{data: make([]Sample, h.size)}
		h.devices[s.DeviceID] = r
	}
	r.push(s)
}

// Samples returns up to n of the latest samples for id, oldest first.
func (h *History) Samples(id string, n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.devices[id]
	if !ok {
		return nil
	}
	return r.last(n)
}

// CPU returns up to n recent CPU percentages for id, oldest first.
func (h *History) CPU(id string, n int) []float64 {
	return h.series(id, n, func(s Sample) (float64, bool) { return s.CPUPercent, true })
}

// RAM returns up to n recent memory usage percentages for id. Samples with
// an unknown total are skipped.
func (h *History) RAM(id string, n int) []float64 {
	return h.series(id, n, func(s Sample) (float64, bool) {
		return s.RAMPercent(), s.RAMTotalMB > 0
	})
}

// GPU returns up to n recent GPU utilization values for id. Samples without
// a GPU reading are skipped, so a device with no tegrastats yields nil.
func (h *History) GPU(id string, n int) []float64 {
	return h.series(id, n, func(s Sample) (float64, bool) {
		if s.GPUUtil == nil {
			return 0, false
		}
		return *s.GPUUtil, true
	})
}

// Latest returns the most recent sample for id.
func (h *History) Latest(id string) (Sample, bool) {
	last := h.Samples(id, 1)
	if len(last) == 0 {
		return Sample{}, false
	}
	return last[0], true
}

// Count returns how many samples are held for id.
func (h *History) Count(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.devices[id]; ok {
		return r.count
	}
	return 0
}

// Clear drops all samples for id.
func (h *History) Clear(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.devices, id)
}

func (h *History) series(id string, n int, pick func(Sample) (float64, bool)) []float64 {
	samples := h.Samples(id, n)
	var out []float64
	for _, s := range samples {
		if v, ok := pick(s); ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *ring) push(s Sample) {
	r.data[r.head] = s
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// last returns the last n samples in chronological order.
func (r *ring) last(n int) []Sample {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	size := len(r.data)
	start := (r.head - n + size) % size
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%size]
	}
	return out
}
