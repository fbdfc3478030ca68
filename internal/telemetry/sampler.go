package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/internal/session"
)

// Remote commands run by the sampler. The stats command prints the aggregate
// /proc/stat line followed by "total used" memory in MiB.
const (
	StatsCommand      = `sh -lc 'cat /proc/stat | head -n1; free -m | awk "/Mem:/ {print $2, $3}"'`
	TegrastatsCommand = `sh -lc 'tegrastats --interval 1000 --count 1 2>/dev/null || sudo -n tegrastats --interval 1000 --count 1 2>/dev/null'`
)

// Executor runs a command on a registered session. *session.Registry
// implements it.
type Executor interface {
	Run(ctx context.Context, id, cmd string) (*session.Result, error)
}

// Sample is one telemetry point for a session.
type Sample struct {
	Timestamp  int64    `json:"ts"` // unix milliseconds
	CPUPercent float64  `json:"cpu"`
	RAMUsedMB  int64    `json:"ram_used_mb"`
	RAMTotalMB int64    `json:"ram_total_mb"`
	GPUUtil    *float64 `json:"gpu_util"`
	GPUTempC   *float64 `json:"gpu_temp_c"`
	DeviceID   string   `json:"device_id"`
}

// RAMPercent returns used memory as a percentage of total, or 0 when the
// total is unknown.
func (s Sample) RAMPercent() float64 {
	if s.RAMTotalMB <= 0 {
		return 0
	}
	return float64(s.RAMUsedMB) / float64(s.RAMTotalMB) * 100
}

// Options configures a Sampler.
type Options struct {
	Logger logger.Logger
	Clock  func() time.Time
}

// Sampler takes telemetry samples over sessions. It remembers the previous
// CPU counters per session id so each sample reports utilization since the
// last one.
type Sampler struct {
	exec  Executor
	log   logger.Logger
	clock func() time.Time

	mu   sync.Mutex
	prev map[string]CPUCounters
}

// NewSampler creates a Sampler that runs its commands through exec.
func NewSampler(exec Executor, opts Options) *Sampler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Sampler{
		exec:  exec,
		log:   logger.OrDefault(opts.Logger),
		clock: clock,
		prev:  make(map[string]CPUCounters),
	}
}

// Sample collects CPU, memory and, best-effort, GPU readings for id.
//
// Errors running the stats command are returned unchanged (ErrNotFound,
// transport errors). A malformed CPU line is ErrParse. The first sample for
// an id reports 0% CPU since there is nothing to diff against. GPU readings
// never fail the sample; they are nil when tegrastats is unavailable.
func (s *Sampler) Sample(ctx context.Context, id string) (*Sample, error) {
	res, err := s.exec.Run(ctx, id, StatsCommand)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(res.Stdout, "\n")
	cpuLine := lines[0]
	memLine := ""
	if len(lines) > 1 {
		memLine = lines[1]
	}

	cur, err := ParseCPULine(cpuLine)
	if err != nil {
		return nil, err
	}
	cpu := CPUPercent(s.swap(id, cur), cur)
	total, used := ParseMemLine(memLine)

	gpuUtil, gpuTemp := s.sampleGPU(ctx, id)

	return &Sample{
		Timestamp:  s.clock().UnixMilli(),
		CPUPercent: cpu,
		RAMUsedMB:  used,
		RAMTotalMB: total,
		GPUUtil:    gpuUtil,
		GPUTempC:   gpuTemp,
		DeviceID:   id,
	}, nil
}

// swap stores cur as the latest counters for id and returns the previous
// ones. With no previous entry, cur itself is returned.
func (s *Sampler) swap(id string, cur CPUCounters) CPUCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.prev[id]
	s.prev[id] = cur
	if !ok {
		return cur
	}
	return prev
}

// sampleGPU runs tegrastats once. Any failure, including a panic while
// parsing, yields (nil, nil).
func (s *Sampler) sampleGPU(ctx context.Context, id string) (util, temp *float64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Debug("tegrastats on %s: %v", id, r)
			util, temp = nil, nil
		}
	}()

	res, err := s.exec.Run(ctx, id, TegrastatsCommand)
	if err != nil {
		s.log.Debug("tegrastats on %s: %v", id, err)
		return nil, nil
	}

	line, _, _ := strings.Cut(res.Stdout, "\n")
	return ParseTegrastats(line)
}
