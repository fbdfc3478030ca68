package telemetry

import (
	"strconv"
	"strings"

	"github.com/orion-fleet/orion/internal/errors"
)

// CPUCounters is the aggregate jiffy count from the first /proc/stat line.
type CPUCounters struct {
	Total uint64
	Idle  uint64 // idle + iowait
}

// ParseCPULine parses the aggregate "cpu" line of /proc/stat.
//
// The label is skipped and every token that parses as an unsigned integer is
// kept; non-numeric tokens are ignored. The first eight values (user, nice,
// system, idle, iowait, irq, softirq, steal) are summed. guest and guest_nice
// are already accounted for in user and nice.
func ParseCPULine(line string) (CPUCounters, error) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		fields = fields[1:]
	}

	nums := make([]uint64, 0, 10)
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		nums = append(nums, v)
	}

	if len(nums) < 4 {
		return CPUCounters{}, errors.New(errors.ErrParse,
			"failed to parse cpu",
			"Expected the aggregate cpu line of /proc/stat, got: "+strings.TrimSpace(line))
	}

	var c CPUCounters
	for i, v := range nums {
		if i == 8 {
			break
		}
		c.Total += v
		if i == 3 || i == 4 {
			c.Idle += v
		}
	}
	return c, nil
}

// CPUPercent returns busy time between two snapshots as a percentage.
// Counters that went backwards (reboot, wraparound) count as no progress,
// and the result always lies in [0, 100].
func CPUPercent(prev, cur CPUCounters) float64 {
	dt := saturatingSub(cur.Total, prev.Total)
	if dt == 0 {
		return 0
	}
	didle := saturatingSub(cur.Idle, prev.Idle)
	busy := saturatingSub(dt, didle)

	pct := float64(busy) / float64(dt) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ParseMemLine parses "total used" in MiB as printed by the free -m awk
// filter. Missing or malformed values read as 0.
func ParseMemLine(line string) (total, used int64) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		total, _ = strconv.ParseInt(fields[0], 10, 64)
	}
	if len(fields) > 1 {
		used, _ = strconv.ParseInt(fields[1], 10, 64)
	}
	return total, used
}

// ParseTegrastats extracts GPU utilization and temperature from one line of
// tegrastats output, e.g.
//
//	RAM 2208/7764MB ... GR3D_FREQ 37%@[905] ... GPU@45.5C ...
//
// Utilization is the number immediately before the first '%' that follows
// GR3D_FREQ. Temperature is the run of digits right after GPU@. Either value
// is nil when absent or unparseable; this never fails.
func ParseTegrastats(line string) (util, temp *float64) {
	if idx := strings.Index(line, "GR3D_FREQ"); idx >= 0 {
		head, _, _ := strings.Cut(line[idx:], "%")
		if sp := strings.LastIndex(head, " "); sp >= 0 {
			if v, err := strconv.ParseFloat(head[sp+1:], 64); err == nil {
				util = &v
			}
		}
	}

	if idx := strings.Index(line, "GPU@"); idx >= 0 {
		rest := line[idx+len("GPU@"):]
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end > 0 {
			if v, err := strconv.ParseFloat(rest[:end], 64); err == nil {
				temp = &v
			}
		}
	}

	return util, temp
}
