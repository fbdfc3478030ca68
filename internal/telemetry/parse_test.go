package telemetry

import (
	"testing"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPULine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want CPUCounters
	}{
		{
			name: "full jetson line",
			line: "cpu  10132153 290696 3084719 46828483 16683 0 25195 0 175628 0",
			want: CPUCounters{
				Total: 10132153 + 290696 + 3084719 + 46828483 + 16683 + 0 + 25195 + 0,
				Idle:  46828483 + 16683,
			},
		},
		{
			name: "four fields",
			line: "cpu 1 2 3 4",
			want: CPUCounters{Total: 10, Idle: 4},
		},
		{
			name: "non-numeric tokens skipped",
			line: "cpu 1 x 2 3 -4 4",
			want: CPUCounters{Total: 10, Idle: 4},
		},
		{
			name: "guest columns ignored",
			line: "cpu 1 1 1 1 1 1 1 1 100 100",
			want: CPUCounters{Total: 8, Idle: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCPULine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCPULine_TooFewFields(t *testing.T) {
	for _, line := range []string{"", "cpu", "cpu 1 2 3", "garbage in here", "cpu a b c d e"} {
		_, err := ParseCPULine(line)
		require.Error(t, err, line)
		assert.True(t, errors.IsCode(err, errors.ErrParse), line)
	}
}

func TestCPUPercent(t *testing.T) {
	tests := []struct {
		name string
		prev CPUCounters
		cur  CPUCounters
		want float64
	}{
		{"seventy percent", CPUCounters{1000, 700}, CPUCounters{1200, 760}, 70.0},
		{"no progress", CPUCounters{1000, 700}, CPUCounters{1000, 700}, 0},
		{"first sample", CPUCounters{500, 400}, CPUCounters{500, 400}, 0},
		{"rollover", CPUCounters{5000, 4000}, CPUCounters{100, 50}, 0},
		{"fully idle", CPUCounters{1000, 700}, CPUCounters{1100, 800}, 0},
		{"fully busy", CPUCounters{1000, 700}, CPUCounters{1100, 700}, 100},
		{"idle grew past total", CPUCounters{1000, 700}, CPUCounters{1010, 900}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CPUPercent(tt.prev, tt.cur)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestParseMemLine(t *testing.T) {
	tests := []struct {
		line             string
		wantTotal, wantU int64
	}{
		{"7764 2208", 7764, 2208},
		{"7764 2208\n", 7764, 2208},
		{"7764", 7764, 0},
		{"", 0, 0},
		{"abc 12", 0, 12},
	}

	for _, tt := range tests {
		total, used := ParseMemLine(tt.line)
		assert.Equal(t, tt.wantTotal, total, tt.line)
		assert.Equal(t, tt.wantU, used, tt.line)
	}
}

func TestParseTegrastats(t *testing.T) {
	ptr := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		line     string
		wantUtil *float64
		wantTemp *float64
	}{
		{
			name:     "orin nano",
			line:     "RAM 2208/7620MB (lfb 2x4MB) SWAP 0/3810MB CPU [2%@729,1%@729] EMC_FREQ 0% GR3D_FREQ 37%@[305] CPU@48.5C GPU@47.25C",
			wantUtil: ptr(37),
			wantTemp: ptr(47),
		},
		{
			name:     "zero utilization",
			line:     "GR3D_FREQ 0% GPU@41C",
			wantUtil: ptr(0),
			wantTemp: ptr(41),
		},
		{
			name:     "temperature only",
			line:     "RAM 100/200MB GPU@55C",
			wantTemp: ptr(55),
		},
		{
			name:     "utilization only",
			line:     "GR3D_FREQ 99%",
			wantUtil: ptr(99),
		},
		{
			name: "garbage",
			line: "command not found",
		},
		{
			name: "empty",
			line: "",
		},
		{
			name: "malformed values",
			line: "GR3D_FREQ abc% GPU@C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			util, temp := ParseTegrastats(tt.line)
			assert.Equal(t, tt.wantUtil, util)
			assert.Equal(t, tt.wantTemp, temp)
		})
	}
}
