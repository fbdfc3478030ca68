package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Eight vertical levels, lowest to highest.
var sparklineBlocks = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws the last width values of data. Values are scaled
// between the series minimum and maximum, and the line is colored by the
// threshold of the most recent value.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return renderBlocks(data, lo, hi)
}

// RenderPercentSparkline is RenderSparkline on a fixed 0-100 scale, so an
// idle device reads low instead of being stretched to full height.
func RenderPercentSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	return renderBlocks(data, 0, 100)
}

func renderBlocks(data []float64, lo, hi float64) string {
	var sb strings.Builder
	sb.Grow(len(data) * 3)

	levels := len(sparklineBlocks)
	span := hi - lo
	for _, v := range data {
		level := levels / 2
		if span > 0 {
			level = int((v - lo) / span * float64(levels-1))
			level = max(0, min(level, levels-1))
		}
		sb.WriteRune(sparklineBlocks[level])
	}

	last := data[len(data)-1]
	return lipgloss.NewStyle().Foreground(ThresholdColor(last)).Render(sb.String())
}
