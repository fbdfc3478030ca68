package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	gaugeFilled = "█"
	gaugeEmpty  = "░"
)

// RenderGauge draws a width-wide bar for percent (clamped to 0-100)
// followed by the rounded value: "████░░░░  50%".
func RenderGauge(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(percent, 100))

	filled := int(percent / 100 * float64(width))
	bar := strings.Repeat(gaugeFilled, filled) + strings.Repeat(gaugeEmpty, width-filled)

	style := lipgloss.NewStyle().Foreground(ThresholdColor(percent))
	return style.Render(bar) + fmt.Sprintf(" %3.0f%%", percent)
}
