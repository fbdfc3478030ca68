package ui

import "github.com/charmbracelet/lipgloss"

// Brand palette.
const (
	ColorNeonPink    lipgloss.Color = "#FF2E97"
	ColorNeonCyan    lipgloss.Color = "#00E5FF"
	ColorNeonPurple  lipgloss.Color = "#B14EFF"
	ColorNeonGreen   lipgloss.Color = "#39FF14"
	ColorGlassBorder lipgloss.Color = "#3A3F58"
)

// Semantic colors for status indication.
const (
	ColorSuccess lipgloss.Color = "#3DDC84"
	ColorError   lipgloss.Color = "#FF5370"
	ColorWarning lipgloss.Color = "#FFB86C"
	ColorInfo    lipgloss.Color = "#82AAFF"
)

// Text colors for content hierarchy.
const (
	ColorPrimary   lipgloss.Color = "#E6E6E6"
	ColorSecondary lipgloss.Color = "#8BA4D9"
	ColorMuted     lipgloss.Color = "#6C7086"
)

// GradientColors cycles through the spinner animation.
var GradientColors = []lipgloss.Color{
	ColorNeonPink,
	ColorNeonPurple,
	ColorNeonCyan,
	ColorNeonGreen,
}

func SuccessStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorSuccess) }
func ErrorStyle() lipgloss.Style   { return lipgloss.NewStyle().Foreground(ColorError) }
func WarningStyle() lipgloss.Style { return lipgloss.NewStyle().Foreground(ColorWarning) }
func MutedStyle() lipgloss.Style   { return lipgloss.NewStyle().Foreground(ColorMuted) }

// TitleStyle is used for section headings in command output.
func TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true)
}

// ThresholdColor maps a percentage onto green, amber or red.
func ThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
