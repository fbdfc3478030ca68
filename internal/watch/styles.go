package watch

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/orion-fleet/orion/internal/ui"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary).
			Bold(true).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(ui.ColorNeonPink).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ColorGlassBorder).
			Padding(0, 1).
			MarginRight(1).
			MarginBottom(1)

	cardSelectedStyle = cardStyle.BorderForeground(ui.ColorNeonPink)

	nameStyle  = lipgloss.NewStyle().Foreground(ui.ColorPrimary).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(ui.ColorSecondary)
	mutedStyle = lipgloss.NewStyle().Foreground(ui.ColorMuted)

	liveStyle    = lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	staleStyle   = lipgloss.NewStyle().Foreground(ui.ColorWarning)
	waitingStyle = lipgloss.NewStyle().Foreground(ui.ColorMuted)

	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ColorNeonCyan).
			Padding(1, 2)
)
