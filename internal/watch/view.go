package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/orion-fleet/orion/internal/telemetry"
	"github.com/orion-fleet/orion/internal/ui"
)

const (
	defaultCardWidth = 40
	gaugeWidth       = 12
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var body string
	if m.view == ViewDetail {
		body = m.renderDetail()
	} else {
		body = m.renderGrid()
	}
	return m.renderHeader() + "\n\n" + body + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	stats := fmt.Sprintf(" | %d devices | %d live | sort: %s", len(m.devices), m.LiveCount(), m.sortOrder)
	if m.closed {
		stats += " | stream closed"
	}
	return headerStyle.Render(titleStyle.Render("orion watch") + mutedStyle.Render(stats))
}

func (m Model) renderFooter() string {
	hints := []string{"q quit", "s sort", "↑↓ select", "enter detail", "? help"}
	if m.view == ViewDetail {
		hints = []string{"esc back", "q quit"}
	}
	return footerStyle.Render(strings.Join(hints, " | "))
}

func (m Model) cardWidth() int {
	if m.width > 0 && m.width < defaultCardWidth+4 {
		return max(m.width-4, 20)
	}
	return defaultCardWidth
}

func (m Model) renderGrid() string {
	if len(m.devices) == 0 {
		return labelStyle.Render("No devices to watch. Add one with: orion device add")
	}

	width := m.cardWidth()
	cards := make([]string, len(m.devices))
	for i, d := range m.devices {
		cards[i] = m.renderCard(d, width, i == m.selected)
	}

	perRow := 1
	if m.width > 0 {
		perRow = max(m.width/(width+3), 1)
	}

	var rows []string
	for i := 0; i < len(cards); i += perRow {
		end := min(i+perRow, len(cards))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderCard(d Device, width int, selected bool) string {
	style := cardStyle.Width(width)
	if selected {
		style = cardSelectedStyle.Width(width)
	}
	inner := width - 4
	spark := max(inner-gaugeWidth-12, 4)

	lines := []string{m.renderNameLine(d)}

	s, ok := m.history.Latest(d.SessionID)
	if !ok {
		lines = append(lines, mutedStyle.Render("  waiting for samples"))
		return style.Render(strings.Join(lines, "\n"))
	}

	lines = append(lines,
		metricLine("CPU", ui.RenderGauge(s.CPUPercent, gaugeWidth), ui.RenderPercentSparkline(m.history.CPU(d.SessionID, spark), spark)),
		metricLine("RAM", ui.RenderGauge(s.RAMPercent(), gaugeWidth), ui.RenderPercentSparkline(m.history.RAM(d.SessionID, spark), spark)),
	)
	if s.GPUUtil != nil {
		lines = append(lines, metricLine("GPU", ui.RenderGauge(*s.GPUUtil, gaugeWidth), ui.RenderPercentSparkline(m.history.GPU(d.SessionID, spark), spark)))
	}
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("  %d / %d MB%s", s.RAMUsedMB, s.RAMTotalMB, tempSuffix(s))))

	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) renderNameLine(d Device) string {
	status := m.StatusOf(d.SessionID)
	var mark string
	switch status {
	case StatusLive:
		mark = liveStyle.Render(ui.SymbolOnline)
	case StatusStale:
		mark = staleStyle.Render(ui.SymbolOnline)
	default:
		mark = waitingStyle.Render(ui.SymbolPending)
	}
	line := mark + " " + nameStyle.Render(d.Name)
	if status == StatusStale {
		line += " " + staleStyle.Render(m.ago(d.SessionID))
	}
	return line
}

func metricLine(label, gauge, spark string) string {
	return "  " + labelStyle.Render(label) + " " + gauge + " " + spark
}

func tempSuffix(s telemetry.Sample) string {
	if s.GPUTempC == nil {
		return ""
	}
	return fmt.Sprintf(" | GPU %.0f°C", *s.GPUTempC)
}

func (m Model) ago(sessionID string) string {
	seen, ok := m.lastSeen[sessionID]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%ds ago", int(m.now().Sub(seen)/time.Second))
}

func (m Model) renderDetail() string {
	d, ok := m.Selected()
	if !ok {
		return ""
	}

	width := max(m.width-24, 30)
	if m.width == 0 {
		width = 60
	}

	var b strings.Builder
	b.WriteString(m.renderNameLine(d))
	b.WriteString(mutedStyle.Render("  session " + d.SessionID))
	b.WriteString("\n\n")

	s, ok := m.history.Latest(d.SessionID)
	if !ok {
		b.WriteString(mutedStyle.Render("waiting for samples"))
		return b.String()
	}

	series := []seriesRow{
		{"CPU", s.CPUPercent, m.history.CPU(d.SessionID, width)},
		{"RAM", s.RAMPercent(), m.history.RAM(d.SessionID, width)},
	}
	if s.GPUUtil != nil {
		series = append(series, seriesRow{"GPU", *s.GPUUtil, m.history.GPU(d.SessionID, width)})
	}

	for _, row := range series {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-4s", row.label)))
		b.WriteString(fmt.Sprintf("%5.1f%%  ", row.now))
		b.WriteString(ui.RenderPercentSparkline(row.values, width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(ui.RenderKV("", []ui.KV{
		{Key: "Memory", Value: fmt.Sprintf("%d / %d MB", s.RAMUsedMB, s.RAMTotalMB)},
		{Key: "GPU temp", Value: optional(s.GPUTempC, "%.1f°C")},
		{Key: "Samples", Value: fmt.Sprintf("%d", m.history.Count(d.SessionID))},
		{Key: "Last sample", Value: time.UnixMilli(s.Timestamp).Format("15:04:05")},
	}))
	return b.String()
}

type seriesRow struct {
	label  string
	now    float64
	values []float64
}

func optional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func (m Model) renderHelp() string {
	lines := []string{
		titleStyle.Render("Keys"),
		"",
		"q, ctrl+c   quit",
		"s           cycle sort (name, CPU, RAM, GPU)",
		"j/k, ↑/↓    move selection",
		"enter       device detail",
		"esc         back",
		"?           toggle this help",
	}
	return helpStyle.Render(strings.Join(lines, "\n"))
}
