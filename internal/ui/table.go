package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn is a column title and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a non-focused Bubbles table with the CLI's styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Unfocused tables still highlight row 0 unless Selected is plain.
	s.Selected = s.Cell
	t.SetStyles(s)
	return t
}

// RenderTable renders rows as a static table, or "" when there are none.
func RenderTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

// DeviceRow is one line of the device list.
type DeviceRow struct {
	ID        string
	Name      string
	Address   string
	Connected bool
	LastSeen  string
}

// RenderDeviceTable renders the device list with an online marker per row.
func RenderDeviceTable(rows []DeviceRow) string {
	if len(rows) == 0 {
		return "No devices. Add one with: orion device add"
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	var b strings.Builder
	b.WriteString(header.Render("    " + padRight("ID", 6) + padRight("NAME", 20) + padRight("ADDRESS", 28) + "LAST CONNECTED"))
	b.WriteString("\n")

	for _, r := range rows {
		mark := MutedStyle().Render(SymbolPending)
		if r.Connected {
			mark = SuccessStyle().Render(SymbolOnline)
		}
		last := r.LastSeen
		if last == "" {
			last = "never"
		}
		b.WriteString("  " + mark + " " + padRight(r.ID, 6) + padRight(r.Name, 20) + padRight(r.Address, 28) + MutedStyle().Render(last))
		b.WriteString("\n")
	}
	return b.String()
}

// KV is one labeled value in a key/value block.
type KV struct {
	Key   string
	Value string
}

// RenderKV renders a titled block of aligned key/value lines.
func RenderKV(title string, pairs []KV) string {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p.Key))
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(TitleStyle().Render(title))
		b.WriteString("\n")
	}
	for _, p := range pairs {
		b.WriteString("  " + MutedStyle().Render(padRight(p.Key, width+2)) + p.Value + "\n")
	}
	return b.String()
}

// padRight pads s to width visible cells, ignoring ANSI escapes.
func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
