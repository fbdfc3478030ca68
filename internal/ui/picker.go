package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/orion-fleet/orion/pkg/sshutil"
)

type hostItem struct {
	entry sshutil.SSHHostEntry
}

func (i hostItem) Title() string       { return i.entry.Alias }
func (i hostItem) Description() string { return i.entry.Description() }

// FilterValue lets the filter match on alias, hostname and user.
func (i hostItem) FilterValue() string {
	values := []string{i.entry.Alias}
	if i.entry.Hostname != "" {
		values = append(values, i.entry.Hostname)
	}
	if i.entry.User != "" {
		values = append(values, i.entry.User)
	}
	return strings.Join(values, " ")
}

var pickerKeys = struct {
	Enter key.Binding
	Quit  key.Binding
}{
	Enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "cancel")),
}

// HostPickerModel selects one ssh_config host.
type HostPickerModel struct {
	list     list.Model
	selected *sshutil.SSHHostEntry
	quitting bool
}

// NewHostPickerModel builds a filterable list over entries.
func NewHostPickerModel(entries []sshutil.SSHHostEntry) HostPickerModel {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = hostItem{entry: e}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorNeonCyan).
		BorderForeground(ColorNeonPink)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(ColorMuted)

	l := list.New(items, delegate, 80, 15)
	l.Title = "Import a device from ssh_config"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Padding(0, 0, 1, 0)

	return HostPickerModel{list: l}
}

func (m HostPickerModel) Init() tea.Cmd { return nil }

func (m HostPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, pickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(hostItem); ok {
				m.selected = &item.entry
			}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, pickerKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m HostPickerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// Selected returns the chosen entry, or nil if the picker was cancelled.
func (m HostPickerModel) Selected() *sshutil.SSHHostEntry {
	return m.selected
}

// PickHost runs the picker on the given terminal streams. It returns nil
// without error when entries is empty or the user cancels.
func PickHost(entries []sshutil.SSHHostEntry, in io.Reader, out io.Writer) (*sshutil.SSHHostEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	final, err := tea.NewProgram(NewHostPickerModel(entries), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, fmt.Errorf("host picker: %w", err)
	}
	if m, ok := final.(HostPickerModel); ok {
		return m.Selected(), nil
	}
	return nil, nil
}
