package watch

import tea "github.com/charmbracelet/bubbletea"

// SortOrder is how device cards are ordered.
type SortOrder int

const (
	SortByName SortOrder = iota
	SortByCPU
	SortByRAM
	SortByGPU
)

func (s SortOrder) String() string {
	switch s {
	case SortByCPU:
		return "CPU"
	case SortByRAM:
		return "RAM"
	case SortByGPU:
		return "GPU"
	default:
		return "name"
	}
}

// Next cycles to the following sort order.
func (s SortOrder) Next() SortOrder {
	return (s + 1) % 4
}

// ViewMode is the screen being shown.
type ViewMode int

const (
	ViewGrid ViewMode = iota
	ViewDetail
)

const (
	keyQuit       = "q"
	keyQuitAlt    = "ctrl+c"
	keyCycleSort  = "s"
	keyPrev       = "up"
	keyPrevK      = "k"
	keyNext       = "down"
	keyNextJ      = "j"
	keyExpand     = "enter"
	keyCollapse   = "esc"
	keyToggleHelp = "?"
)

// handleKey applies a keystroke. It reports whether the key was consumed.
func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == keyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if key == keyCollapse {
		switch {
		case m.showHelp:
			m.showHelp = false
		case m.view == ViewDetail:
			m.view = ViewGrid
		}
		return true, nil
	}

	switch key {
	case keyQuit, keyQuitAlt:
		m.quitting = true
		return true, tea.Quit
	case keyCycleSort:
		m.sortOrder = m.sortOrder.Next()
		m.sortDevices()
		return true, nil
	case keyPrev, keyPrevK:
		if m.selected > 0 {
			m.selected--
		}
		return true, nil
	case keyNext, keyNextJ:
		if m.selected < len(m.devices)-1 {
			m.selected++
		}
		return true, nil
	case keyExpand:
		if len(m.devices) > 0 {
			m.view = ViewDetail
		}
		return true, nil
	}
	return false, nil
}
