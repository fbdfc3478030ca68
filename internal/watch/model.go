package watch

import (
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/orion-fleet/orion/internal/telemetry"
)

// Device is one card on the dashboard.
type Device struct {
	SessionID string
	Name      string
}

// Status is a device's freshness.
type Status int

const (
	StatusWaiting Status = iota
	StatusLive
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusStale:
		return "stale"
	default:
		return "waiting"
	}
}

const (
	tickInterval = time.Second
	staleFactor  = 3
)

type sampleMsg telemetry.Sample

type streamClosedMsg struct{}

type tickMsg time.Time

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	devices  []Device
	samples  <-chan telemetry.Sample
	history  *telemetry.History
	lastSeen map[string]time.Time
	interval time.Duration
	now      func() time.Time

	selected  int
	sortOrder SortOrder
	view      ViewMode
	showHelp  bool
	width     int
	height    int
	closed    bool
	quitting  bool
}

// NewModel builds a dashboard over devices that reads samples from ch.
// interval is the stream interval, used to decide when a device is stale.
func NewModel(devices []Device, ch <-chan telemetry.Sample, interval time.Duration, historySize int) Model {
	if interval <= 0 {
		interval = time.Second
	}
	m := Model{
		devices:  append([]Device(nil), devices...),
		samples:  ch,
		history:  telemetry.NewHistory(historySize),
		lastSeen: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
	m.sortDevices()
	m.selected = 0
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSample(m.samples), tickCmd())
}

func waitForSample(ch <-chan telemetry.Sample) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return sampleMsg(s)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sampleMsg:
		m.record(telemetry.Sample(msg))
		return m, waitForSample(m.samples)

	case streamClosedMsg:
		m.closed = true

	case tickMsg:
		// Re-render so ages and stale markers advance.
		return m, tickCmd()
	}
	return m, nil
}

func (m *Model) record(s telemetry.Sample) {
	m.history.Push(s)
	m.lastSeen[s.DeviceID] = m.now()

	if m.indexOf(s.DeviceID) < 0 {
		m.devices = append(m.devices, Device{SessionID: s.DeviceID, Name: s.DeviceID})
	}
	if m.sortOrder != SortByName {
		m.sortDevices()
	}
}

func (m Model) indexOf(sessionID string) int {
	for i, d := range m.devices {
		if d.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// StatusOf reports whether a device has sent samples recently.
func (m Model) StatusOf(sessionID string) Status {
	seen, ok := m.lastSeen[sessionID]
	if !ok {
		return StatusWaiting
	}
	if m.now().Sub(seen) > staleFactor*m.interval {
		return StatusStale
	}
	return StatusLive
}

// LiveCount returns how many devices are live.
func (m Model) LiveCount() int {
	n := 0
	for _, d := range m.devices {
		if m.StatusOf(d.SessionID) == StatusLive {
			n++
		}
	}
	return n
}

// Selected returns the highlighted device.
func (m Model) Selected() (Device, bool) {
	if m.selected < 0 || m.selected >= len(m.devices) {
		return Device{}, false
	}
	return m.devices[m.selected], true
}

// sortDevices orders cards and keeps the selection on the same device.
func (m *Model) sortDevices() {
	current, hadSelection := m.Selected()

	metric := func(d Device) float64 {
		s, ok := m.history.Latest(d.SessionID)
		if !ok {
			return -1
		}
		switch m.sortOrder {
		case SortByCPU:
			return s.CPUPercent
		case SortByRAM:
			return s.RAMPercent()
		case SortByGPU:
			if s.GPUUtil != nil {
				return *s.GPUUtil
			}
		}
		return -1
	}

	sort.SliceStable(m.devices, func(i, j int) bool {
		a, b := m.devices[i], m.devices[j]
		if m.sortOrder != SortByName {
			if va, vb := metric(a), metric(b); va != vb {
				return va > vb
			}
		}
		return a.Name < b.Name
	})

	if hadSelection {
		m.selected = m.indexOf(current.SessionID)
	}
	if m.selected < 0 {
		m.selected = 0
	}
}
