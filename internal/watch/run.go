package watch

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/orion-fleet/orion/internal/telemetry"
)

// Source delivers streamed samples. *fleet.Service implements it.
type Source interface {
	Subscribe(buffer int) (<-chan telemetry.Sample, func())
}

// Options configures Run.
type Options struct {
	Interval    time.Duration
	HistorySize int
	Buffer      int
	Input       io.Reader
	Output      io.Writer
}

// Run shows the dashboard until the user quits. It subscribes to src for
// the lifetime of the program.
func Run(src Source, devices []Device, opts Options) error {
	ch, cancel := src.Subscribe(opts.Buffer)
	defer cancel()

	progOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}

	model := NewModel(devices, ch, opts.Interval, opts.HistorySize)
	if _, err := tea.NewProgram(model, progOpts...).Run(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
