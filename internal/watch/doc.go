// Package watch is the live telemetry dashboard behind `orion watch`.
//
// It is a Bubble Tea program fed by the fleet broadcaster: every streamed
// sample arrives as a message, is pushed into a telemetry.History ring, and
// the view renders one card per device with gauges and sparklines drawn from
// that history.
//
// # Keyboard Shortcuts
//
//	q, Ctrl+C   - Quit
//	s           - Cycle sort order (name/CPU/RAM/GPU)
//	j/k, ↑/↓    - Move selection
//	Enter       - Open device detail
//	Esc         - Back to the grid
//	?           - Toggle help
//
// A device whose last sample is older than three stream intervals is shown
// as stale. It is never removed: its stream may just be slow.
package watch
