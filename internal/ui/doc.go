// Package ui provides terminal output for orion's CLI.
//
// Everything renders through Lip Gloss so colors degrade cleanly on dumb
// terminals and when NO_COLOR is set.
//
//	Gauge      - percentage bar with green/amber/red thresholds
//	Sparkline  - compact history line for CPU, RAM and GPU series
//	Spinner    - animated status line for connect and probe steps
//	Tables     - device list and key/value blocks
//	HostPicker - ssh_config host selection for device import
//
// Threshold colors are shared by gauges and sparklines: below 60% is
// green, below 80% amber, anything higher red.
package ui
