// Package tui is the interactive trigger surface of the watch command.
//
// It shows the scan control with its status text and, once a panel exists,
// the rendered result panel. Keys drive the panel the way a pointer would:
// arrows drag the header, c closes, d dismisses and l reveals the tip.
package tui
