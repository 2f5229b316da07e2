// Package trigger implements the trigger surface: the user-facing control
// that starts a scan cycle and reports its progress as a status string.
//
// A click probes the page agent. When the agent is not resident and the
// page is supported, the trigger activates it once, waits a short settle
// delay and probes again. It then sends the scan request and waits only
// for the acknowledgement; the verdict itself is shown by the result panel.
package trigger
