package model

// Phase is the state of the result panel.
type Phase int

const (
	// PhaseIdle is the initial state right after the panel is created.
	// It is never re-entered after the first scan starts.
	PhaseIdle Phase = iota

	// PhaseScanning means a scan-start message was the latest input.
	PhaseScanning

	// PhaseResult means a successful verdict is displayed.
	PhaseResult

	// PhaseError means a failure verdict is displayed.
	PhaseError
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseScanning:
		return "Scanning"
	case PhaseResult:
		return "Result"
	case PhaseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the phase displays a verdict.
func (p Phase) IsTerminal() bool {
	return p == PhaseResult || p == PhaseError
}
