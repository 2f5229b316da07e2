package surface

import (
	"github.com/nao1215/campusshield/internal/model"
)

// Region is a named area of the panel.
type Region string

// Panel regions.
const (
	RegionHeader       Region = "header"
	RegionClose        Region = "close"
	RegionDismiss      Region = "dismiss"
	RegionLearnMore    Region = "learn-more"
	RegionStatus       Region = "status"
	RegionRisk         Region = "risk"
	RegionConfidence   Region = "confidence"
	RegionExplanations Region = "explanations"
	RegionLinks        Region = "links"
)

// LearnMoreTip is shown when the learn-more control is clicked.
const LearnMoreTip = "Avoid clicking unknown links. Verify sender domain. Beware of urgency language."

// Layout is the set of regions present in the panel markup.
type Layout map[Region]bool

// DefaultLayout contains every region.
func DefaultLayout() Layout {
	return Layout{
		RegionHeader:       true,
		RegionClose:        true,
		RegionDismiss:      true,
		RegionLearnMore:    true,
		RegionStatus:       true,
		RegionRisk:         true,
		RegionConfidence:   true,
		RegionExplanations: true,
		RegionLinks:        true,
	}
}

// State is the panel state.
type State struct {
	// Phase is the current state machine phase.
	Phase model.Phase

	// LastResult is the verdict of the latest terminal message, nil while
	// Idle or Scanning.
	LastResult *model.ScanResult

	// Warning describes the latest malformed message, if any.
	Warning string

	// ShowTip is set once the learn-more control was clicked.
	ShowTip bool
}

// View is what the panel displays.
type View struct {
	Phase        model.Phase
	Status       string
	Risk         model.RiskLevel
	Confidence   string
	Explanations []string
	Links        []string
	Warning      string
	Tip          string

	// Missing lists regions the state needed but the layout lacks.
	Missing []Region
}

// Status texts.
const (
	StatusIdle     = "Ready to scan"
	StatusScanning = "Scanning email..."
	StatusResult   = "Scan complete"
	StatusError    = "Scan failed"
)

// Render computes the view for state. It has no side effects; regions
// absent from layout are skipped and reported in View.Missing.
func Render(state State, layout Layout) View {
	v := View{Phase: state.Phase, Warning: state.Warning}

	need := func(r Region) bool {
		if layout[r] {
			return true
		}
		v.Missing = append(v.Missing, r)
		return false
	}

	if need(RegionStatus) {
		switch state.Phase {
		case model.PhaseIdle:
			v.Status = StatusIdle
		case model.PhaseScanning:
			v.Status = StatusScanning
		case model.PhaseResult:
			v.Status = StatusResult
		case model.PhaseError:
			v.Status = StatusError
		}
	}

	if state.Phase.IsTerminal() && state.LastResult != nil {
		r := state.LastResult
		if need(RegionRisk) {
			v.Risk = r.RiskLevel
		}
		if need(RegionConfidence) {
			v.Confidence = r.ConfidencePercent()
		}
		if need(RegionExplanations) {
			v.Explanations = append([]string{}, r.Explanations...)
		}
		if need(RegionLinks) {
			v.Links = append([]string{}, r.SuspiciousLinks...)
		}
	}

	if state.ShowTip && need(RegionLearnMore) {
		v.Tip = LearnMoreTip
	}

	return v
}
