package surface

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nao1215/campusshield/internal/model"
)

var (
	colorPrimary = lipgloss.Color("62")
	colorMuted   = lipgloss.Color("240")
	colorBorder  = lipgloss.Color("238")
	colorHigh    = lipgloss.Color("196")
	colorMedium  = lipgloss.Color("214")
	colorLow     = lipgloss.Color("42")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headingStyle = lipgloss.NewStyle().Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorMedium)
)

// riskStyle returns the label style for a risk level.
func riskStyle(r model.RiskLevel) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch r {
	case model.RiskHigh, model.RiskError:
		return style.Foreground(colorHigh)
	case model.RiskMedium:
		return style.Foreground(colorMedium)
	case model.RiskLow:
		return style.Foreground(colorLow)
	default:
		return style.Foreground(colorMuted)
	}
}

// PanelText renders a view as a bordered terminal panel of the given width.
func PanelText(v View, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CampusShield"))
	b.WriteString("\n")
	if v.Status != "" {
		b.WriteString(mutedStyle.Render(v.Status))
		b.WriteString("\n")
	}

	if v.Risk != "" {
		b.WriteString("\nRisk: ")
		b.WriteString(riskStyle(v.Risk).Render(v.Risk.String()))
		b.WriteString("\n")
	}
	if v.Confidence != "" {
		fmt.Fprintf(&b, "Confidence: %s\n", v.Confidence)
	}
	if len(v.Explanations) > 0 {
		b.WriteString("\n")
		b.WriteString(headingStyle.Render("Why we flagged this"))
		b.WriteString("\n")
		for _, e := range v.Explanations {
			fmt.Fprintf(&b, "• %s\n", e)
		}
	}
	if len(v.Links) > 0 {
		b.WriteString("\n")
		b.WriteString(headingStyle.Render("Suspicious links"))
		b.WriteString("\n")
		for _, l := range v.Links {
			fmt.Fprintf(&b, "• %s\n", l)
		}
	}
	if v.Warning != "" {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render("⚠ " + v.Warning))
		b.WriteString("\n")
	}
	if v.Tip != "" {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(v.Tip))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("[close] [dismiss] [learn more]"))

	style := panelStyle
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(b.String())
}

// TextPanel writes every view to w as a lipgloss panel.
type TextPanel struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

// NewTextPanel creates a terminal display. A width of 0 sizes the panel to
// its content.
func NewTextPanel(w io.Writer, width int) *TextPanel {
	return &TextPanel{w: w, width: width}
}

// Show implements Display.
func (p *TextPanel) Show(v View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, PanelText(v, p.width))
}

// Recorder keeps every view it is shown so callers can wait for a
// terminal view.
type Recorder struct {
	mu     sync.Mutex
	views  []View
	notify chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{})}
}

// Show implements Display.
func (r *Recorder) Show(v View) {
	r.mu.Lock()
	r.views = append(r.views, v)
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
}

// Views returns a copy of every recorded view.
func (r *Recorder) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

// Last returns the latest view and whether any exists.
func (r *Recorder) Last() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}, false
	}
	return r.views[len(r.views)-1], true
}

// WaitFor blocks until a view satisfying match is recorded or timeout
// elapses. Views recorded before the call are considered too.
func (r *Recorder) WaitFor(match func(View) bool, timeout time.Duration) (View, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	seen := 0
	for {
		r.mu.Lock()
		views := r.views[seen:]
		seen = len(r.views)
		notify := r.notify
		r.mu.Unlock()

		for _, v := range views {
			if match(v) {
				return v, true
			}
		}

		select {
		case <-notify:
		case <-deadline.C:
			return View{}, false
		}
	}
}

// Terminal matches views in the Result or Error phase.
func Terminal(v View) bool {
	return v.Phase.IsTerminal()
}
