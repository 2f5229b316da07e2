package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/surface"
	"github.com/nao1215/campusshield/internal/trigger"
)

// dragStep is how far one arrow key drags the panel, in pixels.
const dragStep = 20

const panelWidth = 60

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	buttonStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 2).
			Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
)

// Host is what the model needs from the hosting environment.
type Host interface {
	// Surface returns the live result panel, if any.
	Surface() (*surface.Surface, bool)

	// Position returns the panel position, if a panel exists.
	Position(ctx context.Context) (model.PanelPosition, bool)
}

// scanDoneMsg is emitted when a click finished.
type scanDoneMsg trigger.Outcome

// Model is the watch screen.
type Model struct {
	ctx     context.Context
	page    string
	trigger *trigger.Trigger
	host    Host
	bridge  *Bridge

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	status   string
	scanning bool
	view     *surface.View
	position *model.PanelPosition
}

// NewModel creates the watch screen for page.
func NewModel(ctx context.Context, page string, t *trigger.Trigger, host Host, bridge *Bridge) *Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = statusStyle
	return &Model{
		ctx:     ctx,
		page:    page,
		trigger: t,
		host:    host,
		bridge:  bridge,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: sp,
	}
}

// Init starts listening for context events.
func (m *Model) Init() tea.Cmd {
	return m.bridge.wait()
}

// Update handles keys and context events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = string(msg)
		return m, m.bridge.wait()

	case viewMsg:
		v := surface.View(msg)
		m.view = &v
		return m, m.bridge.wait()

	case scanDoneMsg:
		m.scanning = false
		return m, nil

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case positionMsg:
		pos := model.PanelPosition(msg)
		m.position = &pos
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Scan):
		if m.scanning || !m.trigger.Control().Enabled() {
			return m, nil
		}
		m.scanning = true
		t, ctx := m.trigger, m.ctx
		scan := func() tea.Msg {
			return scanDoneMsg(t.InitiateScan(ctx))
		}
		return m, tea.Batch(scan, m.spinner.Tick)

	case key.Matches(msg, m.keys.Up):
		return m, m.drag(0, -dragStep)
	case key.Matches(msg, m.keys.Down):
		return m, m.drag(0, dragStep)
	case key.Matches(msg, m.keys.Left):
		return m, m.drag(-dragStep, 0)
	case key.Matches(msg, m.keys.Right):
		return m, m.drag(dragStep, 0)

	case key.Matches(msg, m.keys.Close):
		m.click(surface.RegionClose)
	case key.Matches(msg, m.keys.Dismiss):
		m.click(surface.RegionDismiss)
	case key.Matches(msg, m.keys.Learn):
		m.click(surface.RegionLearnMore)
	}
	return m, nil
}

// drag performs one complete header drag by (dx, dy) and refreshes the
// shown position.
func (m *Model) drag(dx, dy float64) tea.Cmd {
	s, ok := m.host.Surface()
	if !ok {
		return nil
	}
	s.PointerDown(surface.RegionHeader, 0, 0)
	s.PointerMove(dx, dy)
	s.PointerUp()

	host, ctx := m.host, m.ctx
	return func() tea.Msg {
		pos, ok := host.Position(ctx)
		if !ok {
			return nil
		}
		return positionMsg(pos)
	}
}

// positionMsg carries the panel position after a drag.
type positionMsg model.PanelPosition

func (m *Model) click(region surface.Region) {
	s, ok := m.host.Surface()
	if !ok {
		return
	}
	s.Click(region)
	if region == surface.RegionClose || region == surface.RegionDismiss {
		m.view = nil
		m.position = nil
	}
}

// View renders the screen.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("CampusShield watch"))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.page))
	b.WriteString("\n\n")

	if m.scanning {
		b.WriteString(disabledStyle.Render("[ Scan email ]"))
		b.WriteString(" ")
		b.WriteString(m.spinner.View())
	} else {
		b.WriteString(buttonStyle.Render("Scan email"))
	}
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.view != nil {
		b.WriteString(surface.PanelText(*m.view, panelWidth))
		b.WriteString("\n")
		if m.position != nil {
			b.WriteString(helpStyle.Render(fmt.Sprintf("panel at top %.0fpx, right %.0fpx", m.position.Top, m.position.Right)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}
