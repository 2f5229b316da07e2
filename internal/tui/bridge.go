package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nao1215/campusshield/internal/surface"
)

// statusMsg carries a trigger status change.
type statusMsg string

// viewMsg carries a rendered panel view.
type viewMsg surface.View

// Bridge forwards events from the scan contexts into the Bubble Tea loop.
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
}

// NewBridge creates a bridge buffering up to size events.
func NewBridge(size int) *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, size),
		done:   make(chan struct{}),
	}
}

// Status returns a trigger status handler.
func (b *Bridge) Status() func(string) {
	return func(s string) { b.push(statusMsg(s)) }
}

// Display returns a panel display.
func (b *Bridge) Display() surface.Display {
	return surface.DisplayFunc(func(v surface.View) { b.push(viewMsg(v)) })
}

// Close stops delivery. Pending pushes return immediately.
func (b *Bridge) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// wait returns a command that delivers the next event.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}
