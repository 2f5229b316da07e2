package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PanelElementID is the id of the element that hosts the result panel.
const PanelElementID = "campusshield-panel-iframe"

const panelBaseStyle = "position:fixed;z-index:2147483647;border:none;"

// panel is the agent's handle on one live result panel.
type panel struct {
	position model.PanelPosition
	closeFn  func()

	ready     chan struct{}
	readyOnce sync.Once
	gone      chan struct{}
	goneOnce  sync.Once
}

func newPanel(position model.PanelPosition) *panel {
	return &panel{
		position: position,
		ready:    make(chan struct{}),
		gone:     make(chan struct{}),
	}
}

func (p *panel) markReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *panel) stop() {
	p.goneOnce.Do(func() {
		close(p.gone)
		if p.closeFn != nil {
			p.closeFn()
		}
	})
}

// wait blocks until the panel is interaction-ready.
func (p *panel) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.ready:
		return nil
	case <-p.gone:
		return fmt.Errorf("%w: panel removed", ErrPanelNotReady)
	case <-timer.C:
		return fmt.Errorf("%w: after %s", ErrPanelNotReady, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureSurface makes sure a result panel exists and returns once it is
// interaction-ready. Concurrent callers share one pending creation, so at
// most one panel is ever created for the page.
func (a *Agent) EnsureSurface(ctx context.Context) error {
	_, err, _ := a.creating.Do("panel", func() (any, error) {
		var (
			p         *panel
			createErr error
		)
		if err := a.do(ctx, func(loopCtx context.Context) {
			if a.panel == nil {
				createErr = a.createPanel(loopCtx)
			}
			p = a.panel
		}); err != nil {
			return nil, err
		}
		if createErr != nil {
			return nil, createErr
		}
		if p == nil {
			return nil, ErrPanelNotReady
		}
		return nil, p.wait(ctx, a.readyTimeout)
	})
	return err
}

// createPanel restores the persisted position, inserts the panel element
// and launches the display surface. It runs on the agent loop.
func (a *Agent) createPanel(ctx context.Context) error {
	origin := a.doc.Origin()
	pos, _, err := a.positions.Load(ctx, origin)
	if err != nil {
		a.logger.Warn("failed to load panel position", "origin", origin, "error", err)
		pos = model.DefaultPanelPosition
	}
	pos = pos.Clamp(a.viewport, a.panelSize)

	p := newPanel(pos)
	a.doc.Mutate(func(root *html.Node) bool {
		return insertPanelElement(root, pos)
	})

	closeFn, err := a.launcher.Launch(ctx)
	if err != nil {
		a.doc.Mutate(removePanelElement)
		return fmt.Errorf("failed to launch result panel: %w", err)
	}
	p.closeFn = closeFn
	a.panel = p
	a.logger.Debug("result panel created", "origin", origin, "top", pos.Top, "right", pos.Right)
	return nil
}

// removePanel tears the panel down and removes its element. It runs on the
// agent loop.
func (a *Agent) removePanel() {
	if a.panel == nil {
		return
	}
	a.panel.stop()
	a.panel = nil
	a.dragging = false
	a.doc.Mutate(removePanelElement)
}

// restorePanelElement puts the panel element back after the document was
// reloaded underneath a live panel.
func (a *Agent) restorePanelElement() {
	if a.panel == nil {
		return
	}
	pos := a.panel.position
	a.doc.Mutate(func(root *html.Node) bool {
		return insertPanelElement(root, pos)
	})
}

func (a *Agent) dragStart() {
	if a.panel == nil {
		return
	}
	a.dragging = true
}

func (a *Agent) dragMove(d bus.Drag) {
	if a.panel == nil || !a.dragging {
		return
	}
	pos := a.panel.position.Move(d.DX, d.DY).Clamp(a.viewport, a.panelSize)
	if pos == a.panel.position {
		return
	}
	a.panel.position = pos
	a.doc.Mutate(func(root *html.Node) bool {
		el := dom.FindByID(root, PanelElementID)
		if el == nil {
			return false
		}
		dom.SetAttr(el, "style", panelStyle(pos))
		return true
	})
}

func (a *Agent) dragEnd(ctx context.Context) {
	if a.panel == nil || !a.dragging {
		return
	}
	a.dragging = false
	origin := a.doc.Origin()
	if err := a.positions.Save(ctx, origin, a.panel.position); err != nil {
		a.logger.Warn("failed to save panel position", "origin", origin, "error", err)
	}
}

// Position returns the current panel position and whether a panel exists.
func (a *Agent) Position(ctx context.Context) (model.PanelPosition, bool, error) {
	var (
		pos model.PanelPosition
		ok  bool
	)
	err := a.do(ctx, func(context.Context) {
		if a.panel != nil {
			pos, ok = a.panel.position, true
		}
	})
	return pos, ok, err
}

func panelStyle(pos model.PanelPosition) string {
	return panelBaseStyle + pos.Style()
}

func insertPanelElement(root *html.Node, pos model.PanelPosition) bool {
	if dom.FindByID(root, PanelElementID) != nil {
		return false
	}
	body := dom.Body(root)
	if body == nil {
		return false
	}
	body.AppendChild(&html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Iframe,
		Data:     "iframe",
		Attr: []html.Attribute{
			{Key: "id", Val: PanelElementID},
			{Key: "title", Val: "CampusShield scan result"},
			{Key: "style", Val: panelStyle(pos)},
		},
	})
	return true
}

func removePanelElement(root *html.Node) bool {
	el := dom.FindByID(root, PanelElementID)
	if el == nil || el.Parent == nil {
		return false
	}
	el.Parent.RemoveChild(el)
	return true
}
