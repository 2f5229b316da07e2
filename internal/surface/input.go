package surface

import (
	"context"

	"github.com/nao1215/campusshield/internal/bus"
)

// Pointer and click input. Every method schedules the input on the panel
// loop and returns immediately.

// PointerDown starts a drag when it lands on the header. Presses on any
// other region, including the close control, never start a drag.
func (s *Surface) PointerDown(region Region, x, y float64) {
	s.post(func(ctx context.Context) {
		if region != RegionHeader {
			return
		}
		s.dragging = true
		s.lastX, s.lastY = x, y
		s.send(ctx, bus.KindDragStart, nil)
	})
}

// PointerMove forwards the delta since the previous pointer position while
// a drag is active.
func (s *Surface) PointerMove(x, y float64) {
	s.post(func(ctx context.Context) {
		if !s.dragging {
			return
		}
		d := bus.Drag{DX: x - s.lastX, DY: y - s.lastY}
		s.lastX, s.lastY = x, y
		if d.DX == 0 && d.DY == 0 {
			return
		}
		s.send(ctx, bus.KindDragMove, d)
	})
}

// PointerUp ends an active drag.
func (s *Surface) PointerUp() {
	s.post(func(ctx context.Context) {
		if !s.dragging {
			return
		}
		s.dragging = false
		s.send(ctx, bus.KindDragEnd, nil)
	})
}

// Click activates a control. Close and dismiss ask the page agent to remove
// the panel; learn-more reveals the safety tip.
func (s *Surface) Click(region Region) {
	s.post(func(ctx context.Context) {
		switch region {
		case RegionClose, RegionDismiss:
			s.send(ctx, bus.KindRemoveSurface, nil)
		case RegionLearnMore:
			s.state.ShowTip = true
			s.render()
		}
	})
}

func (s *Surface) post(fn func(ctx context.Context)) {
	if err := s.ep.Post(fn); err != nil {
		s.logger.Debug("panel input dropped", "error", err)
	}
}
