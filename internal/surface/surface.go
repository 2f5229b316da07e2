package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/model"
)

// Display receives every rendered view.
type Display interface {
	Show(View)
}

// DisplayFunc adapts a function to the Display interface.
type DisplayFunc func(View)

// Show implements Display.
func (f DisplayFunc) Show(v View) { f(v) }

// Surface is the result panel context.
type Surface struct {
	hub     *bus.Hub
	ep      *bus.Endpoint
	display Display
	layout  Layout
	logger  *slog.Logger

	// Loop-owned state.
	state    State
	dragging bool
	lastX    float64
	lastY    float64
}

// Option configures a Surface.
type Option func(*Surface)

// WithDisplay sets the view sink.
func WithDisplay(d Display) Option {
	return func(s *Surface) {
		if d != nil {
			s.display = d
		}
	}
}

// WithLayout sets the regions present in the panel.
func WithLayout(l Layout) Option {
	return func(s *Surface) {
		if l != nil {
			s.layout = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Surface) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a panel in the Idle phase. It is reachable once its endpoint
// is registered and running.
func New(hub *bus.Hub, opts ...Option) *Surface {
	s := &Surface{
		hub:     hub,
		display: DisplayFunc(func(View) {}),
		layout:  DefaultLayout(),
		logger:  log.Discard(),
		state:   State{Phase: model.PhaseIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ep = bus.NewEndpoint(bus.NameSurface, s.handle, bus.WithLogger(s.logger))
	return s
}

// Endpoint returns the panel's message endpoint.
func (s *Surface) Endpoint() *bus.Endpoint {
	return s.ep
}

// Run renders the initial view, announces readiness to the page agent and
// processes messages until ctx is cancelled or the panel is removed.
func (s *Surface) Run(ctx context.Context) error {
	if err := s.ep.Post(func(ctx context.Context) {
		s.render()
		s.send(ctx, bus.KindSurfaceReady, nil)
	}); err != nil {
		return err
	}
	return s.ep.Run(ctx)
}

func (s *Surface) handle(_ context.Context, msg bus.Message, _ *bus.Replier) {
	switch msg.Kind {
	case bus.KindScanStart:
		s.state.Phase = model.PhaseScanning
		s.state.LastResult = nil
		s.state.Warning = ""

	case bus.KindScanResult, bus.KindScanError:
		result, err := model.DecodeScanResult(msg.Payload)
		if err != nil {
			s.logger.Warn("malformed panel message", "kind", string(msg.Kind), "error", err)
			s.state.Warning = err.Error()
			switch {
			case msg.Kind == bus.KindScanError:
				result = model.ErrorResult(errors.New("scan failed: malformed error report"))
			case s.awaitingTerminal():
				// The cycle still needs its terminal view.
				result = model.ErrorResult(fmt.Errorf("scan failed: malformed result: %w", err))
			default:
				s.render()
				return
			}
		} else {
			s.state.Warning = ""
		}
		s.state.LastResult = &result
		s.state.Phase = model.PhaseResult
		if msg.Kind == bus.KindScanError || result.IsError() {
			s.state.Phase = model.PhaseError
		}

	default:
		s.logger.Warn("panel ignored message", "kind", string(msg.Kind))
		return
	}
	s.render()
}

// awaitingTerminal reports whether the current cycle has no terminal view yet.
func (s *Surface) awaitingTerminal() bool {
	return s.state.Phase == model.PhaseIdle || s.state.Phase == model.PhaseScanning
}

func (s *Surface) render() {
	v := Render(s.state, s.layout)
	for _, r := range v.Missing {
		s.logger.Warn("panel region missing", "region", string(r))
	}
	s.display.Show(v)
}

// State returns a snapshot of the panel state. It is safe to call from any
// goroutine; it waits for the panel loop.
func (s *Surface) State(ctx context.Context) (State, error) {
	ch := make(chan State, 1)
	if err := s.ep.Post(func(context.Context) { ch <- s.state }); err != nil {
		return State{}, err
	}
	select {
	case st := <-ch:
		return st, nil
	case <-s.ep.Done():
		return State{}, bus.ErrChannelClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (s *Surface) send(ctx context.Context, kind bus.Kind, payload any) {
	msg, err := bus.NewMessage(bus.NameSurface, kind, payload)
	if err == nil {
		err = s.hub.Send(ctx, bus.NameAgent, msg)
	}
	if err != nil {
		s.logger.Warn("panel message not delivered", "kind", string(kind), "error", err)
	}
}
