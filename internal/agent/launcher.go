package agent

import (
	"context"
	"sync"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/surface"
)

// Launcher starts a display surface for the page and returns a function
// that tears it down.
type Launcher interface {
	Launch(ctx context.Context) (stop func(), err error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (func(), error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context) (func(), error) { return f(ctx) }

// SurfaceLauncher runs a surface.Surface on the hub.
type SurfaceLauncher struct {
	hub  *bus.Hub
	opts []surface.Option

	mu      sync.Mutex
	current *surface.Surface
}

// NewSurfaceLauncher creates a launcher whose panels are built with opts.
func NewSurfaceLauncher(hub *bus.Hub, opts ...surface.Option) *SurfaceLauncher {
	return &SurfaceLauncher{hub: hub, opts: opts}
}

// Launch registers a fresh surface and runs it until stop is called or ctx
// is cancelled.
func (l *SurfaceLauncher) Launch(ctx context.Context) (func(), error) {
	s := surface.New(l.hub, l.opts...)
	ep := s.Endpoint()
	l.hub.Register(ep)

	l.mu.Lock()
	l.current = s
	l.mu.Unlock()

	go func() {
		_ = s.Run(ctx)
		l.hub.Detach(ep)
	}()

	return func() {
		l.hub.Detach(ep)
		l.mu.Lock()
		if l.current == s {
			l.current = nil
		}
		l.mu.Unlock()
	}, nil
}

// Current returns the live surface, if any.
func (l *SurfaceLauncher) Current() (*surface.Surface, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current, l.current != nil
}
