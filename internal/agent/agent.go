package agent

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/extract"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/store"
	"github.com/nao1215/campusshield/internal/surface"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
)

// DefaultRiskPhrases are wrapped in the document body after every scan.
var DefaultRiskPhrases = []string{
	"urgent",
	"act now",
	"immediately",
	"verify your",
	"confirm your",
	"account suspended",
	"login",
	"reset password",
	"click the link",
}

// DefaultReadyTimeout bounds the wait for a new panel to announce readiness.
const DefaultReadyTimeout = 2 * time.Second

// ResultHook observes every terminal result delivered to the panel.
type ResultHook func(ctx context.Context, origin string, result model.ScanResult)

// Agent is the page agent of one document.
type Agent struct {
	hub       *bus.Hub
	ep        *bus.Endpoint
	doc       *dom.Document
	chain     extract.Chain
	positions *store.PositionStore
	launcher  Launcher
	logger    *slog.Logger
	onResult  ResultHook

	viewport        model.Viewport
	panelSize       model.Size
	forwardDeadline time.Duration
	readyTimeout    time.Duration
	phrases         *regexp.Regexp

	creating singleflight.Group

	// Loop-owned state.
	ready    bool
	panel    *panel
	dragging bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithLauncher sets how result panels are started.
func WithLauncher(l Launcher) Option {
	return func(a *Agent) {
		if l != nil {
			a.launcher = l
		}
	}
}

// WithPositions sets the persisted panel position store.
func WithPositions(p *store.PositionStore) Option {
	return func(a *Agent) {
		if p != nil {
			a.positions = p
		}
	}
}

// WithGeometry sets the viewport and the panel size used for clamping.
func WithGeometry(viewport model.Viewport, panel model.Size) Option {
	return func(a *Agent) {
		a.viewport = viewport
		a.panelSize = panel
	}
}

// WithForwardDeadline sets how long the agent waits for the relay. It must
// cover the relay's own upper bound plus a forwarding margin.
func WithForwardDeadline(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.forwardDeadline = d
		}
	}
}

// WithReadyTimeout sets how long a new panel may take to become ready.
func WithReadyTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.readyTimeout = d
		}
	}
}

// WithRiskPhrases replaces the highlighted phrases.
func WithRiskPhrases(phrases []string) Option {
	return func(a *Agent) {
		a.phrases = dom.PhrasePattern(phrases)
	}
}

// WithResultHook registers a hook called after each terminal result.
func WithResultHook(h ResultHook) Option {
	return func(a *Agent) {
		a.onResult = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates the page agent for doc.
func New(hub *bus.Hub, doc *dom.Document, chain extract.Chain, opts ...Option) *Agent {
	a := &Agent{
		hub:             hub,
		doc:             doc,
		chain:           chain,
		positions:       store.NewPositionStore(store.NewMemory()),
		logger:          log.Discard(),
		viewport:        config.DefaultViewport,
		panelSize:       config.DefaultPanelSize,
		forwardDeadline: config.DefaultBackendTimeout + config.DefaultSafetyMargin + config.DefaultForwardMargin,
		readyTimeout:    DefaultReadyTimeout,
		phrases:         dom.PhrasePattern(DefaultRiskPhrases),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.launcher == nil {
		a.launcher = NewSurfaceLauncher(hub, surface.WithLogger(a.logger))
	}
	a.ep = bus.NewEndpoint(bus.NameAgent, a.handle, bus.WithLogger(a.logger))
	return a
}

// Endpoint returns the agent's message endpoint.
func (a *Agent) Endpoint() *bus.Endpoint {
	return a.ep
}

// Run observes the document and processes messages until ctx is cancelled
// or the endpoint is torn down. In-flight scans are cancelled on return and
// the panel is removed.
func (a *Agent) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := a.doc.Observe(func(m dom.Mutation) {
		_ = a.ep.Post(func(context.Context) {
			if m.Kind == dom.MutationReplaced {
				a.restorePanelElement()
			}
			a.recomputeReady()
		})
	})
	defer stop()

	if err := a.ep.Post(func(context.Context) { a.recomputeReady() }); err != nil {
		// Torn down before it started: the page was left during activation.
		if errors.Is(err, bus.ErrChannelClosed) {
			a.teardown()
			return nil
		}
		return err
	}

	err := a.ep.Run(runCtx)
	a.teardown()
	return err
}

func (a *Agent) handle(ctx context.Context, msg bus.Message, rep *bus.Replier) {
	switch msg.Kind {
	case bus.KindProbe:
		_ = rep.Reply(bus.ProbeReply{Ready: a.ready})

	case bus.KindTriggerScan:
		a.requestScan(ctx, rep)

	case bus.KindSurfaceReady:
		if a.panel != nil {
			a.panel.markReady()
		}

	case bus.KindDragStart:
		a.dragStart()

	case bus.KindDragMove:
		var d bus.Drag
		if err := msg.Decode(&d); err != nil {
			a.logger.Warn("malformed drag message", "error", err)
			return
		}
		a.dragMove(d)

	case bus.KindDragEnd:
		a.dragEnd(ctx)

	case bus.KindRemoveSurface:
		a.removePanel()

	default:
		a.logger.Warn("agent ignored message", "kind", string(msg.Kind))
	}
}

// recomputeReady derives readiness from the current document: the agent
// is ready once the extraction chain recognizes an opened e-mail.
func (a *Agent) recomputeReady() {
	ready := false
	a.doc.Read(func(root *html.Node) {
		ready = a.chain.Recognizes(root, a.doc.Host())
	})
	if ready != a.ready {
		a.logger.Debug("agent readiness changed", "ready", ready)
	}
	a.ready = ready
}

// do runs fn on the agent loop and waits for it to finish.
func (a *Agent) do(ctx context.Context, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	if err := a.ep.Post(func(loopCtx context.Context) {
		fn(loopCtx)
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-a.ep.Done():
		return bus.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) teardown() {
	if a.panel != nil {
		a.panel.stop()
		a.panel = nil
	}
}
