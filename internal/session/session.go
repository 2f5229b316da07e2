package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nao1215/campusshield/internal/agent"
	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/extract"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/relay"
	"github.com/nao1215/campusshield/internal/store"
	"github.com/nao1215/campusshield/internal/surface"
	"golang.org/x/sync/errgroup"
)

// ErrNotRunning is returned when the session is used before Run.
var ErrNotRunning = errors.New("session is not running")

// History records terminal scan results. *store.DB implements it.
type History interface {
	SaveScan(ctx context.Context, origin string, result model.ScanResult) (int64, error)
}

// Session hosts the contexts of one document.
type Session struct {
	cfg       *config.Config
	hub       *bus.Hub
	doc       *dom.Document
	relay     *relay.Relay
	chain     extract.Chain
	positions *store.PositionStore
	history   History
	logger    *slog.Logger
	watchPath string

	surfaceOpts []surface.Option
	agentOpts   []agent.Option
	onResult    agent.ResultHook

	host    *bus.Endpoint
	relayEP *bus.Endpoint

	mu       sync.Mutex
	group    *errgroup.Group
	groupCtx context.Context
	agent    *agent.Agent
	launcher *agent.SurfaceLauncher
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the configuration. NewConfig() is used by default.
func WithConfig(cfg *config.Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithKV sets the key/value store used for panel positions.
func WithKV(kv store.KV) Option {
	return func(s *Session) {
		if kv != nil {
			s.positions = store.NewPositionStore(kv)
		}
	}
}

// WithHistory records every terminal result.
func WithHistory(h History) Option {
	return func(s *Session) {
		s.history = h
	}
}

// WithSurfaceOptions sets the options of every result panel, for example
// its display.
func WithSurfaceOptions(opts ...surface.Option) Option {
	return func(s *Session) {
		s.surfaceOpts = append(s.surfaceOpts, opts...)
	}
}

// WithAgentOptions adds options to the page agent.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(s *Session) {
		s.agentOpts = append(s.agentOpts, opts...)
	}
}

// WithResultHook registers a hook called after each terminal result.
func WithResultHook(h agent.ResultHook) Option {
	return func(s *Session) {
		s.onResult = h
	}
}

// WithWatchFile reloads the document whenever the file at path changes.
func WithWatchFile(path string) Option {
	return func(s *Session) {
		s.watchPath = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session for doc that scores requests with scorer.
func New(doc *dom.Document, scorer relay.Scorer, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:       config.NewConfig(),
		hub:       bus.NewHub(),
		doc:       doc,
		positions: store.NewPositionStore(store.NewMemory()),
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	chain, err := extract.NewChain(s.cfg.Sites)
	if err != nil {
		return nil, err
	}
	s.chain = chain
	s.relay = relay.New(scorer,
		relay.WithTimeout(s.cfg.BackendTimeout),
		relay.WithSafetyMargin(s.cfg.SafetyMargin),
		relay.WithLogger(s.logger))
	s.relayEP = s.relay.Endpoint(bus.WithLogger(s.logger))
	s.host = bus.NewEndpoint(bus.NameHost, s.handle, bus.WithLogger(s.logger))
	s.hub.Register(s.relayEP)
	s.hub.Register(s.host)
	return s, nil
}

// Hub returns the message hub. Triggers send through it.
func (s *Session) Hub() *bus.Hub {
	return s.hub
}

// Document returns the hosted document.
func (s *Session) Document() *dom.Document {
	return s.doc
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Run starts the hosting environment and the relay and blocks until ctx is
// cancelled or a context fails. Messages sent before Run are queued.
func (s *Session) Run(ctx context.Context) error {
	var watcher *dom.FileWatcher
	if s.watchPath != "" {
		w, err := dom.NewFileWatcher(s.doc, s.watchPath, dom.WithWatcherLogger(s.logger))
		if err != nil {
			return err
		}
		watcher = w
	}

	g, gctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	s.group = g
	s.groupCtx = gctx
	s.mu.Unlock()

	g.Go(func() error { return s.relayEP.Run(gctx) })
	g.Go(func() error { return s.host.Run(gctx) })

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		return nil
	})

	return g.Wait()
}

func (s *Session) handle(_ context.Context, msg bus.Message, rep *bus.Replier) {
	if msg.Kind != bus.KindActivate {
		s.logger.Warn("host ignored message", "kind", string(msg.Kind))
		return
	}
	if err := s.activate(); err != nil {
		_ = rep.Reply(bus.Ack{OK: false, Error: err.Error()})
		return
	}
	_ = rep.Reply(bus.Ack{OK: true})
}

// activate starts the page agent unless one is already resident.
func (s *Session) activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group == nil {
		return ErrNotRunning
	}
	if s.agent != nil && !s.agent.Endpoint().Closed() {
		return nil
	}

	launcher := agent.NewSurfaceLauncher(s.hub,
		append([]surface.Option{surface.WithLogger(s.logger)}, s.surfaceOpts...)...)
	opts := append([]agent.Option{
		agent.WithLauncher(launcher),
		agent.WithPositions(s.positions),
		agent.WithGeometry(s.cfg.Viewport, s.cfg.PanelSize),
		agent.WithForwardDeadline(s.cfg.ForwardDeadline()),
		agent.WithResultHook(s.recordResult),
		agent.WithLogger(s.logger),
	}, s.agentOpts...)

	a := agent.New(s.hub, s.doc, s.chain, opts...)
	s.hub.Register(a.Endpoint())
	s.agent = a
	s.launcher = launcher

	ctx := s.groupCtx
	// A page agent ends with its page; it never ends the session.
	s.group.Go(func() error {
		if err := a.Run(ctx); err != nil {
			s.logger.Warn("page agent stopped", "url", s.doc.URL(), "error", err)
		}
		return nil
	})
	s.logger.Debug("page agent activated", "url", s.doc.URL())
	return nil
}

// Deactivate tears the page agent down, as a navigation would. Requests
// pending on it fail with a closed channel.
func (s *Session) Deactivate() {
	s.mu.Lock()
	a := s.agent
	s.agent = nil
	s.launcher = nil
	s.mu.Unlock()

	if a != nil {
		s.hub.Detach(a.Endpoint())
	}
}

// Agent returns the resident page agent, if any.
func (s *Session) Agent() (*agent.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == nil || s.agent.Endpoint().Closed() {
		return nil, false
	}
	return s.agent, true
}

// Surface returns the live result panel, if any.
func (s *Session) Surface() (*surface.Surface, bool) {
	s.mu.Lock()
	l := s.launcher
	s.mu.Unlock()
	if l == nil {
		return nil, false
	}
	return l.Current()
}

// Position returns the position of the live panel, if any.
func (s *Session) Position(ctx context.Context) (model.PanelPosition, bool) {
	a, ok := s.Agent()
	if !ok {
		return model.PanelPosition{}, false
	}
	pos, ok, err := a.Position(ctx)
	if err != nil {
		return model.PanelPosition{}, false
	}
	return pos, ok
}

func (s *Session) recordResult(ctx context.Context, origin string, result model.ScanResult) {
	if s.history != nil {
		if _, err := s.history.SaveScan(ctx, origin, result); err != nil {
			s.logger.Warn("failed to record scan", "origin", origin, "error", err)
		}
	}
	if s.onResult != nil {
		s.onResult(ctx, origin, result)
	}
}
