package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/campusshield/internal/log"
)

// Handler processes one inbound message on the endpoint's loop.
// r is nil for fire-and-forget messages.
type Handler func(ctx context.Context, msg Message, r *Replier)

// task is one unit of work in a mailbox: either a delivered message or a
// posted continuation.
type task struct {
	msg     Message
	replier *Replier
	fn      func(ctx context.Context)
}

// Endpoint is a single-threaded execution context with a FIFO mailbox.
//
// Design decision: The mailbox is an unbounded slice guarded by a mutex
// rather than a buffered channel, so that senders never block and
// fire-and-forget delivery cannot deadlock two endpoints sending to each
// other.
type Endpoint struct {
	name    string
	handler Handler
	logger  *slog.Logger

	mu    sync.Mutex
	queue []task

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithLogger sets the logger used for delivery traces.
func WithLogger(logger *slog.Logger) EndpointOption {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEndpoint creates an endpoint that dispatches every message to handler.
func NewEndpoint(name string, handler Handler, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		name:    name,
		handler: handler,
		logger:  log.Discard(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the endpoint name.
func (e *Endpoint) Name() string {
	return e.name
}

// Done is closed when the endpoint has been torn down.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Closed reports whether the endpoint has been torn down.
func (e *Endpoint) Closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Close tears the endpoint down. Queued work is discarded and pending
// requests fail with ErrChannelClosed. Close is idempotent.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.mu.Lock()
		e.queue = nil
		e.mu.Unlock()
	})
}

// Post schedules fn on the endpoint's loop, after everything already queued.
// It is how asynchronous results re-enter the context.
func (e *Endpoint) Post(fn func(ctx context.Context)) error {
	return e.enqueue(task{fn: fn})
}

// Run drains the mailbox until ctx is cancelled or the endpoint is closed.
// Handlers run one at a time, in arrival order.
func (e *Endpoint) Run(ctx context.Context) error {
	defer e.Close()
	for {
		if t, ok := e.next(); ok {
			e.dispatch(ctx, t)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.done:
			return nil
		case <-e.wake:
		}
	}
}

func (e *Endpoint) dispatch(ctx context.Context, t task) {
	if t.fn != nil {
		t.fn(ctx)
		return
	}
	e.logger.Debug("message delivered",
		"endpoint", e.name,
		"kind", string(t.msg.Kind),
		"from", t.msg.From,
		"id", t.msg.ID)
	e.handler(ctx, t.msg, t.replier)
}

func (e *Endpoint) enqueue(t task) error {
	if e.Closed() {
		return ErrChannelClosed
	}
	e.mu.Lock()
	e.queue = append(e.queue, t)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Endpoint) next() (task, bool) {
	if e.Closed() {
		return task{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return task{}, false
	}
	t := e.queue[0]
	e.queue[0] = task{}
	e.queue = e.queue[1:]
	return t, true
}
