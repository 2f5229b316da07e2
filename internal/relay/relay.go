package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/model"
)

// errPrimaryTimeout is the cancellation cause set by the primary timer.
var errPrimaryTimeout = errors.New("primary timer fired")

// errCompleted is the cancellation cause set once a reply was delivered.
var errCompleted = errors.New("request completed")

// Relay forwards requests to a Scorer under the primary and safety timers.
type Relay struct {
	scorer       Scorer
	timeout      time.Duration
	safetyMargin time.Duration
	logger       *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithTimeout sets the primary abort timer.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSafetyMargin sets how long after the primary timer the safety timer fires.
func WithSafetyMargin(d time.Duration) Option {
	return func(r *Relay) {
		if d >= 0 {
			r.safetyMargin = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a relay in front of scorer.
func New(scorer Scorer, opts ...Option) *Relay {
	r := &Relay{
		scorer:       scorer,
		timeout:      config.DefaultBackendTimeout,
		safetyMargin: config.DefaultSafetyMargin,
		logger:       log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the primary timer duration.
func (r *Relay) Timeout() time.Duration {
	return r.timeout
}

// Deadline returns the upper bound for any reply: primary plus safety margin.
func (r *Relay) Deadline() time.Duration {
	return r.timeout + r.safetyMargin
}

// RequestState is the bookkeeping of one in-flight request.
type RequestState struct {
	// ID correlates log lines of one request.
	ID string

	sent    atomic.Bool
	deliver func(model.ScanResult)
	cancel  context.CancelCauseFunc
	done    chan struct{}

	timersMu sync.Mutex
	primary  *time.Timer
	safety   *time.Timer
}

// Sent reports whether the reply was delivered.
func (s *RequestState) Sent() bool {
	return s.sent.Load()
}

// Done is closed once the reply was delivered.
func (s *RequestState) Done() <-chan struct{} {
	return s.done
}

// complete delivers result if no other branch did so before.
// It reports whether this call won.
func (s *RequestState) complete(result model.ScanResult) bool {
	if !s.sent.CompareAndSwap(false, true) {
		return false
	}
	s.timersMu.Lock()
	s.primary.Stop()
	s.safety.Stop()
	s.timersMu.Unlock()
	s.cancel(errCompleted)
	s.deliver(result)
	close(s.done)
	return true
}

// Start forwards req without blocking and calls deliver exactly once with
// the reply, at the latest when the safety timer fires.
func (r *Relay) Start(ctx context.Context, req model.ScanRequest, deliver func(model.ScanResult)) *RequestState {
	callCtx, cancel := context.WithCancelCause(ctx)
	state := &RequestState{
		ID:      uuid.NewString(),
		deliver: deliver,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	logger := r.logger.With("request", state.ID)

	// Timers exist before any branch can complete.
	state.timersMu.Lock()
	state.primary = time.AfterFunc(r.timeout, func() {
		logger.Debug("primary timer fired, cancelling backend call", "timeout", r.timeout)
		cancel(errPrimaryTimeout)
	})
	state.safety = time.AfterFunc(r.Deadline(), func() {
		err := fmt.Errorf("%w: no backend reply within %s", model.ErrTimeout, r.Deadline())
		if state.complete(model.ErrorResult(err)) {
			logger.Warn("safety timer replied", "deadline", r.Deadline())
		}
	})
	state.timersMu.Unlock()

	go func() {
		result, err := r.scorer.Score(callCtx, req)
		if err == nil {
			if state.complete(result.Normalize()) {
				logger.Debug("backend replied", "risk", result.RiskLevel.String())
			}
			return
		}

		if errors.Is(context.Cause(callCtx), errPrimaryTimeout) {
			err = fmt.Errorf("%w: backend timeout after %s", model.ErrTimeout, r.timeout)
		}
		if state.complete(model.ErrorResult(err)) {
			logger.Warn("backend call failed", "error", err)
		}
	}()

	return state
}

// Forward sends req and blocks until the single reply is available.
// It never returns an error: failures are Error-risk results.
func (r *Relay) Forward(ctx context.Context, req model.ScanRequest) model.ScanResult {
	ch := make(chan model.ScanResult, 1)
	r.Start(ctx, req, func(result model.ScanResult) {
		ch <- result
	})
	return <-ch
}
