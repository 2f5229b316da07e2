package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/log"
)

// Status texts shown next to the control.
const (
	StatusScanning      = "Scanning..."
	StatusInitializing  = "Initializing..."
	StatusNotEmailPage  = "Not an email page. Open an email to scan."
	StatusInitFailed    = "Failed to initialize on this page."
	StatusRetry         = "Initializing... Please try again."
	StatusScanRequested = "Scan requested. Check the panel on the page."
	statusErrorPrefix   = "Error: "
	defaultErrorMessage = "Scan failed"
)

// Outcome is the result of one click.
type Outcome struct {
	// Status is the terminal status text.
	Status string

	// Requested is set when the page agent acknowledged the scan request.
	Requested bool

	// Activated is set when an activation attempt was made.
	Activated bool

	// Ignored is set when the click arrived while the control was disabled.
	Ignored bool
}

// Trigger is the trigger surface of one page.
type Trigger struct {
	hub            *bus.Hub
	pageURL        string
	supported      []string
	settleDelay    time.Duration
	probeTimeout   time.Duration
	statusDuration time.Duration
	onStatus       func(string)
	logger         *slog.Logger

	control *Control

	mu         sync.Mutex
	status     string
	generation uint64
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithSupportedPages sets the URL patterns of pages that can be activated.
func WithSupportedPages(patterns []string) Option {
	return func(t *Trigger) {
		t.supported = patterns
	}
}

// WithTimings sets the settle delay after activation, the probe timeout and
// how long a terminal status stays visible.
func WithTimings(settle, probe, display time.Duration) Option {
	return func(t *Trigger) {
		if settle > 0 {
			t.settleDelay = settle
		}
		if probe > 0 {
			t.probeTimeout = probe
		}
		if display > 0 {
			t.statusDuration = display
		}
	}
}

// WithStatusHandler registers fn to be called on every status change.
// An empty string means the status was cleared.
func WithStatusHandler(fn func(string)) Option {
	return func(t *Trigger) {
		t.onStatus = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trigger) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates the trigger for the page at pageURL.
func New(hub *bus.Hub, pageURL string, opts ...Option) *Trigger {
	t := &Trigger{
		hub:            hub,
		pageURL:        pageURL,
		supported:      config.DefaultSupportedPages,
		settleDelay:    config.DefaultSettleDelay,
		probeTimeout:   config.DefaultProbeTimeout,
		statusDuration: config.DefaultStatusDuration,
		logger:         log.Discard(),
		control:        &Control{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Control returns the scan control.
func (t *Trigger) Control() *Control {
	return t.control
}

// Status returns the current status text.
func (t *Trigger) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// InitiateScan runs one click. It never fails: every outcome is a status
// string. The control is re-enabled exactly once before it returns, and
// the terminal status is cleared after the display duration.
func (t *Trigger) InitiateScan(ctx context.Context) Outcome {
	release, ok := t.control.Acquire()
	if !ok {
		return Outcome{Status: t.Status(), Ignored: true}
	}
	defer release()

	t.setStatus(StatusScanning)
	out := t.run(ctx)
	gen := t.setStatus(out.Status)
	time.AfterFunc(t.statusDuration, func() { t.clearStatus(gen) })

	t.logger.Debug("scan click finished",
		"status", out.Status,
		"requested", out.Requested,
		"activated", out.Activated)
	return out
}

func (t *Trigger) run(ctx context.Context) Outcome {
	supported := config.IsSupportedPage(t.pageURL, t.supported)

	ready, err := t.probe(ctx)
	if errors.Is(err, bus.ErrUnreachable) {
		if !supported {
			return Outcome{Status: StatusNotEmailPage}
		}
		t.setStatus(StatusInitializing)
		if err := t.activate(ctx); err != nil {
			t.logger.Warn("activation failed", "url", t.pageURL, "error", err)
			return Outcome{Status: StatusInitFailed, Activated: true}
		}
		if !sleep(ctx, t.settleDelay) {
			return Outcome{Status: StatusInitFailed, Activated: true}
		}
		ready, err = t.probe(ctx)
		if err == nil && ready {
			return t.requestScan(ctx, true)
		}
		return Outcome{Status: t.notReadyStatus(supported), Activated: true}
	}
	if err != nil || !ready {
		if err != nil {
			t.logger.Warn("probe failed", "url", t.pageURL, "error", err)
		}
		return Outcome{Status: t.notReadyStatus(supported)}
	}
	return t.requestScan(ctx, false)
}

func (t *Trigger) notReadyStatus(supported bool) string {
	if supported {
		return StatusRetry
	}
	return StatusNotEmailPage
}

func (t *Trigger) probe(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	reply, err := t.hub.Request(ctx, bus.NameAgent, bus.MustMessage(bus.NameTrigger, bus.KindProbe, nil))
	if err != nil {
		return false, err
	}
	var pr bus.ProbeReply
	if err := reply.Decode(&pr); err != nil {
		return false, err
	}
	return pr.Ready, nil
}

func (t *Trigger) activate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	reply, err := t.hub.Request(ctx, bus.NameHost, bus.MustMessage(bus.NameTrigger, bus.KindActivate, nil))
	if err != nil {
		return err
	}
	var ack bus.Ack
	if err := reply.Decode(&ack); err != nil {
		return err
	}
	if !ack.OK {
		return errors.New(ack.Error)
	}
	return nil
}

func (t *Trigger) requestScan(ctx context.Context, activated bool) Outcome {
	reply, err := t.hub.Request(ctx, bus.NameAgent, bus.MustMessage(bus.NameTrigger, bus.KindTriggerScan, nil))
	if err != nil {
		return Outcome{Status: statusErrorPrefix + err.Error(), Activated: activated}
	}
	var ack bus.Ack
	if err := reply.Decode(&ack); err != nil {
		return Outcome{Status: statusErrorPrefix + err.Error(), Activated: activated}
	}
	if !ack.OK {
		msg := ack.Error
		if msg == "" {
			msg = defaultErrorMessage
		}
		return Outcome{Status: statusErrorPrefix + msg, Activated: activated}
	}
	return Outcome{Status: StatusScanRequested, Requested: true, Activated: activated}
}

// setStatus publishes text and returns its generation.
func (t *Trigger) setStatus(text string) uint64 {
	t.mu.Lock()
	t.status = text
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	if t.onStatus != nil {
		t.onStatus(text)
	}
	return gen
}

// clearStatus clears the status unless a newer one replaced it.
func (t *Trigger) clearStatus(gen uint64) {
	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		return
	}
	t.status = ""
	t.generation++
	t.mu.Unlock()

	if t.onStatus != nil {
		t.onStatus("")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
