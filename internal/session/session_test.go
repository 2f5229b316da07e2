package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/relay"
	"github.com/nao1215/campusshield/internal/store"
	"github.com/nao1215/campusshield/internal/surface"
	"github.com/nao1215/campusshield/internal/trigger"
)

const fixture = `<!DOCTYPE html>
<html><body>
  <div class="sender">a@b.com</div>
  <div class="subject">S</div>
  <div class="body">Please review <a href="http://evil.com/x">this document</a>.</div>
</body></html>`

const pageURL = "http://localhost:8000/mock_email.html"

// echoBackend answers every scan with the request fields it received.
func echoBackend(t *testing.T, got chan<- model.ScanRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got <- req
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"risk_level":       "High",
			"confidence_score": 0.92,
			"explanations":     []string{"sender " + req.Sender, "subject " + req.Subject},
			"suspicious_links": req.Links,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func scaledConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.BackendTimeout = 150 * time.Millisecond
	cfg.SafetyMargin = 50 * time.Millisecond
	cfg.ForwardMargin = 50 * time.Millisecond
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.ProbeTimeout = 200 * time.Millisecond
	cfg.StatusDuration = 50 * time.Millisecond
	return cfg
}

// startSession runs a session over the fixture scoring with scorer.
func startSession(t *testing.T, scorer relay.Scorer, opts ...Option) (*Session, *surface.Recorder) {
	t.Helper()

	doc, err := dom.ParseString(fixture, pageURL)
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	rec := surface.NewRecorder()
	base := []Option{WithConfig(scaledConfig()), WithSurfaceOptions(surface.WithDisplay(rec))}
	s, err := New(doc, scorer, append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("session returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return s, rec
}

func newTrigger(s *Session) *trigger.Trigger {
	cfg := s.Config()
	return trigger.New(s.Hub(), s.Document().URL(),
		trigger.WithSupportedPages(cfg.SupportedPages),
		trigger.WithTimings(cfg.SettleDelay, cfg.ProbeTimeout, cfg.StatusDuration))
}

func activate(t *testing.T, s *Session) bus.Ack {
	t.Helper()
	reply, err := s.Hub().Request(context.Background(), bus.NameHost, bus.MustMessage(bus.NameTrigger, bus.KindActivate, nil))
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	var ack bus.Ack
	if err := reply.Decode(&ack); err != nil {
		t.Fatalf("bad ack: %v", err)
	}
	return ack
}

// TestRoundTrip tests that extracted fields survive the trip to the
// backend and back to the panel unchanged.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	got := make(chan model.ScanRequest, 1)
	srv := echoBackend(t, got)
	s, rec := startSession(t, relay.NewHTTPScorer(srv.URL))

	out := newTrigger(s).InitiateScan(context.Background())
	if !out.Requested || !out.Activated {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Status != trigger.StatusScanRequested {
		t.Errorf("unexpected status: %q", out.Status)
	}

	select {
	case req := <-got:
		want := model.ScanRequest{Sender: "a@b.com", Subject: "S", Body: req.Body, Links: []string{"http://evil.com/x"}}
		if req.Sender != want.Sender || req.Subject != want.Subject || !slices.Equal(req.Links, want.Links) {
			t.Errorf("backend received %+v", req)
		}
	case <-time.After(time.Second):
		t.Fatal("backend never called")
	}

	v, ok := rec.WaitFor(surface.Terminal, time.Second)
	if !ok {
		t.Fatalf("no terminal view: %+v", rec.Views())
	}
	if v.Risk != model.RiskHigh || v.Confidence != "92%" {
		t.Errorf("unexpected verdict: %+v", v)
	}
	if !slices.Equal(v.Explanations, []string{"sender a@b.com", "subject S"}) {
		t.Errorf("unexpected explanations: %v", v.Explanations)
	}
	if !slices.Equal(v.Links, []string{"http://evil.com/x"}) {
		t.Errorf("unexpected links: %v", v.Links)
	}
}

// TestBackendTimeout tests that a silent backend ends in an Error view
// mentioning the timeout within the relay's upper bound.
func TestBackendTimeout(t *testing.T) {
	t.Parallel()

	hang := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-hang:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	// Cleanups run last-in first-out: release the handler before Close.
	t.Cleanup(func() { close(hang) })

	s, rec := startSession(t, relay.NewHTTPScorer(srv.URL))
	cfg := s.Config()

	start := time.Now()
	out := newTrigger(s).InitiateScan(context.Background())
	if !out.Requested {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	v, ok := rec.WaitFor(surface.Terminal, cfg.ForwardDeadline()+time.Second)
	if !ok {
		t.Fatalf("no terminal view: %+v", rec.Views())
	}
	if elapsed := time.Since(start); elapsed > cfg.RelayDeadline()+cfg.ForwardMargin+cfg.SettleDelay+200*time.Millisecond {
		t.Errorf("terminal view after %s", elapsed)
	}
	if v.Phase != model.PhaseError || v.Risk != model.RiskError {
		t.Errorf("expected Error view, got %+v", v)
	}
	if !strings.Contains(strings.Join(v.Explanations, " "), "timeout") {
		t.Errorf("explanation does not mention timeout: %v", v.Explanations)
	}
}

// TestActivateIdempotent tests that repeated activation keeps one agent.
func TestActivateIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := startSession(t, relay.ScorerFunc(func(context.Context, model.ScanRequest) (model.ScanResult, error) {
		return model.ScanResult{RiskLevel: model.RiskLow}, nil
	}))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := s.Hub().Request(context.Background(), bus.NameHost, bus.MustMessage(bus.NameTrigger, bus.KindActivate, nil))
			if err != nil {
				t.Errorf("activate failed: %v", err)
				return
			}
			var ack bus.Ack
			if err := reply.Decode(&ack); err != nil || !ack.OK {
				t.Errorf("activation rejected: %+v %v", ack, err)
			}
		}()
	}
	wg.Wait()

	first, ok := s.Agent()
	if !ok {
		t.Fatal("no agent after activation")
	}
	activate(t, s)
	second, _ := s.Agent()
	if first != second {
		t.Error("activation replaced the resident agent")
	}
}

// TestDeactivate tests that a torn-down agent is unreachable and can be
// activated again.
func TestDeactivate(t *testing.T) {
	t.Parallel()

	s, _ := startSession(t, relay.ScorerFunc(func(context.Context, model.ScanRequest) (model.ScanResult, error) {
		return model.ScanResult{RiskLevel: model.RiskLow}, nil
	}))
	activate(t, s)
	s.Deactivate()

	_, err := s.Hub().Request(context.Background(), bus.NameAgent, bus.MustMessage(bus.NameTrigger, bus.KindProbe, nil))
	if !errors.Is(err, bus.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	out := newTrigger(s).InitiateScan(context.Background())
	if !out.Activated || !out.Requested {
		t.Errorf("expected re-activation, got %+v", out)
	}
}

// TestDeactivateRightAfterActivation tests that leaving the page while the
// agent is still starting never stops the hosting environment.
func TestDeactivateRightAfterActivation(t *testing.T) {
	t.Parallel()

	s, _ := startSession(t, relay.ScorerFunc(func(context.Context, model.ScanRequest) (model.ScanResult, error) {
		return model.ScanResult{RiskLevel: model.RiskLow}, nil
	}))

	for i := range 3 {
		if ack := activate(t, s); !ack.OK {
			t.Fatalf("iteration %d: activation rejected: %+v", i, ack)
		}
		s.Deactivate()
		time.Sleep(20 * time.Millisecond)
	}

	out := newTrigger(s).InitiateScan(context.Background())
	if !out.Activated || !out.Requested {
		t.Errorf("session stopped serving after navigation: %+v", out)
	}
}

// TestDeactivateDuringScan tests that tearing the agent down mid-scan still
// leaves the trigger with a terminal status.
func TestDeactivateDuringScan(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	s, _ := startSession(t, relay.ScorerFunc(func(ctx context.Context, _ model.ScanRequest) (model.ScanResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		return model.ScanResult{}, ctx.Err()
	}))

	tr := newTrigger(s)
	out := tr.InitiateScan(context.Background())
	if !out.Requested {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	<-started
	s.Deactivate()

	if _, ok := s.Surface(); ok {
		t.Error("surface survived agent teardown")
	}
	if !tr.Control().Enabled() {
		t.Error("control left disabled")
	}
}

// TestHistory tests that terminal results are recorded.
func TestHistory(t *testing.T) {
	t.Parallel()

	db, err := store.Open(t.TempDir(), store.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, rec := startSession(t, relay.ScorerFunc(func(context.Context, model.ScanRequest) (model.ScanResult, error) {
		return model.ScanResult{RiskLevel: model.RiskMedium, ConfidenceScore: 0.5}, nil
	}), WithKV(db), WithHistory(db))

	newTrigger(s).InitiateScan(context.Background())
	if _, ok := rec.WaitFor(surface.Terminal, time.Second); !ok {
		t.Fatal("no terminal view")
	}

	deadline := time.Now().Add(time.Second)
	for {
		records, err := db.ListScans(context.Background(), 10)
		if err != nil {
			t.Fatalf("failed to list scans: %v", err)
		}
		if len(records) == 1 {
			if records[0].Result.RiskLevel != model.RiskMedium {
				t.Errorf("unexpected record: %+v", records[0])
			}
			if records[0].Origin != "http://localhost:8000" {
				t.Errorf("unexpected origin: %q", records[0].Origin)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
