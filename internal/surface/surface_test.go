package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/log"
	"github.com/nao1215/campusshield/internal/model"
)

var highResult = model.ScanResult{
	RiskLevel:       model.RiskHigh,
	ConfidenceScore: 0.92,
	Explanations:    []string{"urgent language"},
	SuspiciousLinks: []string{"evil.com"},
}

// agentStub records what the panel sends to the page agent.
type agentStub struct {
	mu   sync.Mutex
	msgs []bus.Message
	got  chan bus.Message
}

func (a *agentStub) kinds() []bus.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]bus.Kind, 0, len(a.msgs))
	for _, m := range a.msgs {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

// waitKind waits until a message of the given kind arrives.
func (a *agentStub) waitKind(t *testing.T, kind bus.Kind) bus.Message {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case m := <-a.got:
			if m.Kind == kind {
				return m
			}
		case <-timeout:
			t.Fatalf("no %s message received, got %v", kind, a.kinds())
		}
	}
}

// startPanel runs a panel and an agent stub on a fresh hub.
func startPanel(t *testing.T, opts ...Option) (*Surface, *Recorder, *agentStub, *bus.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := bus.NewHub()
	stub := &agentStub{got: make(chan bus.Message, 64)}
	agentEP := bus.NewEndpoint(bus.NameAgent, func(_ context.Context, msg bus.Message, _ *bus.Replier) {
		stub.mu.Lock()
		stub.msgs = append(stub.msgs, msg)
		stub.mu.Unlock()
		stub.got <- msg
	})
	hub.Register(agentEP)
	go func() { _ = agentEP.Run(ctx) }()

	rec := NewRecorder()
	s := New(hub, append([]Option{WithDisplay(rec)}, opts...)...)
	hub.Register(s.Endpoint())
	go func() { _ = s.Run(ctx) }()

	stub.waitKind(t, bus.KindSurfaceReady)
	return s, rec, stub, hub
}

func send(t *testing.T, hub *bus.Hub, kind bus.Kind, payload any) {
	t.Helper()
	if err := hub.Send(context.Background(), bus.NameSurface, bus.MustMessage(bus.NameAgent, kind, payload)); err != nil {
		t.Fatalf("send %s: %v", kind, err)
	}
}

func waitPhase(t *testing.T, rec *Recorder, phase model.Phase) View {
	t.Helper()
	v, ok := rec.WaitFor(func(v View) bool { return v.Phase == phase }, time.Second)
	if !ok {
		t.Fatalf("panel never reached %s, views: %+v", phase, rec.Views())
	}
	return v
}

// TestSurfaceLifecycle tests the normal Idle → Scanning → Result cycle.
func TestSurfaceLifecycle(t *testing.T) {
	t.Parallel()

	s, rec, _, hub := startPanel(t)

	idle, ok := rec.Last()
	if !ok || idle.Phase != model.PhaseIdle || idle.Status != StatusIdle {
		t.Fatalf("expected initial idle view, got %+v", idle)
	}

	send(t, hub, bus.KindScanStart, nil)
	scanning := waitPhase(t, rec, model.PhaseScanning)
	if scanning.Status != StatusScanning || scanning.Risk != "" {
		t.Errorf("unexpected scanning view: %+v", scanning)
	}

	send(t, hub, bus.KindScanResult, highResult)
	v := waitPhase(t, rec, model.PhaseResult)

	if v.Risk != model.RiskHigh || v.Confidence != "92%" {
		t.Errorf("expected High / 92%%, got %s / %s", v.Risk, v.Confidence)
	}
	if len(v.Explanations) != 1 || v.Explanations[0] != "urgent language" {
		t.Errorf("unexpected explanations: %v", v.Explanations)
	}
	if len(v.Links) != 1 || v.Links[0] != "evil.com" {
		t.Errorf("unexpected links: %v", v.Links)
	}

	st, err := s.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != model.PhaseResult || st.LastResult == nil {
		t.Errorf("unexpected state: %+v", st)
	}
}

// TestSurfaceOutOfOrder tests terminal-before-start and stray-start deliveries.
func TestSurfaceOutOfOrder(t *testing.T) {
	t.Parallel()

	t.Run("terminal while idle enters Error directly", func(t *testing.T) {
		t.Parallel()

		_, rec, _, hub := startPanel(t)
		send(t, hub, bus.KindScanError, model.ErrorResult(model.ErrTimeout))
		v := waitPhase(t, rec, model.PhaseError)
		if v.Risk != model.RiskError || !strings.Contains(v.Explanations[0], "timeout") {
			t.Errorf("unexpected error view: %+v", v)
		}
		for _, seen := range rec.Views() {
			if seen.Phase == model.PhaseScanning {
				t.Error("panel must not pass through Scanning")
			}
		}
	})

	t.Run("stray start after terminal discards the result", func(t *testing.T) {
		t.Parallel()

		s, rec, _, hub := startPanel(t)
		send(t, hub, bus.KindScanResult, highResult)
		waitPhase(t, rec, model.PhaseResult)

		send(t, hub, bus.KindScanStart, nil)
		v := waitPhase(t, rec, model.PhaseScanning)
		if v.Risk != "" || len(v.Links) != 0 {
			t.Errorf("prior result must be discarded, got %+v", v)
		}

		st, _ := s.State(context.Background())
		if st.LastResult != nil {
			t.Error("expected LastResult to be cleared")
		}
	})

	t.Run("error risk in scan-result renders Error", func(t *testing.T) {
		t.Parallel()

		_, rec, _, hub := startPanel(t)
		send(t, hub, bus.KindScanResult, model.ErrorResult(model.ErrBackend))
		waitPhase(t, rec, model.PhaseError)
	})
}

// TestSurfaceValidation tests that malformed messages produce a warning and
// do not stop the panel.
func TestSurfaceValidation(t *testing.T) {
	t.Parallel()

	malformed := func(kind bus.Kind) bus.Message {
		return bus.Message{ID: "bad", Kind: kind, From: bus.NameAgent, Payload: json.RawMessage(`"nope"`)}
	}

	t.Run("malformed result ends a pending scan in Error", func(t *testing.T) {
		t.Parallel()

		_, rec, _, hub := startPanel(t)

		send(t, hub, bus.KindScanStart, nil)
		waitPhase(t, rec, model.PhaseScanning)

		if err := hub.Send(context.Background(), bus.NameSurface, malformed(bus.KindScanResult)); err != nil {
			t.Fatal(err)
		}
		v := waitPhase(t, rec, model.PhaseError)
		if v.Warning == "" {
			t.Error("expected a warning on the error view")
		}
		if v.Risk != model.RiskError || !strings.Contains(strings.Join(v.Explanations, " "), "malformed") {
			t.Errorf("unexpected error view: %+v", v)
		}

		send(t, hub, bus.KindScanStart, nil)
		waitPhase(t, rec, model.PhaseScanning)
		send(t, hub, bus.KindScanResult, highResult)
		v = waitPhase(t, rec, model.PhaseResult)
		if v.Warning != "" {
			t.Errorf("warning should clear on a valid result, got %q", v.Warning)
		}
	})

	t.Run("late malformed result keeps the shown verdict", func(t *testing.T) {
		t.Parallel()

		_, rec, _, hub := startPanel(t)

		send(t, hub, bus.KindScanStart, nil)
		send(t, hub, bus.KindScanResult, highResult)
		waitPhase(t, rec, model.PhaseResult)

		if err := hub.Send(context.Background(), bus.NameSurface, malformed(bus.KindScanResult)); err != nil {
			t.Fatal(err)
		}
		v, ok := rec.WaitFor(func(v View) bool { return v.Warning != "" }, time.Second)
		if !ok {
			t.Fatal("expected warning view")
		}
		if v.Phase != model.PhaseResult || v.Risk != model.RiskHigh {
			t.Errorf("a stray malformed result replaced the verdict: %+v", v)
		}
	})
}

// TestRender tests the pure render function.
func TestRender(t *testing.T) {
	t.Parallel()

	state := State{Phase: model.PhaseResult, LastResult: &highResult}

	t.Run("pure and complete", func(t *testing.T) {
		t.Parallel()

		a := Render(state, DefaultLayout())
		b := Render(state, DefaultLayout())
		if a.Confidence != b.Confidence || len(a.Missing) != 0 {
			t.Errorf("unexpected render: %+v", a)
		}
		a.Explanations[0] = "mutated"
		if highResult.Explanations[0] != "urgent language" {
			t.Error("render must not alias the result")
		}
	})

	t.Run("missing region degrades", func(t *testing.T) {
		t.Parallel()

		layout := DefaultLayout()
		delete(layout, RegionLinks)

		v := Render(state, layout)
		if len(v.Links) != 0 || v.Risk != model.RiskHigh {
			t.Errorf("unexpected view: %+v", v)
		}
		if len(v.Missing) != 1 || v.Missing[0] != RegionLinks {
			t.Errorf("expected links to be reported missing, got %v", v.Missing)
		}
	})
}

// TestSurfaceMissingRegionLogsWarning tests that an absent region is logged.
func TestSurfaceMissingRegionLogsWarning(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := log.NewSecureLogger(&lockedWriter{w: &buf, mu: &mu}, false)

	layout := DefaultLayout()
	delete(layout, RegionConfidence)

	_, rec, _, hub := startPanel(t, WithLayout(layout), WithLogger(logger))
	send(t, hub, bus.KindScanResult, highResult)
	waitPhase(t, rec, model.PhaseResult)

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "region=confidence") {
		t.Errorf("expected missing region warning, got %s", buf.String())
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// TestSurfaceDrag tests header drags and control clicks.
func TestSurfaceDrag(t *testing.T) {
	t.Parallel()

	t.Run("header drag forwards deltas", func(t *testing.T) {
		t.Parallel()

		s, _, stub, _ := startPanel(t)

		s.PointerDown(RegionHeader, 100, 100)
		s.PointerMove(110, 95)
		s.PointerMove(110, 95)
		s.PointerMove(130, 90)
		s.PointerUp()

		stub.waitKind(t, bus.KindDragStart)
		var first, second bus.Drag
		if err := stub.waitKind(t, bus.KindDragMove).Decode(&first); err != nil {
			t.Fatal(err)
		}
		if err := stub.waitKind(t, bus.KindDragMove).Decode(&second); err != nil {
			t.Fatal(err)
		}
		stub.waitKind(t, bus.KindDragEnd)

		if first != (bus.Drag{DX: 10, DY: -5}) || second != (bus.Drag{DX: 20, DY: -5}) {
			t.Errorf("unexpected deltas: %+v %+v", first, second)
		}
	})

	t.Run("close control never starts a drag", func(t *testing.T) {
		t.Parallel()

		s, _, stub, _ := startPanel(t)

		s.PointerDown(RegionClose, 5, 5)
		s.PointerMove(50, 50)
		s.PointerUp()
		s.Click(RegionClose)

		stub.waitKind(t, bus.KindRemoveSurface)
		for _, k := range stub.kinds() {
			if k == bus.KindDragStart || k == bus.KindDragMove || k == bus.KindDragEnd {
				t.Errorf("unexpected drag message %s", k)
			}
		}
	})

	t.Run("dismiss asks for removal and learn more shows the tip", func(t *testing.T) {
		t.Parallel()

		s, rec, stub, _ := startPanel(t)

		s.Click(RegionLearnMore)
		if _, ok := rec.WaitFor(func(v View) bool { return v.Tip == LearnMoreTip }, time.Second); !ok {
			t.Error("expected tip view")
		}

		s.Click(RegionDismiss)
		stub.waitKind(t, bus.KindRemoveSurface)
	})
}

// TestPanelText tests terminal rendering.
func TestPanelText(t *testing.T) {
	t.Parallel()

	v := Render(State{Phase: model.PhaseResult, LastResult: &highResult, ShowTip: true}, DefaultLayout())
	out := PanelText(v, 60)

	for _, want := range []string{"CampusShield", "High", "92%", "urgent language", "evil.com", "Avoid clicking"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in panel:\n%s", want, out)
		}
	}

	var buf bytes.Buffer
	NewTextPanel(&buf, 0).Show(v)
	if !strings.Contains(buf.String(), "Why we flagged this") {
		t.Errorf("unexpected panel output: %s", buf.String())
	}
}
