package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/config"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/extract"
	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/relay"
	"github.com/nao1215/campusshield/internal/store"
	"github.com/nao1215/campusshield/internal/surface"
	"golang.org/x/net/html"
)

const emailPage = `<!DOCTYPE html>
<html><head><title>Inbox</title></head>
<body>
  <div class="sender">it-support@campus-helpdesk.example</div>
  <div class="subject">Urgent: verify your account</div>
  <div class="body">
    <p>Your account will be suspended. Please verify your password immediately.</p>
    <a href="http://evil.example/login">Login here</a>
    <a href="https://campus.example/help">Help</a>
  </div>
</body></html>`

const newsPage = `<!DOCTYPE html>
<html><head><title>Campus news</title></head>
<body><h1>Library hours</h1><p>The library opens at 8 immediately after the break.</p></body></html>`

const emptyPage = `<!DOCTYPE html><html><head><title></title></head><body></body></html>`

var highResult = model.ScanResult{
	RiskLevel:       model.RiskHigh,
	ConfidenceScore: 0.92,
	Explanations:    []string{"urgent language"},
	SuspiciousLinks: []string{"evil.example"},
}

type harness struct {
	hub      *bus.Hub
	doc      *dom.Document
	agent    *Agent
	recorder *surface.Recorder
	launcher *countingLauncher
	kv       *store.Memory
}

// countingLauncher counts how many panels were launched.
type countingLauncher struct {
	inner    Launcher
	launches atomic.Int32
}

func (c *countingLauncher) Launch(ctx context.Context) (func(), error) {
	c.launches.Add(1)
	return c.inner.Launch(ctx)
}

// newHarness runs a page agent on page with the given relay endpoint.
// A nil relay endpoint leaves the relay absent.
func newHarness(t *testing.T, page string, relayEP *bus.Endpoint, opts ...Option) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	doc, err := dom.ParseString(page, "file:///tmp/mock_email.html")
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	chain, err := extract.NewChain(config.DefaultSites())
	if err != nil {
		t.Fatalf("failed to build extraction chain: %v", err)
	}

	hub := bus.NewHub()
	if relayEP != nil {
		hub.Register(relayEP)
		go func() { _ = relayEP.Run(ctx) }()
	}

	rec := surface.NewRecorder()
	launcher := &countingLauncher{inner: NewSurfaceLauncher(hub, surface.WithDisplay(rec))}
	kv := store.NewMemory()

	base := []Option{
		WithLauncher(launcher),
		WithPositions(store.NewPositionStore(kv)),
		WithForwardDeadline(time.Second),
		WithReadyTimeout(time.Second),
	}
	a := New(hub, doc, chain, append(base, opts...)...)
	hub.Register(a.Endpoint())
	go func() { _ = a.Run(ctx) }()

	return &harness{hub: hub, doc: doc, agent: a, recorder: rec, launcher: launcher, kv: kv}
}

func relayWith(result model.ScanResult) *bus.Endpoint {
	return relay.New(relay.ScorerFunc(func(context.Context, model.ScanRequest) (model.ScanResult, error) {
		return result, nil
	})).Endpoint()
}

func (h *harness) probe(t *testing.T) bool {
	t.Helper()
	reply, err := h.hub.Request(context.Background(), bus.NameAgent, bus.MustMessage(bus.NameTrigger, bus.KindProbe, nil))
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	var pr bus.ProbeReply
	if err := reply.Decode(&pr); err != nil {
		t.Fatalf("bad probe reply: %v", err)
	}
	return pr.Ready
}

func (h *harness) trigger(t *testing.T) bus.Ack {
	t.Helper()
	reply, err := h.hub.Request(context.Background(), bus.NameAgent, bus.MustMessage(bus.NameTrigger, bus.KindTriggerScan, nil))
	if err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	var ack bus.Ack
	if err := reply.Decode(&ack); err != nil {
		t.Fatalf("bad ack: %v", err)
	}
	return ack
}

func (h *harness) waitPhase(t *testing.T, phase model.Phase, timeout time.Duration) surface.View {
	t.Helper()
	v, ok := h.recorder.WaitFor(func(v surface.View) bool { return v.Phase == phase }, timeout)
	if !ok {
		t.Fatalf("panel never reached %s, views: %+v", phase, h.recorder.Views())
	}
	return v
}

// waitFor polls cond until it holds or a second elapses.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func countNodes(doc *dom.Document, match func(*html.Node) bool) int {
	count := 0
	doc.Read(func(root *html.Node) {
		var visit func(*html.Node)
		visit = func(n *html.Node) {
			if match(n) {
				count++
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c)
			}
		}
		visit(root)
	})
	return count
}

func isPanelElement(n *html.Node) bool {
	return n.Type == html.ElementNode && dom.Attr(n, "id") == PanelElementID
}

// TestProbe tests that probing reports readiness without side effects.
func TestProbe(t *testing.T) {
	t.Parallel()

	t.Run("email page is ready", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, emailPage, relayWith(highResult))
		before, _ := h.doc.HTML()

		waitFor(t, "readiness", func() bool { return h.probe(t) })
		for range 5 {
			if !h.probe(t) {
				t.Fatal("readiness flipped without a document change")
			}
		}

		after, _ := h.doc.HTML()
		if before != after {
			t.Error("probe mutated the document")
		}
		if n := h.launcher.launches.Load(); n != 0 {
			t.Errorf("probe launched %d panels", n)
		}
		if w := h.kv.Writes(); w != 0 {
			t.Errorf("probe wrote %d store entries", w)
		}
	})

	t.Run("readiness follows document mutations", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, emptyPage, relayWith(highResult))

		if h.probe(t) {
			t.Fatal("empty page should not be ready")
		}

		h.doc.Mutate(func(root *html.Node) bool {
			body := dom.Body(root)
			div := &html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{{Key: "class", Val: "subject"}}}
			div.AppendChild(&html.Node{Type: html.TextNode, Data: "Quarterly report"})
			body.AppendChild(div)
			return true
		})

		waitFor(t, "readiness after mutation", func() bool { return h.probe(t) })
	})

	t.Run("ordinary page with text is not ready", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newsPage, relayWith(highResult))

		time.Sleep(20 * time.Millisecond)
		if h.probe(t) {
			t.Error("a page without an e-mail layout or sender probed as ready")
		}
	})
}

// TestRequestScan tests the full scan flow from trigger to highlighting.
func TestRequestScan(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		results []model.ScanResult
	)
	hook := func(_ context.Context, origin string, result model.ScanResult) {
		mu.Lock()
		defer mu.Unlock()
		if origin == "" {
			t.Error("empty origin passed to result hook")
		}
		results = append(results, result)
	}

	h := newHarness(t, emailPage, relayWith(highResult), WithResultHook(hook))
	waitFor(t, "readiness", func() bool { return h.probe(t) })

	if ack := h.trigger(t); !ack.OK {
		t.Fatalf("expected positive ack, got %+v", ack)
	}

	h.waitPhase(t, model.PhaseScanning, time.Second)
	v := h.waitPhase(t, model.PhaseResult, time.Second)
	if v.Risk != model.RiskHigh || v.Confidence != "92%" {
		t.Errorf("unexpected view: %+v", v)
	}

	waitFor(t, "highlighting", func() bool {
		return countNodes(h.doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && dom.HasClass(n, dom.HighlightLinkClass)
		}) == 1
	})

	phrases := countNodes(h.doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && dom.HasClass(n, dom.HighlightTextClass)
	})
	if phrases == 0 {
		t.Error("expected risk phrases to be wrapped")
	}

	waitFor(t, "result hook", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	})

	t.Run("second scan reuses the panel and does not double highlight", func(t *testing.T) {
		if ack := h.trigger(t); !ack.OK {
			t.Fatalf("expected positive ack, got %+v", ack)
		}
		waitFor(t, "second result", func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(results) == 2
		})
		again := countNodes(h.doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && dom.HasClass(n, dom.HighlightTextClass)
		})
		if again != phrases {
			t.Errorf("highlight count changed from %d to %d", phrases, again)
		}
		if n := h.launcher.launches.Load(); n != 1 {
			t.Errorf("expected 1 panel launch, got %d", n)
		}
	})
}

// TestRequestScanNoContent tests the negative acknowledgement on empty pages.
func TestRequestScanNoContent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, emptyPage, relayWith(highResult))
	ack := h.trigger(t)
	if ack.OK {
		t.Fatal("expected negative ack")
	}
	if ack.Error != ErrNoContent.Error() {
		t.Errorf("unexpected ack error: %q", ack.Error)
	}
	if n := h.launcher.launches.Load(); n != 0 {
		t.Errorf("expected no panel, got %d launches", n)
	}
}

// TestEnsureSurfaceConcurrent tests that concurrent callers share one panel.
func TestEnsureSurfaceConcurrent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, emailPage, relayWith(highResult))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.agent.EnsureSurface(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if n := h.launcher.launches.Load(); n != 1 {
		t.Errorf("expected exactly 1 panel launch, got %d", n)
	}
	if n := countNodes(h.doc, isPanelElement); n != 1 {
		t.Errorf("expected exactly 1 panel element, got %d", n)
	}

	if err := h.agent.EnsureSurface(context.Background()); err != nil {
		t.Fatalf("unexpected error on reuse: %v", err)
	}
	if n := h.launcher.launches.Load(); n != 1 {
		t.Errorf("reuse launched another panel: %d", n)
	}
}

// TestDrag tests drag relay, clamping and persistence on drag end.
func TestDrag(t *testing.T) {
	t.Parallel()

	h := newHarness(t, emailPage, relayWith(highResult),
		WithGeometry(model.Viewport{Width: 1280, Height: 800}, model.Size{Width: 320, Height: 420}))

	ps := store.NewPositionStore(h.kv)
	if err := ps.Save(context.Background(), h.doc.Origin(), model.PanelPosition{Top: 100, Right: 50}); err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
	if err := h.agent.EnsureSurface(context.Background()); err != nil {
		t.Fatalf("failed to create panel: %v", err)
	}

	pos, ok, err := h.agent.Position(context.Background())
	if err != nil || !ok {
		t.Fatalf("no panel position: ok=%v err=%v", ok, err)
	}
	if pos != (model.PanelPosition{Top: 100, Right: 50}) {
		t.Errorf("persisted position not restored: %+v", pos)
	}

	drag := func(kind bus.Kind, payload any) {
		t.Helper()
		if err := h.hub.Send(context.Background(), bus.NameAgent, bus.MustMessage(bus.NameSurface, kind, payload)); err != nil {
			t.Fatalf("send %s: %v", kind, err)
		}
	}

	drag(bus.KindDragStart, nil)
	drag(bus.KindDragMove, bus.Drag{DX: 100, DY: 50})
	drag(bus.KindDragMove, bus.Drag{DX: 0, DY: 1000})

	pos, _, _ = h.agent.Position(context.Background())
	want := model.PanelPosition{Top: 380, Right: 0}
	if pos != want {
		t.Errorf("expected clamped %+v, got %+v", want, pos)
	}
	if w := h.kv.Writes(); w != 1 {
		t.Errorf("store written during drag: %d writes", w)
	}

	var style string
	h.doc.Read(func(root *html.Node) {
		style = dom.Attr(dom.FindByID(root, PanelElementID), "style")
	})
	if !strings.Contains(style, "top:380px;right:0px") {
		t.Errorf("panel element not moved: %q", style)
	}

	drag(bus.KindDragEnd, nil)
	_, _, _ = h.agent.Position(context.Background())
	if w := h.kv.Writes(); w != 2 {
		t.Errorf("expected one write on drag end, got %d total", w)
	}
	saved, ok, err := ps.Load(context.Background(), h.doc.Origin())
	if err != nil || !ok || saved != want {
		t.Errorf("unexpected saved position: %+v ok=%v err=%v", saved, ok, err)
	}

	t.Run("remove surface", func(t *testing.T) {
		drag(bus.KindRemoveSurface, nil)
		if _, ok, _ := h.agent.Position(context.Background()); ok {
			t.Error("panel still present after removal")
		}
		if n := countNodes(h.doc, isPanelElement); n != 0 {
			t.Errorf("panel element not removed: %d", n)
		}
	})
}

// TestRequestScanFailures tests that relay failures reach the panel as
// Error results.
func TestRequestScanFailures(t *testing.T) {
	t.Parallel()

	t.Run("relay missing", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, emailPage, nil)
		h.trigger(t)
		v := h.waitPhase(t, model.PhaseError, time.Second)
		if v.Risk != model.RiskError || !strings.Contains(strings.Join(v.Explanations, " "), "receiving end does not exist") {
			t.Errorf("unexpected view: %+v", v)
		}
	})

	t.Run("relay torn down while pending", func(t *testing.T) {
		t.Parallel()
		started := make(chan struct{})
		blocking := relay.New(relay.ScorerFunc(func(ctx context.Context, _ model.ScanRequest) (model.ScanResult, error) {
			close(started)
			<-ctx.Done()
			return model.ScanResult{}, ctx.Err()
		}), relay.WithTimeout(10*time.Second)).Endpoint()

		h := newHarness(t, emailPage, blocking)
		h.trigger(t)
		<-started
		h.hub.Unregister(bus.NameRelay)

		v := h.waitPhase(t, model.PhaseError, time.Second)
		if !strings.Contains(strings.Join(v.Explanations, " "), "channel closed") {
			t.Errorf("unexpected explanations: %v", v.Explanations)
		}
	})

	t.Run("relay silent past the forward deadline", func(t *testing.T) {
		t.Parallel()
		silent := bus.NewEndpoint(bus.NameRelay, func(context.Context, bus.Message, *bus.Replier) {})
		h := newHarness(t, emailPage, silent, WithForwardDeadline(50*time.Millisecond))

		start := time.Now()
		h.trigger(t)
		v := h.waitPhase(t, model.PhaseError, time.Second)
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("terminal message took %s", elapsed)
		}
		if !strings.Contains(strings.Join(v.Explanations, " "), "timeout") {
			t.Errorf("unexpected explanations: %v", v.Explanations)
		}
	})

	t.Run("highlighting still cleared on error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, emailPage, nil)
		h.doc.Mutate(func(root *html.Node) bool {
			return dom.HighlightLinks(root, []string{"campus.example"}) > 0
		})
		h.trigger(t)
		h.waitPhase(t, model.PhaseError, time.Second)
		waitFor(t, "stale link mark cleared", func() bool {
			return countNodes(h.doc, func(n *html.Node) bool {
				return n.Type == html.ElementNode && dom.HasClass(n, dom.HighlightLinkClass)
			}) == 0
		})
	})
}

// TestRunTeardown tests that stopping the agent removes its panel.
func TestRunTeardown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, emailPage, relayWith(highResult))
	if err := h.agent.EnsureSurface(context.Background()); err != nil {
		t.Fatalf("failed to create panel: %v", err)
	}
	launcher := h.launcher.inner.(*SurfaceLauncher)
	if _, ok := launcher.Current(); !ok {
		t.Fatal("expected a live surface")
	}

	h.hub.Unregister(bus.NameAgent)
	waitFor(t, "panel teardown", func() bool {
		_, ok := launcher.Current()
		return !ok
	})

	_, err := h.hub.Request(context.Background(), bus.NameAgent, bus.MustMessage(bus.NameTrigger, bus.KindProbe, nil))
	if !errors.Is(err, bus.ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

// TestRunClosedEndpoint tests that an agent torn down before it started
// stops quietly.
func TestRunClosedEndpoint(t *testing.T) {
	t.Parallel()

	doc, err := dom.ParseString(emailPage, "file:///tmp/mock_email.html")
	if err != nil {
		t.Fatalf("failed to parse page: %v", err)
	}
	chain, err := extract.NewChain(config.DefaultSites())
	if err != nil {
		t.Fatalf("failed to build extraction chain: %v", err)
	}

	a := New(bus.NewHub(), doc, chain)
	a.Endpoint().Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a closed endpoint")
	}
}
