package agent

import (
	"context"
	"fmt"

	"github.com/nao1215/campusshield/internal/bus"
	"github.com/nao1215/campusshield/internal/dom"
	"github.com/nao1215/campusshield/internal/model"
	"golang.org/x/net/html"
)

// Extract reads the e-mail shown in the document through the strategy
// chain. It never mutates the document.
func (a *Agent) Extract() model.ScanRequest {
	var req model.ScanRequest
	a.doc.Read(func(root *html.Node) {
		var strategy string
		req, strategy = a.chain.Extract(root, a.doc.Host())
		a.logger.Debug("extracted scan request",
			"strategy", strategy,
			"sender", req.Sender,
			"subject", req.Subject,
			"links", len(req.Links))
	})
	return req
}

// requestScan acknowledges a user scan request and starts the scan in the
// background. It runs on the agent loop.
func (a *Agent) requestScan(ctx context.Context, rep *bus.Replier) {
	req := a.Extract()
	if req.IsEmpty() {
		_ = rep.Reply(bus.Ack{OK: false, Error: ErrNoContent.Error()})
		return
	}
	_ = rep.Reply(bus.Ack{OK: true})
	go a.scan(ctx, req)
}

// scan drives one request: panel, Scanning notice, relay round trip and the
// terminal notice. Every failure ends as an Error result.
func (a *Agent) scan(ctx context.Context, req model.ScanRequest) {
	if err := a.EnsureSurface(ctx); err != nil {
		a.logger.Warn("result panel unavailable", "error", err)
	}
	a.sendSurface(ctx, bus.KindScanStart, nil)

	result := a.forward(ctx, req)

	if err := a.ep.Post(func(loopCtx context.Context) {
		a.finish(loopCtx, result)
	}); err != nil {
		a.logger.Debug("agent torn down before scan finished", "error", err)
	}
}

// forward sends the request to the relay and waits at most the forward
// deadline for its reply.
func (a *Agent) forward(ctx context.Context, req model.ScanRequest) model.ScanResult {
	ctx, cancel := context.WithTimeout(ctx, a.forwardDeadline)
	defer cancel()

	msg, err := bus.NewMessage(bus.NameAgent, bus.KindScanRequest, req)
	if err != nil {
		return model.ErrorResult(err)
	}
	reply, err := a.hub.Request(ctx, bus.NameRelay, msg)
	if err != nil {
		a.logger.Warn("relay request failed", "error", err)
		return model.ErrorResult(fmt.Errorf("could not reach scanner: %w", err))
	}
	result, err := model.DecodeScanResult(reply.Payload)
	if err != nil {
		return model.ErrorResult(fmt.Errorf("invalid scanner reply: %w", err))
	}
	return result
}

// finish delivers the terminal notice, refreshes highlighting and reports
// the result. It runs on the agent loop.
func (a *Agent) finish(ctx context.Context, result model.ScanResult) {
	kind := bus.KindScanResult
	if result.IsError() {
		kind = bus.KindScanError
	}
	a.sendSurface(ctx, kind, result)
	a.highlight(result)

	if a.onResult != nil {
		a.onResult(ctx, a.doc.Origin(), result)
	}
}

// highlight clears earlier marks, then marks suspicious anchors and wraps
// risk phrases in the visible body text.
func (a *Agent) highlight(result model.ScanResult) {
	a.doc.Mutate(func(root *html.Node) bool {
		changed := dom.ClearHighlights(root)
		links := dom.HighlightLinks(root, result.SuspiciousLinks)
		phrases := 0
		if body := dom.Body(root); body != nil {
			phrases = dom.HighlightPhrases(body, a.phrases)
		}
		a.logger.Debug("document highlighted", "links", links, "phrases", phrases)
		return changed || links > 0 || phrases > 0
	})
}

func (a *Agent) sendSurface(ctx context.Context, kind bus.Kind, payload any) {
	msg, err := bus.NewMessage(bus.NameAgent, kind, payload)
	if err != nil {
		a.logger.Warn("failed to build panel message", "kind", string(kind), "error", err)
		return
	}
	if err := a.hub.Send(ctx, bus.NameSurface, msg); err != nil {
		a.logger.Warn("result panel unreachable", "kind", string(kind), "error", err)
	}
}
