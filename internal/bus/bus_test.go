package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/campusshield/internal/model"
)

// startEndpoint registers a running endpoint and stops it when the test ends.
func startEndpoint(t *testing.T, hub *Hub, name string, handler Handler) *Endpoint {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	e := NewEndpoint(name, handler)
	hub.Register(e)
	go func() {
		_ = e.Run(ctx)
	}()
	t.Cleanup(cancel)
	return e
}

// TestHubSend tests fire-and-forget delivery and FIFO order.
func TestHubSend(t *testing.T) {
	t.Parallel()

	t.Run("delivers in FIFO order", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		var (
			mu  sync.Mutex
			got []Kind
		)
		done := make(chan struct{})
		startEndpoint(t, hub, NameSurface, func(_ context.Context, msg Message, r *Replier) {
			if r != nil {
				t.Error("fire-and-forget message must not carry a replier")
			}
			mu.Lock()
			got = append(got, msg.Kind)
			if len(got) == 3 {
				close(done)
			}
			mu.Unlock()
		})

		ctx := context.Background()
		for _, k := range []Kind{KindScanStart, KindScanResult, KindScanStart} {
			if err := hub.Send(ctx, NameSurface, MustMessage(NameAgent, k, nil)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("messages were not delivered")
		}

		mu.Lock()
		defer mu.Unlock()
		if got[0] != KindScanStart || got[1] != KindScanResult || got[2] != KindScanStart {
			t.Errorf("unexpected order: %v", got)
		}
	})

	t.Run("absent endpoint is unreachable", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		err := hub.Send(context.Background(), NameAgent, MustMessage(NameTrigger, KindProbe, nil))
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("expected ErrUnreachable, got %v", err)
		}
		if !errors.Is(err, model.ErrConnectivity) {
			t.Errorf("expected ErrConnectivity, got %v", err)
		}
	})
}

// TestHubRequest tests request/reply semantics.
func TestHubRequest(t *testing.T) {
	t.Parallel()

	t.Run("synchronous reply", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		startEndpoint(t, hub, NameAgent, func(_ context.Context, _ Message, r *Replier) {
			_ = r.Reply(ProbeReply{Ready: true})
		})

		req := MustMessage(NameTrigger, KindProbe, nil)
		reply, err := hub.Request(context.Background(), NameAgent, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reply.ID != req.ID || reply.Kind != KindReply {
			t.Errorf("unexpected reply envelope: %+v", reply)
		}

		var pr ProbeReply
		if err := reply.Decode(&pr); err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if !pr.Ready {
			t.Error("expected ready reply")
		}
	})

	t.Run("deferred reply from a posted continuation", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		var e *Endpoint
		e = startEndpoint(t, hub, NameRelay, func(_ context.Context, _ Message, r *Replier) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				_ = e.Post(func(context.Context) {
					_ = r.Reply(Ack{OK: true})
				})
			}()
		})

		reply, err := hub.Request(context.Background(), NameRelay, MustMessage(NameAgent, KindScanRequest, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var ack Ack
		if err := reply.Decode(&ack); err != nil || !ack.OK {
			t.Errorf("unexpected ack: %+v, %v", ack, err)
		}
	})

	t.Run("teardown before reply closes the channel", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		received := make(chan struct{})
		startEndpoint(t, hub, NameRelay, func(context.Context, Message, *Replier) {
			close(received)
		})

		go func() {
			<-received
			hub.Unregister(NameRelay)
		}()

		_, err := hub.Request(context.Background(), NameRelay, MustMessage(NameAgent, KindScanRequest, nil))
		if !errors.Is(err, ErrChannelClosed) {
			t.Errorf("expected ErrChannelClosed, got %v", err)
		}
	})

	t.Run("deadline maps to ErrTimeout", func(t *testing.T) {
		t.Parallel()

		hub := NewHub()
		startEndpoint(t, hub, NameAgent, func(context.Context, Message, *Replier) {})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := hub.Request(ctx, NameAgent, MustMessage(NameTrigger, KindProbe, nil))
		if !errors.Is(err, model.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

// TestReplierSingleUse tests that a replier delivers at most once.
func TestReplierSingleUse(t *testing.T) {
	t.Parallel()

	r := newReplier("id", NameRelay)
	if err := r.Reply(Ack{OK: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Reply(Ack{OK: false}); !errors.Is(err, ErrAlreadyReplied) {
		t.Errorf("expected ErrAlreadyReplied, got %v", err)
	}
	if !r.Replied() {
		t.Error("expected Replied() to be true")
	}
	if len(r.ch) != 1 {
		t.Errorf("expected exactly one queued reply, got %d", len(r.ch))
	}

	var nilReplier *Replier
	if err := nilReplier.Reply(Ack{}); err != nil {
		t.Errorf("nil replier must ignore replies, got %v", err)
	}
}

// TestMessageDecode tests payload validation.
func TestMessageDecode(t *testing.T) {
	t.Parallel()

	var d Drag
	if err := MustMessage(NameSurface, KindDragMove, nil).Decode(&d); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for missing payload, got %v", err)
	}

	msg := Message{Kind: KindDragMove, Payload: []byte(`{"dx":"nope"}`)}
	if err := msg.Decode(&d); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation for malformed payload, got %v", err)
	}

	msg = MustMessage(NameSurface, KindDragMove, Drag{DX: 3, DY: -4})
	if err := msg.Decode(&d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DX != 3 || d.DY != -4 {
		t.Errorf("unexpected drag: %+v", d)
	}
	if msg.ID == "" {
		t.Error("expected message ID")
	}
}
