package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nao1215/campusshield/internal/model"
)

// Hub routes messages to endpoints by name.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{endpoints: make(map[string]*Endpoint)}
}

// Register makes e reachable under its name, replacing any previous endpoint
// with the same name.
func (h *Hub) Register(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints[e.Name()] = e
}

// Unregister removes and closes the endpoint registered under name.
// Pending requests to it fail with ErrChannelClosed.
func (h *Hub) Unregister(name string) {
	h.mu.Lock()
	e, ok := h.endpoints[name]
	delete(h.endpoints, name)
	h.mu.Unlock()

	if ok {
		e.Close()
	}
}

// Detach removes e if it is still the endpoint registered under its name,
// then closes it. A newer endpoint registered under the same name is left
// untouched.
func (h *Hub) Detach(e *Endpoint) {
	h.mu.Lock()
	if cur, ok := h.endpoints[e.Name()]; ok && cur == e {
		delete(h.endpoints, e.Name())
	}
	h.mu.Unlock()

	e.Close()
}

// Lookup returns the live endpoint registered under name.
func (h *Hub) Lookup(name string) (*Endpoint, bool) {
	h.mu.RLock()
	e, ok := h.endpoints[name]
	h.mu.RUnlock()
	if !ok || e.Closed() {
		return nil, false
	}
	return e, true
}

// Send delivers msg to the named endpoint without waiting for any reply.
func (h *Hub) Send(ctx context.Context, to string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := h.Lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	if err := e.enqueue(task{msg: msg}); err != nil {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	return nil
}

// Request delivers msg and waits for exactly one reply.
//
// It fails with ErrUnreachable when the endpoint does not exist, with
// ErrChannelClosed when the endpoint is torn down before replying and with
// model.ErrTimeout when ctx expires first.
func (h *Hub) Request(ctx context.Context, to string, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, contextError(err, to)
	}
	e, ok := h.Lookup(to)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnreachable, to)
	}

	r := newReplier(msg.ID, to)
	if err := e.enqueue(task{msg: msg, replier: r}); err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrUnreachable, to)
	}

	select {
	case reply := <-r.ch:
		return reply, nil
	case <-e.Done():
		select {
		case reply := <-r.ch:
			return reply, nil
		default:
		}
		return Message{}, fmt.Errorf("%w: %s", ErrChannelClosed, to)
	case <-ctx.Done():
		return Message{}, contextError(ctx.Err(), to)
	}
}

// Close tears down every registered endpoint.
func (h *Hub) Close() {
	h.mu.Lock()
	endpoints := h.endpoints
	h.endpoints = make(map[string]*Endpoint)
	h.mu.Unlock()

	for _, e := range endpoints {
		e.Close()
	}
}

func contextError(err error, to string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no reply from %s", model.ErrTimeout, to)
	}
	return err
}
