package bus

import (
	"sync/atomic"
)

// Replier answers one request. It can be used exactly once, either inside
// the handler or later from a continuation.
type Replier struct {
	requestID string
	from      string
	used      atomic.Bool
	ch        chan Message
}

func newReplier(requestID, from string) *Replier {
	return &Replier{
		requestID: requestID,
		from:      from,
		ch:        make(chan Message, 1),
	}
}

// Reply sends payload back to the requester.
// A nil Replier (fire-and-forget message) ignores the call.
// A second call returns ErrAlreadyReplied and sends nothing.
func (r *Replier) Reply(payload any) error {
	if r == nil {
		return nil
	}
	msg, err := NewMessage(r.from, KindReply, payload)
	if err != nil {
		return err
	}
	if !r.used.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	msg.ID = r.requestID
	r.ch <- msg
	return nil
}

// Replied reports whether Reply already succeeded.
func (r *Replier) Replied() bool {
	return r != nil && r.used.Load()
}
