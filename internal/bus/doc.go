// Package bus implements message passing between the isolated scan contexts.
//
// Every context (trigger, page agent, relay, result panel and the hosting
// environment) owns an Endpoint: a goroutine draining a FIFO mailbox and
// running one handler at a time. Contexts never share memory. They exchange
// Message envelopes whose payload is JSON-encoded, routed by endpoint name
// through a Hub.
//
// Two delivery styles exist:
//   - Send is fire-and-forget. It fails only when the destination is absent.
//   - Request expects exactly one reply. The handler receives a Replier that
//     can be used once, possibly after the handler returned. If the
//     destination is torn down before replying, Request fails with
//     ErrChannelClosed.
//
// Order is FIFO per destination mailbox. Nothing is guaranteed across
// different senders.
package bus
