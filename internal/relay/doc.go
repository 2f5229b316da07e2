// Package relay forwards scan requests to the scoring backend.
//
// The relay is a timeout-and-normalization boundary around one outbound
// call. For every request it:
//   - starts a primary timer that cancels the in-flight call
//   - starts a safety timer (primary + margin) that replies unconditionally
//     if nothing else has, even when the call ignores cancellation
//   - maps every failure (non-2xx status, undecodable body, network error,
//     timeout) to an Error-risk ScanResult
//
// Exactly one reply is delivered per request. A RequestState owns a
// single-assignment completion token that every branch must win before it
// may produce output.
package relay
