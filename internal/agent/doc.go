// Package agent implements the page agent, the logic resident in the host
// document.
//
// The agent:
//   - keeps a readiness flag up to date from document mutation
//     notifications and answers probes from it without side effects
//   - extracts a ScanRequest through the extraction chain
//   - owns the result panel: creates it at most once per page, restores its
//     persisted position, moves it on drag deltas and removes it on request
//   - forwards the request to the relay and always delivers exactly one
//     terminal message to the panel, converting every failure into an
//     Error-risk result
//   - highlights suspicious anchors and risk phrases in the document
//
// All agent state is owned by its endpoint loop. Work that has to wait
// (panel readiness, the relay reply) runs in a per-request goroutine and
// re-enters the loop through Endpoint.Post.
package agent
