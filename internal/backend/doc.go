// Package backend is a local, rule-based scoring service.
//
// It serves the scoring endpoint the relay talks to (POST /scan) so that
// campusshield works end to end without an external service. Detection
// accuracy is not a goal: a fixed set of weighted phrase rules and URL
// checks produces the verdict.
//
// Privacy: request content is never logged. The request logger records
// method, path, status and latency only.
package backend
