// Package model defines the value objects exchanged between the scan contexts.
//
// This package contains the following main types:
//   - ScanRequest: The e-mail snapshot sent to the scoring backend
//   - ScanResult: The verdict returned by the backend or synthesized locally
//   - RiskLevel: The verdict category shown on the result panel
//   - Phase: The state of the result panel
//   - PanelPosition: The persisted on-screen location of the result panel
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The relay, page agent, result panel and report writers all
// exchange these types, so centralizing them prevents import cycles.
//
// All values are immutable once built and are serializable to JSON, which is
// how they cross context boundaries.
package model
