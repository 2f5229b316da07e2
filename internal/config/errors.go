package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoBackendURL is returned when the scoring backend URL is empty.
	ErrNoBackendURL = errors.New("no backend URL specified: use --backend")

	// ErrInvalidBackendURL is returned when the backend URL is not an absolute http(s) URL.
	ErrInvalidBackendURL = errors.New("invalid backend URL: must be an absolute http or https URL")

	// ErrInvalidTimeout is returned when the backend timeout is not positive.
	// A timeout of zero would abort every scan immediately.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMargin is returned when the safety or forwarding margin is negative.
	ErrInvalidMargin = errors.New("invalid margin: must be non-negative")

	// ErrInvalidViewport is returned when the viewport or panel size is not positive.
	ErrInvalidViewport = errors.New("invalid viewport: width and height must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidSelector is returned when a site selector in the config file
	// cannot be compiled.
	ErrInvalidSelector = errors.New("invalid site selector")
)
