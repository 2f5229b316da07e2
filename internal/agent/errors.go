package agent

import "errors"

var (
	// ErrNoContent is returned when extraction found nothing to scan.
	ErrNoContent = errors.New("no email content found on this page")

	// ErrPanelNotReady is returned when the result panel did not become
	// interaction-ready in time.
	ErrPanelNotReady = errors.New("result panel did not become ready")
)
