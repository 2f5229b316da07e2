package model

import "errors"

// Error categories shared by every scan context.
// Components wrap these with fmt.Errorf("%w: ...") so that callers can use
// errors.Is() to classify a failure without parsing messages.
//
// Design decision: None of these errors crosses a context boundary as a raised
// fault. The relay and page agent turn them into an Error-risk ScanResult,
// the trigger turns them into a status string, and the result panel turns
// ErrValidation into a warning view.
var (
	// ErrConnectivity is returned when a context cannot be reached, either
	// because it is not active yet or because its channel was torn down.
	ErrConnectivity = errors.New("connectivity error")

	// ErrBackend is returned when the scoring service answers with a
	// non-success status or a body that cannot be decoded.
	ErrBackend = errors.New("backend error")

	// ErrTimeout is returned when the primary or safety timer fires.
	ErrTimeout = errors.New("timeout error")

	// ErrValidation is returned when a message arrives with a missing or
	// malformed payload.
	ErrValidation = errors.New("validation error")
)
