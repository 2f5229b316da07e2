// Package log provides privacy-preserving logging built on top of the
// standard slog package.
//
// This package extends slog to provide:
//   - Automatic masking of e-mail content (sender, subject, body)
//   - Partial masking of e-mail addresses found in any string value
//   - Masking of credentials (tokens, API keys) used to reach the backend
//   - Configurable log levels with verbose mode support
//
// # Privacy
//
// A scan moves the content of a private e-mail through several contexts.
// None of that content may reach a log file, even in verbose mode. The
// SecureHandler replaces content-bearing attributes with MaskValue and
// rewrites addresses such as "alice@example.com" to "a***e@example.com" so
// that domains stay visible for debugging.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("scan requested", "sender", req.Sender) // sender=***REDACTED***
//	slog.SetDefault(logger)
package log
