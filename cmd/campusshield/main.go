// Package main provides the entry point for the campusshield CLI.
//
// campusshield scans an e-mail page for phishing indicators. The page is
// hosted locally, a page agent extracts the message, a relay forwards it
// to the scoring backend, and the verdict is shown on a result panel and
// highlighted in the document.
//
// Usage:
//
//	campusshield scan <email.html>
//	campusshield watch <email.html>
//	campusshield serve
//
// See --help for all available options.
package main

// main is the entry point for campusshield.
func main() {
	Execute()
}
