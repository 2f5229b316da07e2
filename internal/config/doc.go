// Package config provides configuration structures and utilities for campusshield.
// It defines the scoring backend endpoint, the timer budgets of the scan
// pipeline, panel geometry, per-site extraction selectors and report
// generation preferences.
package config
