package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RiskLevel is the verdict category of a scan.
//
// Design decision: We use string constants rather than iota because the
// value travels as-is in the backend's JSON response and in panel messages.
type RiskLevel string

const (
	// RiskLow means no significant phishing indicators were found.
	RiskLow RiskLevel = "Low"

	// RiskMedium means some indicators were found.
	RiskMedium RiskLevel = "Medium"

	// RiskHigh means the message is very likely phishing.
	RiskHigh RiskLevel = "High"

	// RiskUnknown is used when the backend answered with a level we do not know.
	RiskUnknown RiskLevel = "Unknown"

	// RiskError is synthesized locally whenever a scan could not complete.
	RiskError RiskLevel = "Error"
)

// titleCaser normalizes backend spellings such as "HIGH" or "high".
var titleCaser = cases.Title(language.English)

// ParseRiskLevel converts a backend string into a RiskLevel.
// Unrecognized or empty values map to RiskUnknown.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(titleCaser.String(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	case RiskError:
		return RiskError
	default:
		return RiskUnknown
	}
}

// String returns the display label of the risk level.
func (r RiskLevel) String() string {
	if r == "" {
		return string(RiskUnknown)
	}
	return string(r)
}

// IsTerminalError reports whether the level denotes a failed scan.
func (r RiskLevel) IsTerminalError() bool {
	return r == RiskError
}
