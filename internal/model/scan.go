package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ScanRequest is the snapshot of one e-mail sent to the scoring backend.
// It is built once per trigger from a read-only document snapshot and is
// discarded after the relay replies.
type ScanRequest struct {
	// Sender is the sender address as displayed by the mail client.
	Sender string `json:"sender"`

	// Subject is the subject line.
	Subject string `json:"subject"`

	// Body is the visible text of the message body.
	Body string `json:"body"`

	// Links holds every http(s) link of the message in document order.
	Links []string `json:"links"`
}

// IsEmpty reports whether extraction found nothing at all.
func (r ScanRequest) IsEmpty() bool {
	return r.Sender == "" && r.Subject == "" && r.Body == "" && len(r.Links) == 0
}

// DecodeScanRequest decodes a message payload into a ScanRequest.
// A payload that is not a JSON object is reported as ErrValidation.
func DecodeScanRequest(data []byte) (ScanRequest, error) {
	var req ScanRequest
	if err := decodeObject(data, &req); err != nil {
		return ScanRequest{}, err
	}
	if req.Links == nil {
		req.Links = []string{}
	}
	return req, nil
}

// ScanResult is the verdict for one ScanRequest.
// It is produced by the backend or synthesized locally on any failure path.
type ScanResult struct {
	// RiskLevel is the verdict category.
	RiskLevel RiskLevel `json:"risk_level"`

	// ConfidenceScore is the backend confidence in [0, 1].
	ConfidenceScore float64 `json:"confidence_score"`

	// Explanations are human-readable reasons, in backend order.
	Explanations []string `json:"explanations"`

	// SuspiciousLinks is a set of link fragments flagged by the backend.
	SuspiciousLinks []string `json:"suspicious_links"`
}

// wireResult mirrors the backend response so that unknown risk levels and
// missing fields can be normalized after decoding.
type wireResult struct {
	RiskLevel       string   `json:"risk_level"`
	ConfidenceScore *float64 `json:"confidence_score"`
	Explanations    []string `json:"explanations"`
	SuspiciousLinks []string `json:"suspicious_links"`
}

// DecodeScanResult decodes a backend or panel payload into a normalized ScanResult.
// A body that is not a JSON object is reported as ErrValidation; callers on the
// backend path re-wrap it as ErrBackend.
func DecodeScanResult(data []byte) (ScanResult, error) {
	var w wireResult
	if err := decodeObject(data, &w); err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{
		RiskLevel:       ParseRiskLevel(w.RiskLevel),
		Explanations:    w.Explanations,
		SuspiciousLinks: w.SuspiciousLinks,
	}
	if w.ConfidenceScore != nil {
		result.ConfidenceScore = *w.ConfidenceScore
	}
	return result.Normalize(), nil
}

// Normalize returns a copy with confidence clamped to [0, 1], duplicate
// suspicious links removed and nil slices replaced by empty ones.
func (r ScanResult) Normalize() ScanResult {
	out := ScanResult{
		RiskLevel:       r.RiskLevel,
		ConfidenceScore: r.ConfidenceScore,
		Explanations:    make([]string, 0, len(r.Explanations)),
		SuspiciousLinks: make([]string, 0, len(r.SuspiciousLinks)),
	}
	if out.RiskLevel == "" {
		out.RiskLevel = RiskUnknown
	}
	if math.IsNaN(out.ConfidenceScore) || out.ConfidenceScore < 0 {
		out.ConfidenceScore = 0
	}
	if out.ConfidenceScore > 1 {
		out.ConfidenceScore = 1
	}

	out.Explanations = append(out.Explanations, r.Explanations...)

	seen := make(map[string]bool, len(r.SuspiciousLinks))
	for _, link := range r.SuspiciousLinks {
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		out.SuspiciousLinks = append(out.SuspiciousLinks, link)
	}
	return out
}

// ConfidencePercent formats the confidence score as a rounded percentage, e.g. "92%".
func (r ScanResult) ConfidencePercent() string {
	return strconv.Itoa(int(math.Round(r.ConfidenceScore*100))) + "%"
}

// IsError reports whether the result denotes a failed scan.
func (r ScanResult) IsError() bool {
	return r.RiskLevel.IsTerminalError()
}

// ErrorResult synthesizes the result delivered on every failure path.
// The error text becomes the sole explanation.
func ErrorResult(err error) ScanResult {
	explanation := "scan failed"
	if err != nil {
		explanation = err.Error()
	}
	return ScanResult{
		RiskLevel:       RiskError,
		ConfidenceScore: 0,
		Explanations:    []string{explanation},
		SuspiciousLinks: []string{},
	}
}

// decodeObject decodes data into v and requires the top-level value to be an object.
func decodeObject(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: payload is not a JSON object", ErrValidation)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
