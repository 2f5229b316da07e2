package report

import (
	"io"
	"time"

	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/store"
)

// Report is one scan as shown to the user.
type Report struct {
	// Page is the scanned document location.
	Page string `json:"page"`

	// ScannedAt is when the verdict arrived.
	ScannedAt time.Time `json:"scanned_at"`

	// Result is the verdict.
	Result model.ScanResult `json:"result"`
}

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the same
// API.
type Writer interface {
	// Write outputs one scan report.
	// Returns the number of bytes written and any error encountered.
	Write(report *Report) (int, error)

	// WriteHistory outputs a list of recorded scans, newest first.
	WriteHistory(records []store.ScanRecord) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteHistory outputs the history to all configured Writers.
func (m *MultiWriter) WriteHistory(records []store.ScanRecord) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteHistory(records)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

const timeLayout = "2006-01-02 15:04:05 MST"

// riskCounts tallies records per risk level.
func riskCounts(records []store.ScanRecord) map[model.RiskLevel]int {
	counts := make(map[model.RiskLevel]int)
	for _, r := range records {
		counts[r.Result.RiskLevel]++
	}
	return counts
}

// riskOrder lists risk levels from most to least severe.
var riskOrder = []model.RiskLevel{
	model.RiskHigh,
	model.RiskMedium,
	model.RiskLow,
	model.RiskUnknown,
	model.RiskError,
}
