package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/store"
)

// SimpleWriter outputs human-readable text reports.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it is easier to pipe to files or other tools. The
// interactive watch view renders with colors instead.
type SimpleWriter struct {
	baseWriter

	// verbose adds the scan date and the full link list.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder
	result := report.Result.Normalize()

	w.writeHeader(&sb, report, result)
	w.writeExplanations(&sb, result)
	w.writeLinks(&sb, result)
	w.writeFooter(&sb, result)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report, result model.ScanResult) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       CAMPUSSHIELD SCAN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Page:        %s\n", report.Page)
	if w.verbose && !report.ScannedAt.IsZero() {
		fmt.Fprintf(sb, "Scan Date:   %s\n", report.ScannedAt.Format(timeLayout))
	}
	fmt.Fprintf(sb, "Risk Level:  %s\n", strings.ToUpper(result.RiskLevel.String()))
	if !result.IsError() {
		fmt.Fprintf(sb, "Confidence:  %s\n", result.ConfidencePercent())
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeExplanations(sb *strings.Builder, result model.ScanResult) {
	section(sb, "WHY")
	if len(result.Explanations) == 0 {
		sb.WriteString("  No explanation provided\n\n")
		return
	}
	for _, e := range result.Explanations {
		fmt.Fprintf(sb, "  - %s\n", e)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeLinks(sb *strings.Builder, result model.ScanResult) {
	if len(result.SuspiciousLinks) == 0 && !w.verbose {
		return
	}
	section(sb, "SUSPICIOUS LINKS")
	if len(result.SuspiciousLinks) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, l := range result.SuspiciousLinks {
		fmt.Fprintf(sb, "  [!] %s\n", l)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, result model.ScanResult) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	switch result.RiskLevel {
	case model.RiskHigh, model.RiskMedium:
		sb.WriteString("Do not click links or reply until you have verified the sender.\n")
	case model.RiskError:
		sb.WriteString("The scan did not complete. Try again in a moment.\n")
	default:
		sb.WriteString("No strong phishing indicators found.\n")
	}
}

// WriteHistory outputs recorded scans as an aligned list.
func (w *SimpleWriter) WriteHistory(records []store.ScanRecord) (int, error) {
	var sb strings.Builder
	section(&sb, "SCAN HISTORY")
	if len(records) == 0 {
		sb.WriteString("  No scans recorded\n")
		return w.output.Write([]byte(sb.String()))
	}
	for _, r := range records {
		result := r.Result.Normalize()
		fmt.Fprintf(&sb, "  %4d  %s  %-7s  %4s  %s\n",
			r.ID,
			r.Timestamp.Local().Format(timeLayout),
			result.RiskLevel,
			result.ConfidencePercent(),
			r.Origin)
	}

	counts := riskCounts(records)
	sb.WriteString("\n")
	for _, level := range riskOrder {
		if counts[level] > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", strings.ToUpper(level.String()), counts[level])
		}
	}
	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
