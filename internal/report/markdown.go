package report

import (
	"io"
	"strconv"

	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/store"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for forwarding a verdict to a help desk.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, GitHub-flavored alerts and mermaid
// charts without hand-written escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)
	result := report.Result.Normalize()

	md.H1("CampusShield Scan Report")
	md.PlainText("")

	rows := [][]string{
		{"Page", "`" + report.Page + "`"},
		{"Risk Level", riskBadge(result.RiskLevel)},
		{"Confidence", result.ConfidencePercent()},
	}
	if !report.ScannedAt.IsZero() {
		rows = append(rows, []string{"Scan Date", report.ScannedAt.Format(timeLayout)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, result)

	md.H2("Why")
	md.PlainText("")
	if len(result.Explanations) == 0 {
		md.PlainText("No explanation provided.")
	} else {
		md.BulletList(result.Explanations...)
	}
	md.PlainText("")

	md.H2("Suspicious Links")
	md.PlainText("")
	if len(result.SuspiciousLinks) == 0 {
		md.PlainText("No suspicious links flagged.")
	} else {
		links := make([]string, 0, len(result.SuspiciousLinks))
		for _, l := range result.SuspiciousLinks {
			links = append(links, "`"+l+"`")
		}
		md.BulletList(links...)
	}
	md.PlainText("")

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteHistory outputs recorded scans as a table with a risk distribution
// chart.
func (w *MarkdownWriter) WriteHistory(records []store.ScanRecord) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("CampusShield Scan History")
	md.PlainText("")

	if len(records) == 0 {
		md.PlainText("No scans recorded.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		result := r.Result.Normalize()
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.Local().Format(timeLayout),
			riskBadge(result.RiskLevel),
			result.ConfidencePercent(),
			"`" + r.Origin + "`",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Date", "Risk", "Confidence", "Origin"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, riskCounts(records))
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.RiskLevel]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Risk Distribution"),
		piechart.WithShowData(true),
	)
	for _, level := range riskOrder {
		if counts[level] > 0 {
			chart.LabelAndIntValue(level.String(), uint64(counts[level]))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the verdict.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, result model.ScanResult) {
	switch result.RiskLevel {
	case model.RiskHigh:
		md.Cautionf("This e-mail is very likely phishing (%s confidence). Do not click its links.",
			result.ConfidencePercent())
	case model.RiskMedium:
		md.Warningf("This e-mail shows phishing indicators (%s confidence). Verify the sender before acting.", result.ConfidencePercent())
	case model.RiskError:
		md.Importantf("The scan did not complete: %s", firstExplanation(result))
	case model.RiskLow:
		md.Tip("No strong phishing indicators found.")
	default:
		md.Note("The scanner could not classify this e-mail.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [CampusShield](https://github.com/nao1215/campusshield)*")
}

func riskBadge(level model.RiskLevel) string {
	switch level {
	case model.RiskHigh:
		return "🔴 High"
	case model.RiskMedium:
		return "🟠 Medium"
	case model.RiskLow:
		return "🟢 Low"
	case model.RiskError:
		return "❌ Error"
	default:
		return "⚪ " + level.String()
	}
}

func firstExplanation(result model.ScanResult) string {
	if len(result.Explanations) == 0 {
		return "unknown failure"
	}
	return result.Explanations[0]
}
