package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/campusshield/internal/model"
	"github.com/nao1215/campusshield/internal/store"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in JSON format.
func (w *JSONWriter) Write(report *Report) (int, error) {
	r := *report
	r.Result = r.Result.Normalize()
	return w.writeJSON(r)
}

// historyEntry is the JSON shape of one recorded scan.
type historyEntry struct {
	ID        int64            `json:"id"`
	Origin    string           `json:"origin"`
	Timestamp string           `json:"timestamp"`
	Result    model.ScanResult `json:"result"`
}

// WriteHistory outputs the recorded scans as a JSON array.
func (w *JSONWriter) WriteHistory(records []store.ScanRecord) (int, error) {
	entries := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, historyEntry{
			ID:        r.ID,
			Origin:    r.Origin,
			Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Result:    r.Result.Normalize(),
		})
	}
	return w.writeJSON(entries)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')
	return w.output.Write(data)
}
