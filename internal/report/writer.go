package report

import (
	"io"
	"time"

	"github.com/nao1215/noticescan/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *Report) (int, error)
}

// Report is the outcome of one noticescan invocation.
type Report struct {
	// Version is the noticescan version that generated this report.
	Version string `json:"version,omitempty"`

	// GeneratedAt is when the last run finished.
	GeneratedAt time.Time `json:"generated_at"`

	// Runs holds one summary per site in input order.
	Runs []*model.RunSummary `json:"runs"`

	// Totals sums the runs.
	Totals Totals `json:"totals"`
}

// Totals sums the counters of several runs.
type Totals struct {
	Sites              int `json:"sites"`
	FailedSites        int `json:"failed_sites"`
	Pages              int `json:"pages"`
	Processed          int `json:"processed"`
	Skipped            int `json:"skipped"`
	Failed             int `json:"failed"`
	Attachments        int `json:"attachments"`
	AttachmentFailures int `json:"attachment_failures"`
}

// New builds a report from runs. Nil summaries are ignored.
func New(version string, generatedAt time.Time, runs []*model.RunSummary) *Report {
	r := &Report{Version: version, GeneratedAt: generatedAt}
	for _, s := range runs {
		if s == nil {
			continue
		}
		r.Runs = append(r.Runs, s)
		r.Totals.Sites++
		if s.Status == model.StatusFailed {
			r.Totals.FailedSites++
		}
		r.Totals.Pages += s.Pages
		r.Totals.Processed += s.Processed
		r.Totals.Skipped += s.Skipped
		r.Totals.Failed += s.Failed
		r.Totals.Attachments += s.Attachments
		r.Totals.AttachmentFailures += s.AttachmentFailures
	}
	return r
}

// HasFailures reports whether a site run or an item failed.
func (r *Report) HasFailures() bool {
	return r.Totals.FailedSites > 0 || r.Totals.Failed > 0
}

// MultiWriter writes to multiple Writers, e.g. the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
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

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// StatusText returns the status of a run with its stop reason.
func StatusText(s *model.RunSummary) string {
	if s.StopReason == "" {
		return string(s.Status)
	}
	return string(s.Status) + " (" + s.StopReason + ")"
}
