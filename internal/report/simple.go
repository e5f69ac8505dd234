package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/noticescan/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists item errors under each site.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with item errors.
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

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	for _, s := range report.Runs {
		w.writeRun(&sb, s)
	}
	w.writeTotals(&sb, report)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        NOTICESCAN RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
	fmt.Fprintf(sb, "Finished:       %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Sites:          %d\n\n", report.Totals.Sites)
}

func (w *SimpleWriter) writeRun(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "[%s] %s\n", Indicator(s.Status), s.Site)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Status:       %s\n", StatusText(s))
	fmt.Fprintf(sb, "  List pages:   %d\n", s.Pages)
	fmt.Fprintf(sb, "  Processed:    %d\n", s.Processed)
	fmt.Fprintf(sb, "  Skipped:      %d\n", s.Skipped)
	fmt.Fprintf(sb, "  Failed:       %d\n", s.Failed)
	fmt.Fprintf(sb, "  Attachments:  %d saved, %d failed\n", s.Attachments, s.AttachmentFailures)
	fmt.Fprintf(sb, "  Known titles: %d\n", s.KnownTitles)
	fmt.Fprintf(sb, "  Duration:     %s\n", s.Duration.Round(time.Millisecond))

	if w.verbose && len(s.Errors) > 0 {
		sb.WriteString("  Errors:\n")
		for _, e := range s.Errors {
			fmt.Fprintf(sb, "    * %s\n", e)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, report *Report) {
	t := report.Totals
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "TOTAL: %d processed, %d skipped, %d failed, %d attachment(s) saved",
		t.Processed, t.Skipped, t.Failed, t.Attachments)
	if t.FailedSites > 0 {
		fmt.Fprintf(sb, ", %d site(s) failed", t.FailedSites)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// Indicator returns the text marker of a run status.
func Indicator(status model.RunStatus) string {
	switch status {
	case model.StatusCompleted:
		return "+"
	case model.StatusFailed:
		return "!!"
	case model.StatusInterrupted:
		return "!"
	default:
		return "?"
	}
}
