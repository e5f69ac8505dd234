package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/noticescan/internal/model"
)

// MarkdownWriter outputs reports in Markdown, for sharing run results in
// issues or chat.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("noticescan Run Report")
	md.PlainText("")
	md.PlainTextf("Finished %s, %d site(s).", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"), report.Totals.Sites)
	md.PlainText("")

	w.writeRuns(md, report)
	w.writeChart(md, report)
	w.writeAlert(md, report)
	w.writeErrors(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by noticescan %s*", report.Version)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, report *Report) {
	md.H2("Sites")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Runs)+1)
	for _, s := range report.Runs {
		rows = append(rows, []string{
			"`" + s.Site + "`",
			statusEmoji(s.Status) + " " + StatusText(s),
			strconv.Itoa(s.Pages),
			strconv.Itoa(s.Processed),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Attachments),
			s.Duration.Round(time.Second).String(),
		})
	}
	t := report.Totals
	rows = append(rows, []string{
		"**Total**", "",
		"**" + strconv.Itoa(t.Pages) + "**",
		"**" + strconv.Itoa(t.Processed) + "**",
		"**" + strconv.Itoa(t.Skipped) + "**",
		"**" + strconv.Itoa(t.Failed) + "**",
		"**" + strconv.Itoa(t.Attachments) + "**",
		"",
	})

	md.Table(markdown.TableSet{
		Header: []string{"Site", "Status", "Pages", "Processed", "Skipped", "Failed", "Attachments", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeChart writes a mermaid pie chart of announcement outcomes.
func (w *MarkdownWriter) writeChart(md *markdown.Markdown, report *Report) {
	t := report.Totals
	if t.Processed+t.Skipped+t.Failed == 0 {
		return
	}
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Announcements"),
		piechart.WithShowData(true),
	)
	if t.Processed > 0 {
		chart.LabelAndIntValue("Processed", uint64(t.Processed))
	}
	if t.Skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(t.Skipped))
	}
	if t.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(t.Failed))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *Report) {
	t := report.Totals
	switch {
	case t.FailedSites > 0:
		md.Cautionf("%d site(s) failed. Check the list URL and selectors.", t.FailedSites)
	case t.Failed > 0:
		md.Warningf("%d announcement(s) failed and will be retried on the next run.", t.Failed)
	case t.AttachmentFailures > 0:
		md.Importantf("%d attachment(s) could not be downloaded.", t.AttachmentFailures)
	case t.Processed == 0:
		md.Note("No new announcements.")
	default:
		md.Tip("All announcements processed.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *Report) {
	for _, s := range report.Runs {
		if len(s.Errors) == 0 {
			continue
		}
		md.Details(s.Site+" errors", strings.Join(s.Errors, "\n"))
	}
	md.PlainText("")
}

func statusEmoji(status model.RunStatus) string {
	switch status {
	case model.StatusCompleted:
		return "✅"
	case model.StatusFailed:
		return "❌"
	case model.StatusInterrupted:
		return "⚠️"
	default:
		return "❔"
	}
}
