package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"path/filepath"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/nao1215/markdown"
	"github.com/spf13/afero"

	"github.com/nao1215/noticescan/internal/filename"
	"github.com/nao1215/noticescan/internal/model"
)

// Artifact layout.
const (
	// ContentFile is the rendered announcement inside its directory.
	ContentFile = "content.md"

	// AttachmentDir holds downloaded files inside the directory.
	AttachmentDir = "attachments"

	// maxTitleRunes bounds the title part of a directory name.
	maxTitleRunes = 150

	// placeholderContent replaces a body that could not be extracted.
	placeholderContent = "본문 내용을 추출할 수 없습니다."
)

// metaLabels orders the metadata lines of content.md.
var metaLabels = []struct {
	key   string
	label string
}{
	{model.MetaWriter, "작성자"},
	{model.MetaDate, "작성일"},
	{model.MetaPeriod, "접수기간"},
	{model.MetaStatus, "상태"},
	{model.MetaOrganization, "기관"},
	{model.MetaCategory, "분류"},
	{model.MetaViews, "조회수"},
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ArtifactWriter stores one directory per processed announcement.
type ArtifactWriter struct {
	fs   afero.Fs
	root string
}

// NewArtifactWriter writes below root on fs.
func NewArtifactWriter(fs afero.Fs, root string) *ArtifactWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ArtifactWriter{fs: fs, root: root}
}

// Fs returns the filesystem artifacts are written to.
func (w *ArtifactWriter) Fs() afero.Fs {
	return w.fs
}

// Root returns the output root.
func (w *ArtifactWriter) Root() string {
	return w.root
}

// Dir returns the directory of the index-th announcement of a run:
// "NNN_<sanitized title>".
func (w *ArtifactWriter) Dir(index int, title string) string {
	name := filename.Sanitize(title)
	if r := []rune(name); len(r) > maxTitleRunes {
		name = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	if name == "" {
		name = "untitled"
	}
	return filepath.Join(w.root, fmt.Sprintf("%03d_%s", index, name))
}

// WriteContent renders the announcement into dir/content.md and returns
// the file path.
func (w *ArtifactWriter) WriteContent(dir string, a model.Announcement, sourceURL, body string) (string, error) {
	if err := w.fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)
	md.H1(a.Title)
	md.PlainText("")
	for _, line := range metaLines(a.Metadata) {
		md.PlainTextf("%s: %s", markdown.Bold(line[0]), line[1])
	}
	if sourceURL != "" {
		md.PlainTextf("%s: %s", markdown.Bold("원본 URL"), sourceURL)
	}
	md.PlainText("")
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText(body)
	if err := md.Build(); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", ContentFile, err)
	}

	path := filepath.Join(dir, ContentFile)
	if err := afero.WriteFile(w.fs, path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// metaLines returns label/value pairs for the non-empty metadata: the
// known keys in metaLabels order, then every other key sorted by name.
func metaLines(meta map[string]string) [][2]string {
	var lines [][2]string
	known := make(map[string]bool, len(metaLabels))
	for _, m := range metaLabels {
		known[m.key] = true
		if v := strings.TrimSpace(meta[m.key]); v != "" {
			lines = append(lines, [2]string{m.label, v})
		}
	}
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		if known[k] {
			continue
		}
		if v := strings.TrimSpace(meta[k]); v != "" && strings.TrimSpace(k) != "" {
			lines = append(lines, [2]string{k, v})
		}
	}
	return lines
}

// bodyText returns content when it has text, else the readable text of the
// page, else a placeholder.
func bodyText(content, html, pageURL string) string {
	if strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	if text := readableText(html, pageURL); text != "" {
		return text
	}
	return placeholderContent
}

// readableText extracts the main article text of a page.
func readableText(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return ""
	}
	doc.Find("p, div, br, li, tr, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
