package attachment

import (
	"context"
	"regexp"
	"strings"

	"github.com/nao1215/noticescan/internal/model"
)

// TextStrategy recovers file names written in the body text, e.g.
// "붙임 1. 신청서.hwp". Without a name download template the results are
// advisory: they name a file but cannot fetch it.
type TextStrategy struct {
	pattern  *regexp.Regexp
	template string
}

// NewTextStrategy returns the text-pattern strategy for the given extensions.
func NewTextStrategy(exts []string, nameTemplate string) *TextStrategy {
	alts := make([]string, 0, len(exts))
	for _, e := range exts {
		alts = append(alts, regexp.QuoteMeta(strings.TrimPrefix(strings.ToLower(e), ".")))
	}
	pattern := regexp.MustCompile(`(?i)(?:첨부파일|첨부|붙임|파일명|파일)\s*[:：]?\s*(?:\d+[.)]\s*)?` +
		`([^\s<>:"'|][^<>:"'|\n\r]*?\.(?:` + strings.Join(alts, "|") + `))\b`)
	return &TextStrategy{pattern: pattern, template: nameTemplate}
}

// Name implements Strategy.
func (s *TextStrategy) Name() string { return NameText }

// Resolve implements Strategy.
func (s *TextStrategy) Resolve(_ context.Context, page *Page) ([]model.Attachment, error) {
	text := blockText(page)

	var out []model.Attachment
	for _, m := range s.pattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if len([]rune(name)) <= 4 {
			continue
		}
		att := model.Attachment{DisplayName: name, Strategy: NameText, Advisory: true}
		if s.template != "" {
			if u := page.Abs(Expand(s.template, map[string]string{"name": name})); u != "" {
				att.Candidates = []model.Candidate{{URL: u}}
				att.Advisory = false
			}
		}
		out = append(out, att)
	}
	return out, nil
}

// blockText returns the page text with line breaks after block elements,
// so that names do not run into the following paragraph.
func blockText(page *Page) string {
	sel := page.Doc.Selection.Clone()
	sel.Find("script, style, noscript").Remove()
	sel.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6").AfterHtml("\n")
	return sel.Text()
}
