package attachment

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/noticescan/internal/model"
)

var (
	sizeText     = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*(?:bytes?|kb|mb|gb)\b`)
	downloadHint = regexp.MustCompile(`(?i)down|file|attach|atch`)
)

// TableStrategy reads name and link pairs from file tables inside known
// containers such as the DEXT5 multi-file widget.
type TableStrategy struct {
	selectors []string
}

// NewTableStrategy returns the embedded-table strategy.
func NewTableStrategy(selectors []string) *TableStrategy {
	return &TableStrategy{selectors: selectors}
}

// Name implements Strategy.
func (s *TableStrategy) Name() string { return NameTable }

// Resolve implements Strategy.
func (s *TableStrategy) Resolve(_ context.Context, page *Page) ([]model.Attachment, error) {
	var out []model.Attachment
	for _, sel := range s.selectors {
		page.Doc.Find(sel).Each(func(_ int, container *goquery.Selection) {
			rows := container.Find("tr")
			if rows.Length() == 0 {
				rows = container.Find("li")
			}
			rows.Each(func(_ int, row *goquery.Selection) {
				if row.Find("th").Length() > 0 && row.Find("td").Length() == 0 {
					return
				}
				link := row.Find("a[href]").First()
				if link.Length() == 0 {
					return
				}
				href := page.Abs(link.AttrOr("href", ""))
				if href == "" {
					return
				}
				name := cleanText(link.Text())
				if name == "" {
					name = cleanText(row.Find("td").First().Text())
				}
				if name == "" {
					return
				}
				att := model.NewLinkAttachment(name, href, NameTable)
				att.Size = sizeText.FindString(row.Text())
				out = append(out, att)
			})
		})
	}
	return out, nil
}

// ContainerStrategy collects download-looking anchors inside elements whose
// class or id looks like a file section.
type ContainerStrategy struct {
	pattern *regexp.Regexp
	exts    []string
}

// NewContainerStrategy returns the heuristic-container strategy. An invalid
// pattern falls back to DefaultContainerPattern.
func NewContainerStrategy(pattern string, exts []string) *ContainerStrategy {
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(DefaultContainerPattern)
	}
	return &ContainerStrategy{pattern: re, exts: exts}
}

// Name implements Strategy.
func (s *ContainerStrategy) Name() string { return NameContainer }

// Resolve implements Strategy.
func (s *ContainerStrategy) Resolve(_ context.Context, page *Page) ([]model.Attachment, error) {
	var out []model.Attachment
	page.Doc.Find("[class], [id]").Each(func(_ int, el *goquery.Selection) {
		if goquery.NodeName(el) == "a" {
			return
		}
		if !s.pattern.MatchString(el.AttrOr("class", "")) && !s.pattern.MatchString(el.AttrOr("id", "")) {
			return
		}
		el.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := page.Abs(a.AttrOr("href", ""))
			if href == "" {
				return
			}
			text := cleanText(a.Text())
			if text == "" || !s.looksLikeFile(href, text) {
				return
			}
			u, _ := url.Parse(href)
			out = append(out, model.NewLinkAttachment(linkName(text, u, s.exts), href, NameContainer))
		})
	})
	return out, nil
}

func (s *ContainerStrategy) looksLikeFile(href, name string) bool {
	if hasExtension(model.StripSizeAnnotation(name), s.exts) {
		return true
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return hasExtension(u.Path, s.exts) || downloadHint.MatchString(u.Path) || downloadHint.MatchString(u.RawQuery)
}

// DirectStrategy collects anchors whose path ends in a document extension.
type DirectStrategy struct {
	exts []string
}

// NewDirectStrategy returns the direct-link strategy.
func NewDirectStrategy(exts []string) *DirectStrategy {
	return &DirectStrategy{exts: exts}
}

// Name implements Strategy.
func (s *DirectStrategy) Name() string { return NameDirect }

// Resolve implements Strategy.
func (s *DirectStrategy) Resolve(_ context.Context, page *Page) ([]model.Attachment, error) {
	var out []model.Attachment
	page.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := page.Abs(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil || !hasExtension(u.Path, s.exts) {
			return
		}
		out = append(out, model.NewLinkAttachment(linkName(a.Text(), u, s.exts), href, NameDirect))
	})
	return out, nil
}

// linkName names an anchor: its text, completed with the URL extension when
// the text has none, or the unescaped last path segment when it is empty.
// Every link strategy uses it so that the same anchor dedupes.
func linkName(text string, u *url.URL, exts []string) string {
	name := cleanText(text)
	if u == nil {
		return name
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case name == "":
		if base, err := url.PathUnescape(path.Base(u.Path)); err == nil {
			return base
		}
		return path.Base(u.Path)
	case hasExtension(ext, exts) && !hasExtension(model.StripSizeAnnotation(name), exts):
		return model.StripSizeAnnotation(name) + ext
	default:
		return name
	}
}

// cleanText collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
