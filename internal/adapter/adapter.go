package adapter

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/crawler"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/model"
)

// StrategyName labels attachments found by adapter selectors.
const StrategyName = "adapter"

var blankRuns = regexp.MustCompile(`\n{3,}`)

// New returns the adapter for cfg.
func New(cfg Config) (crawler.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := newBoard(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Kind() == TypeAPI {
		return &APIAdapter{board: b}, nil
	}
	return &TableAdapter{board: b}, nil
}

// board holds what both adapter types share: URL handling, pagination
// and detail parsing.
type board struct {
	cfg  Config
	base *url.URL
}

func newBoard(cfg Config) (*board, error) {
	base, err := url.Parse(cfg.base())
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.base(), err)
	}
	return &board{cfg: cfg, base: base}, nil
}

// abs resolves ref against the base URL. Script and fragment links
// resolve to "".
func (b *board) abs(ref string) string {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	u, err := b.base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

// pageURL returns listURL for the given page. Page 1 is always listURL
// itself.
func (b *board) pageURL(listURL string, page int) string {
	if page <= 1 {
		return listURL
	}
	n := strconv.Itoa(page + b.cfg.Pagination.Offset)
	switch b.cfg.PaginationType() {
	case PaginateQuery:
		u, err := url.Parse(listURL)
		if err != nil {
			return listURL
		}
		q := u.Query()
		q.Set(b.cfg.Pagination.param(), n)
		u.RawQuery = q.Encode()
		return u.String()
	case PaginatePath:
		return b.abs(attachment.Expand(b.cfg.Pagination.Template, map[string]string{"page": n}))
	default:
		return listURL
	}
}

// formRequest returns a POST of the constant form fields plus the page.
func (b *board) formRequest(target string, fields map[string]string, param string, page int) *fetch.Request {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set(param, strconv.Itoa(page+b.cfg.Pagination.Offset))
	return fetch.PostForm(target, form)
}

// PageLimit implements crawler.PageLimiter. Unpaginated boards have one
// page.
func (b *board) PageLimit() int {
	if b.cfg.PaginationType() == PaginateNone {
		return 1
	}
	return 0
}

// DetailRequest implements crawler.DetailRequester.
func (b *board) DetailRequest(a model.Announcement) (*fetch.Request, error) {
	if a.Locator.URL != "" {
		return fetch.Get(a.Locator.URL), nil
	}
	call := a.Locator.Call
	if call == nil {
		return nil, crawler.ErrNoDetailLocator
	}
	dc := b.cfg.DetailCall
	if dc.Template == "" || (dc.Func != "" && dc.Func != call.Func) {
		return nil, fmt.Errorf("%w: %s", ErrNoDetailCall, call)
	}

	vars := make(map[string]string, len(call.Args))
	keys := make([]string, 0, len(call.Args))
	for i, arg := range call.Args {
		k := strconv.Itoa(i + 1)
		vars[k] = arg
		keys = append(keys, k)
	}
	target := b.abs(attachment.Expand(dc.Template, vars))
	if target == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDetailCall, call)
	}
	if len(dc.Form) == 0 && !strings.EqualFold(dc.Method, http.MethodPost) {
		return fetch.Get(target), nil
	}
	form := url.Values{}
	for k, v := range dc.Form {
		form.Set(k, attachment.Expand(v, vars, keys...))
	}
	return fetch.PostForm(target, form), nil
}

// ParseDetail implements crawler.Adapter. An empty Content lets the
// controller fall back to readability extraction.
func (b *board) ParseDetail(resp *fetch.Response, _ model.Announcement) (*crawler.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}
	sel := b.cfg.Selectors

	detail := &crawler.Detail{Metadata: make(map[string]string)}
	for _, part := range strings.Split(orDefault(sel.Content, DefaultContentSelector), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if text := nodeText(doc.Find(part).First()); text != "" {
			detail.Content = text
			break
		}
	}

	if sel.Attachments != "" {
		base := b.base
		if u, err := url.Parse(resp.URL); err == nil && u.IsAbs() {
			base = u
		}
		matched := doc.Find(sel.Attachments)
		links := matched.Filter("a[href]").AddSelection(matched.Find("a[href]"))
		links.Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
				return
			}
			u, err := base.Parse(href)
			if err != nil {
				return
			}
			name := cleanText(a.Text())
			if name == "" {
				name, _ = url.PathUnescape(path.Base(u.Path))
			}
			detail.Attachments = append(detail.Attachments, model.NewLinkAttachment(name, u.String(), StrategyName))
		})
		detail.Attachments = model.DedupeAttachments(detail.Attachments)
	}

	for key, s := range sel.DetailFields {
		if v := cleanText(doc.Find(s).First().Text()); v != "" {
			detail.Metadata[key] = v
		}
	}
	return detail, nil
}

// nodeText returns the text of s with line breaks after block elements.
func nodeText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	c := s.Clone()
	c.Find("script, style, noscript").Remove()
	c.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6").AfterHtml("\n")
	lines := strings.Split(c.Text(), "\n")
	for i, l := range lines {
		lines[i] = cleanText(l)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// cleanText collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// setMeta stores a non-empty value.
func setMeta(a *model.Announcement, key, value string) {
	if v := cleanText(value); v != "" {
		a.Metadata[key] = v
	}
}
