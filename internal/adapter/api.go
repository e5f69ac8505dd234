package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/model"
)

// Default API item keys.
const (
	DefaultAPITitleKey = "title"
	DefaultAPIIDKey    = "id"
)

// APIAdapter reads announcements from a JSON list endpoint. Detail pages
// are HTML and parsed with the detail selectors.
type APIAdapter struct {
	*board
}

func (a *APIAdapter) endpoint() string {
	if a.cfg.API.URL != "" {
		return a.abs(a.cfg.API.URL)
	}
	return a.cfg.ListURL
}

func (a *APIAdapter) post() bool {
	return a.cfg.API.Method == "" || strings.EqualFold(a.cfg.API.Method, http.MethodPost)
}

// ListURL implements crawler.Adapter. GET endpoints carry the parameters
// in the query.
func (a *APIAdapter) ListURL(page int) string {
	if a.post() {
		return a.endpoint()
	}
	u, err := url.Parse(a.endpoint())
	if err != nil {
		return a.endpoint()
	}
	q := u.Query()
	for k, v := range a.cfg.API.Params {
		q.Set(k, v)
	}
	q.Set(orDefault(a.cfg.API.PageParam, DefaultPageParam), strconv.Itoa(page+a.cfg.Pagination.Offset))
	u.RawQuery = q.Encode()
	return u.String()
}

// ListRequest implements crawler.ListRequester for POST endpoints.
func (a *APIAdapter) ListRequest(page int) *fetch.Request {
	if !a.post() {
		return nil
	}
	return a.formRequest(a.endpoint(), a.cfg.API.Params, orDefault(a.cfg.API.PageParam, DefaultPageParam), page)
}

// ParseList implements crawler.Adapter.
func (a *APIAdapter) ParseList(resp *fetch.Response) ([]model.Announcement, error) {
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}
	items, ok := lookup(doc, a.cfg.API.Items).([]any)
	if !ok {
		return nil, fmt.Errorf("%w at %q", ErrItemsNotFound, a.cfg.API.Items)
	}

	f := a.cfg.API.Fields
	var out []model.Announcement
	for _, it := range items {
		rec, ok := it.(map[string]any)
		if !ok {
			continue
		}
		title := cleanText(field(rec, orDefault(f.Title, DefaultAPITitleKey)))
		if title == "" {
			continue
		}
		ann := model.NewAnnouncement(title, a.locate(rec), len(out)+1)
		for key, k := range map[string]string{
			model.MetaDate:         f.Date,
			model.MetaWriter:       f.Writer,
			model.MetaStatus:       f.Status,
			model.MetaPeriod:       f.Period,
			model.MetaViews:        f.Views,
			model.MetaCategory:     f.Category,
			model.MetaOrganization: f.Organization,
		} {
			if k != "" {
				setMeta(&ann, key, field(rec, k))
			}
		}
		out = append(out, ann)
	}
	return out, nil
}

// locate uses the item's URL field, then the detail URL template.
func (a *APIAdapter) locate(rec map[string]any) model.Locator {
	if k := a.cfg.API.Fields.URL; k != "" {
		if u := a.abs(field(rec, k)); u != "" {
			return model.Locator{URL: u}
		}
	}
	if a.cfg.API.DetailURL == "" {
		return model.Locator{}
	}
	vars := make(map[string]string, len(rec)+1)
	for k := range rec {
		vars[k] = field(rec, k)
	}
	vars["id"] = field(rec, orDefault(a.cfg.API.Fields.ID, DefaultAPIIDKey))
	return model.Locator{URL: a.abs(attachment.Expand(a.cfg.API.DetailURL, vars))}
}

// lookup walks a dotted path through nested objects.
func lookup(doc any, dotted string) any {
	if dotted == "" {
		return doc
	}
	cur := doc
	for _, key := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// field renders a scalar item value as text.
func field(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
