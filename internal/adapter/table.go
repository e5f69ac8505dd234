package adapter

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/model"
)

// TableAdapter reads announcements from an HTML list table.
type TableAdapter struct {
	*board
}

// ListURL implements crawler.Adapter.
func (t *TableAdapter) ListURL(page int) string {
	return t.pageURL(t.cfg.ListURL, page)
}

// ListRequest implements crawler.ListRequester for form pagination.
func (t *TableAdapter) ListRequest(page int) *fetch.Request {
	if t.cfg.PaginationType() != PaginateForm {
		return nil
	}
	return t.formRequest(t.cfg.ListURL, t.cfg.Pagination.Form, t.cfg.Pagination.param(), page)
}

// ParseList implements crawler.Adapter. Rows without a title link, such
// as headers and "no posts" rows, are skipped.
func (t *TableAdapter) ParseList(resp *fetch.Response) ([]model.Announcement, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse list page: %w", err)
	}
	sel := t.cfg.Selectors

	table := doc.Find(orDefault(sel.Table, DefaultTableSelector)).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoListTable, orDefault(sel.Table, DefaultTableSelector))
	}
	rows := table.Find(orDefault(sel.Rows, DefaultRowsSelector))
	if sel.Skip != "" {
		rows = rows.Not(sel.Skip)
	}

	var out []model.Announcement
	rows.Each(func(_ int, row *goquery.Selection) {
		link := row.Find(orDefault(sel.TitleLink, DefaultTitleLinkSelector)).First()
		if link.Length() == 0 {
			return
		}
		title := cleanText(link.Text())
		if title == "" {
			title = cleanText(link.AttrOr("title", ""))
		}
		if title == "" {
			return
		}

		a := model.NewAnnouncement(title, t.locate(row, link), len(out)+1)
		for key, s := range map[string]string{
			model.MetaDate:         sel.Date,
			model.MetaWriter:       sel.Writer,
			model.MetaStatus:       sel.Status,
			model.MetaPeriod:       sel.Period,
			model.MetaViews:        sel.Views,
			model.MetaCategory:     sel.Category,
			model.MetaOrganization: sel.Organization,
		} {
			if s != "" {
				setMeta(&a, key, row.Find(s).First().Text())
			}
		}
		out = append(out, a)
	})
	return out, nil
}

// locate prefers a configured detail call found in the link or row
// handlers, then the link target.
func (t *TableAdapter) locate(row, link *goquery.Selection) model.Locator {
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if fn := t.cfg.DetailCall.Func; fn != "" {
		src := href + " " + link.AttrOr("onclick", "") + " " + row.AttrOr("onclick", "")
		if calls := attachment.FindCalls(src, fn); len(calls) > 0 {
			call := calls[0]
			return model.Locator{Call: &call}
		}
	}
	return model.Locator{URL: t.abs(href)}
}
