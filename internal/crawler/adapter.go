package crawler

import (
	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/model"
)

// Adapter knows one board's markup.
type Adapter interface {
	// ListURL returns the absolute URL of the 1-based list page.
	ListURL(page int) string

	// ParseList extracts the announcements of a list page in board order.
	ParseList(resp *fetch.Response) ([]model.Announcement, error)

	// ParseDetail extracts the body and the attachments the adapter can
	// see directly. The controller adds the resolver's findings.
	ParseDetail(resp *fetch.Response, a model.Announcement) (*Detail, error)
}

// Detail is the parsed content of a detail page.
type Detail struct {
	// Content is the announcement body as Markdown or plain text.
	Content string

	// Attachments found by the adapter itself. They precede the
	// resolver's results.
	Attachments []model.Attachment

	// Metadata enriches the announcement without overwriting list values.
	Metadata map[string]string
}

// ListRequester is implemented by adapters whose list pages need more
// than a GET of ListURL, such as POST forms.
type ListRequester interface {
	ListRequest(page int) *fetch.Request
}

// DetailRequester is implemented by adapters that build detail requests
// themselves, typically from script-call locators.
type DetailRequester interface {
	DetailRequest(a model.Announcement) (*fetch.Request, error)
}

// StrategyOverrider is implemented by adapters that replace or remove
// attachment resolver strategies by name. A nil strategy removes the stage.
type StrategyOverrider interface {
	Strategies() map[string]attachment.Strategy
}

// PageLimiter is implemented by adapters of boards with a fixed number of
// list pages, such as unpaginated boards. A positive limit lowers the
// controller's page limit.
type PageLimiter interface {
	PageLimit() int
}

// listRequest returns the request for a list page.
func listRequest(a Adapter, page int) *fetch.Request {
	if lr, ok := a.(ListRequester); ok {
		if req := lr.ListRequest(page); req != nil {
			return req
		}
	}
	return fetch.Get(a.ListURL(page))
}

// detailRequest returns the request for an announcement's detail page.
func detailRequest(a Adapter, ann model.Announcement) (*fetch.Request, error) {
	if dr, ok := a.(DetailRequester); ok {
		return dr.DetailRequest(ann)
	}
	if ann.Locator.URL == "" {
		return nil, ErrNoDetailLocator
	}
	return fetch.Get(ann.Locator.URL), nil
}
