package model

import (
	"errors"
	"strings"
)

// Well-known metadata keys. Adapters may add any other key.
const (
	MetaDate         = "date"
	MetaWriter       = "writer"
	MetaViews        = "views"
	MetaStatus       = "status"
	MetaCategory     = "category"
	MetaPeriod       = "period"
	MetaOrganization = "organization"
)

// ErrEmptyTitle is returned when an announcement has no title.
var ErrEmptyTitle = errors.New("announcement title is empty")

// Locator identifies how to retrieve an announcement's detail page.
// Exactly one of URL or Call is set.
type Locator struct {
	// URL is the absolute detail page URL.
	URL string `json:"url,omitempty"`

	// Call is set when the board only exposes a script call such as
	// onclick="fn_view('123','A')" instead of a link.
	Call *ScriptCall `json:"call,omitempty"`
}

// IsZero reports whether the locator carries no information.
func (l Locator) IsZero() bool {
	return l.URL == "" && l.Call == nil
}

// String returns a printable form of the locator for logs.
func (l Locator) String() string {
	if l.URL != "" {
		return l.URL
	}
	if l.Call != nil {
		return l.Call.String()
	}
	return ""
}

// ScriptCall is a parsed JavaScript function call.
type ScriptCall struct {
	Func string   `json:"func"`
	Args []string `json:"args"`
}

// String renders the call as fn('a','b').
func (c ScriptCall) String() string {
	quoted := make([]string, len(c.Args))
	for i, a := range c.Args {
		quoted[i] = "'" + a + "'"
	}
	return c.Func + "(" + strings.Join(quoted, ",") + ")"
}

// Announcement is one notice on a board.
// It is created by list parsing and only its metadata may change afterwards.
type Announcement struct {
	// Title is the display and identity text of the notice.
	Title string `json:"title"`

	// Locator identifies the detail page.
	Locator Locator `json:"locator"`

	// Ordinal is the 1-based position within its listing page.
	Ordinal int `json:"ordinal"`

	// Metadata holds optional fields such as date, writer and views.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewAnnouncement returns an announcement with a trimmed title and an
// initialized metadata map.
func NewAnnouncement(title string, locator Locator, ordinal int) Announcement {
	return Announcement{
		Title:    strings.TrimSpace(title),
		Locator:  locator,
		Ordinal:  ordinal,
		Metadata: make(map[string]string),
	}
}

// Validate reports whether the announcement can be processed.
func (a Announcement) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Enrich copies metadata from the detail page. Existing keys are never
// overwritten and empty values are ignored.
func (a *Announcement) Enrich(meta map[string]string) {
	if len(meta) == 0 {
		return
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if cur, ok := a.Metadata[k]; ok && cur != "" {
			continue
		}
		a.Metadata[k] = v
	}
}
