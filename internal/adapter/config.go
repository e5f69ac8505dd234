package adapter

import (
	"fmt"
	"strings"

	"github.com/nao1215/noticescan/internal/attachment"
)

// Adapter types.
const (
	TypeTable = "table"
	TypeAPI   = "api"
)

// Pagination types.
const (
	PaginateQuery = "query"
	PaginatePath  = "path"
	PaginateForm  = "form"
	PaginateNone  = "none"
)

// DefaultPageParam is the query or form field carrying the page number.
const DefaultPageParam = "page"

// Default selectors.
const (
	DefaultTableSelector     = "table"
	DefaultRowsSelector      = "tbody tr"
	DefaultTitleLinkSelector = "a"
	DefaultContentSelector   = ".view_content, .board_view, .view_cont, .bbs_view, .board-view, #contents .content, article"
)

// Config describes one board for the configurable adapters.
type Config struct {
	// Type is "table" (default) or "api".
	Type string `yaml:"type"`

	// BaseURL resolves relative links. Defaults to the list URL.
	BaseURL string `yaml:"base_url"`

	// ListURL is the first list page.
	ListURL string `yaml:"list_url"`

	// Pagination describes how later list pages are requested.
	Pagination Pagination `yaml:"pagination"`

	// Selectors locate list and detail fields.
	Selectors Selectors `yaml:"selectors"`

	// DetailCall turns script-call locators into detail requests.
	DetailCall attachment.CallPattern `yaml:"detail_call"`

	// API configures the JSON list endpoint of api boards.
	API API `yaml:"api"`
}

// Pagination describes list page requests.
type Pagination struct {
	// Type is query (default), path, form or none.
	Type string `yaml:"type"`

	// Param is the page field name. Defaults to "page".
	Param string `yaml:"param"`

	// Template builds path pagination URLs; {page} is replaced.
	Template string `yaml:"template"`

	// Form holds the constant fields of form pagination.
	Form map[string]string `yaml:"form"`

	// Offset is added to the 1-based page number, for zero-based boards.
	Offset int `yaml:"offset"`
}

// Selectors are CSS selectors for list and detail pages.
type Selectors struct {
	// Table is the list table. Defaults to "table".
	Table string `yaml:"table"`

	// Rows selects the announcement rows within Table.
	Rows string `yaml:"rows"`

	// Skip excludes rows, e.g. pinned notices repeated on every page.
	Skip string `yaml:"skip"`

	// TitleLink selects the link holding the title within a row.
	TitleLink string `yaml:"title_link"`

	// List fields within a row.
	Date         string `yaml:"date"`
	Writer       string `yaml:"writer"`
	Status       string `yaml:"status"`
	Period       string `yaml:"period"`
	Views        string `yaml:"views"`
	Category     string `yaml:"category"`
	Organization string `yaml:"organization"`

	// Content selects the detail body; the first match with text wins.
	Content string `yaml:"content"`

	// Attachments selects attachment links on the detail page.
	Attachments string `yaml:"attachments"`

	// DetailFields maps metadata keys to detail page selectors.
	DetailFields map[string]string `yaml:"detail_fields"`
}

// API configures a JSON list endpoint.
type API struct {
	// URL is the endpoint. Defaults to the list URL.
	URL string `yaml:"url"`

	// Method is GET or POST (default).
	Method string `yaml:"method"`

	// Params are constant request parameters.
	Params map[string]string `yaml:"params"`

	// PageParam carries the page number. Defaults to "page".
	PageParam string `yaml:"page_param"`

	// Items is the dotted path to the item array, e.g. "data.list".
	// Empty means the document itself is the array.
	Items string `yaml:"items"`

	// Fields maps announcement fields to item keys.
	Fields APIFields `yaml:"fields"`

	// DetailURL builds detail URLs; {id} and any item key in braces are
	// replaced.
	DetailURL string `yaml:"detail_url"`
}

// APIFields names the item keys of an API board.
type APIFields struct {
	Title        string `yaml:"title"`
	ID           string `yaml:"id"`
	URL          string `yaml:"url"`
	Date         string `yaml:"date"`
	Writer       string `yaml:"writer"`
	Status       string `yaml:"status"`
	Period       string `yaml:"period"`
	Views        string `yaml:"views"`
	Category     string `yaml:"category"`
	Organization string `yaml:"organization"`
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch c.Kind() {
	case TypeTable:
		if c.ListURL == "" {
			return ErrNoListURL
		}
	case TypeAPI:
		if c.ListURL == "" && c.API.URL == "" {
			return ErrNoListURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	switch c.PaginationType() {
	case PaginateQuery, PaginateForm, PaginateNone:
	case PaginatePath:
		if c.Pagination.Template == "" {
			return ErrNoPathTemplate
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPagination, c.Pagination.Type)
	}
	return nil
}

// Kind returns the board type, TypeTable when unset.
func (c Config) Kind() string {
	if c.Type == "" {
		return TypeTable
	}
	return strings.ToLower(c.Type)
}

// PaginationType returns the pagination type, PaginateQuery when unset.
func (c Config) PaginationType() string {
	if c.Pagination.Type == "" {
		return PaginateQuery
	}
	return strings.ToLower(c.Pagination.Type)
}

func (c Config) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.ListURL != "" {
		return c.ListURL
	}
	return c.API.URL
}

func (p Pagination) param() string {
	if p.Param == "" {
		return DefaultPageParam
	}
	return p.Param
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
