// Package attachment finds the files attached to an announcement detail
// page. A Resolver runs an ordered chain of strategies, unions their
// results and removes duplicates. A failing or panicking strategy is logged
// and skipped; it never hides the results of the others.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/noticescan/internal/model"
)

// Strategy names.
const (
	NameWidget    = "upload-widget"
	NameTable     = "embedded-table"
	NameContainer = "heuristic-container"
	NameScript    = "script-call"
	NameDirect    = "direct-link"
	NameText      = "text-pattern"
	NameProbe     = "existence-probe"
)

// ErrInvalidPage is returned by NewPage for unusable input.
var ErrInvalidPage = errors.New("invalid detail page")

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is a parsed detail page.
type Page struct {
	// URL is the page location, used to resolve relative links.
	URL *url.URL

	// Doc is the parsed document.
	Doc *goquery.Document

	// HTML is the raw markup.
	HTML string
}

// NewPage parses html fetched from rawURL.
func NewPage(rawURL, html string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: bad URL %q", ErrInvalidPage, rawURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPage, err)
	}
	return &Page{URL: u, Doc: doc, HTML: html}, nil
}

// Abs resolves ref against the page URL. It returns "" for empty, anchor,
// javascript: and mailto: references.
func (p *Page) Abs(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	u, err := p.URL.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

// Origin returns scheme://host of the page.
func (p *Page) Origin() string {
	return p.URL.Scheme + "://" + p.URL.Host
}

// Strategy extracts attachments from a page.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, page *Page) ([]model.Attachment, error)
}

// stage is a strategy with its run condition.
type stage struct {
	strategy Strategy

	// fallback stages run only while nothing downloadable was found.
	fallback bool
}

// Resolver runs the strategy chain.
type Resolver struct {
	stages    []stage
	overrides map[string]Strategy
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOverrides replaces strategies by name. A nil strategy removes the
// named stage.
func WithOverrides(overrides map[string]Strategy) Option {
	return func(r *Resolver) {
		r.overrides = overrides
	}
}

// NewResolver builds the default chain from cfg. client serves the widget
// list API and the existence probes.
func NewResolver(client Doer, cfg Config, opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.stages = defaultChain(client, cfg, r.logger)
	r.Override(r.overrides)
	return r
}

// defaultChain returns the seven strategies in order.
func defaultChain(client Doer, cfg Config, logger *slog.Logger) []stage {
	cfg = cfg.withDefaults()
	return []stage{
		{strategy: NewWidgetStrategy(client, cfg.Widget, logger)},
		{strategy: NewTableStrategy(cfg.TableSelectors)},
		{strategy: NewContainerStrategy(cfg.ContainerPattern, cfg.Extensions)},
		{strategy: NewScriptStrategy(cfg.ScriptCalls)},
		{strategy: NewDirectStrategy(cfg.Extensions)},
		{strategy: NewTextStrategy(cfg.Extensions, cfg.NameDownloadTemplate), fallback: true},
		{strategy: NewProbeStrategy(client, cfg.Probe, cfg.KnownFiles, logger), fallback: true},
	}
}

// Override replaces strategies by name. A nil strategy removes the stage.
func (r *Resolver) Override(overrides map[string]Strategy) {
	for name, s := range overrides {
		r.replace(name, s)
	}
}

func (r *Resolver) replace(name string, s Strategy) {
	for i, st := range r.stages {
		if st.strategy.Name() != name {
			continue
		}
		if s == nil {
			r.stages = append(r.stages[:i], r.stages[i+1:]...)
			return
		}
		r.stages[i].strategy = named{name: name, Strategy: s}
		return
	}
	r.logger.Warn("unknown attachment strategy override", "strategy", name)
}

// Names lists the strategies in order.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.stages))
	for _, s := range r.stages {
		names = append(names, s.strategy.Name())
	}
	return names
}

// Resolve runs every applicable strategy and returns the deduplicated union.
func (r *Resolver) Resolve(ctx context.Context, page *Page) []model.Attachment {
	var all []model.Attachment
	for _, st := range r.stages {
		if ctx.Err() != nil {
			break
		}
		if st.fallback && anyDownloadable(all) {
			continue
		}
		found := r.run(ctx, st.strategy, page)
		if len(found) > 0 {
			r.logger.Debug("attachments found",
				"strategy", st.strategy.Name(),
				"count", len(found),
				"url", page.URL.String(),
			)
		}
		all = append(all, found...)
	}
	return model.DedupeAttachments(all)
}

// run executes one strategy inside its own error and panic boundary.
func (r *Resolver) run(ctx context.Context, s Strategy, page *Page) (out []model.Attachment) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("attachment strategy panicked",
				"strategy", s.Name(),
				"url", page.URL.String(),
				"panic", fmt.Sprint(rec),
			)
			out = nil
		}
	}()

	found, err := s.Resolve(ctx, page)
	if err != nil {
		r.logger.Warn("attachment strategy failed",
			"strategy", s.Name(),
			"url", page.URL.String(),
			"error", err,
		)
	}
	for i := range found {
		if found[i].Strategy == "" {
			found[i].Strategy = s.Name()
		}
	}
	return found
}

func anyDownloadable(atts []model.Attachment) bool {
	for _, a := range atts {
		if a.Downloadable() && !a.Advisory {
			return true
		}
	}
	return false
}

// named pins the name of an override to the stage it replaces.
type named struct {
	Strategy
	name string
}

func (n named) Name() string { return n.name }
