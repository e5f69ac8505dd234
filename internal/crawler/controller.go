package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/download"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/metrics"
	"github.com/nao1215/noticescan/internal/model"
	"github.com/nao1215/noticescan/internal/pipeline"
)

// Defaults.
const (
	DefaultMaxPages  = 4
	DefaultItemDelay = time.Second
	DefaultPageDelay = 2 * time.Second
	DefaultOutputDir = "output"
)

// Step names of the per-announcement pipeline.
const (
	StepFetchDetail = "fetch-detail"
	StepExtract     = "extract"
	StepPersist     = "persist"
	StepDownload    = "download"
	StepCommit      = "commit"
)

// Controller runs crawls of one site. A Controller is used by one
// goroutine at a time.
type Controller struct {
	site       string
	adapter    Adapter
	fetcher    fetch.Fetcher
	tracker    *dedup.Tracker
	resolver   *attachment.Resolver
	downloader *download.Downloader
	writer     *ArtifactWriter
	metrics    *metrics.Collector
	logger     *slog.Logger

	maxPages  int
	itemDelay time.Duration
	pageDelay time.Duration
	now       func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxPages limits the number of list pages. Zero or less means no
// limit.
func WithMaxPages(n int) Option {
	return func(c *Controller) {
		c.maxPages = n
	}
}

// WithDelays sets the sleeps between announcements and between list pages.
func WithDelays(item, page time.Duration) Option {
	return func(c *Controller) {
		c.itemDelay = item
		c.pageDelay = page
	}
}

// WithResolver sets the attachment resolver.
func WithResolver(r *attachment.Resolver) Option {
	return func(c *Controller) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithDownloader sets the attachment downloader.
func WithDownloader(d *download.Downloader) Option {
	return func(c *Controller) {
		if d != nil {
			c.downloader = d
		}
	}
}

// WithArtifactWriter sets where announcement directories are written.
func WithArtifactWriter(w *ArtifactWriter) Option {
	return func(c *Controller) {
		if w != nil {
			c.writer = w
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock overrides the run timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Controller for site. The resolver and downloader default
// to the fetcher's HTTP client when it exposes one, so that cookies are
// shared; artifacts default to output/<site> on the OS filesystem.
func New(site string, adapter Adapter, fetcher fetch.Fetcher, tracker *dedup.Tracker, opts ...Option) *Controller {
	c := &Controller{
		site:      site,
		adapter:   adapter,
		fetcher:   fetcher,
		tracker:   tracker,
		logger:    slog.Default(),
		maxPages:  DefaultMaxPages,
		itemDelay: DefaultItemDelay,
		pageDelay: DefaultPageDelay,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("site", site)

	client := http.DefaultClient
	if hc, ok := fetcher.(interface{ Client() *http.Client }); ok && hc.Client() != nil {
		client = hc.Client()
	}
	if c.resolver == nil {
		c.resolver = attachment.NewResolver(client, attachment.Config{}, attachment.WithLogger(c.logger))
	}
	if c.downloader == nil {
		c.downloader = download.New(client, download.WithLogger(c.logger))
	}
	if c.writer == nil {
		c.writer = NewArtifactWriter(afero.NewOsFs(), filepath.Join(DefaultOutputDir, site))
	}
	if pl, ok := adapter.(PageLimiter); ok {
		if n := pl.PageLimit(); n > 0 && (c.maxPages <= 0 || n < c.maxPages) {
			c.maxPages = n
		}
	}
	if so, ok := adapter.(StrategyOverrider); ok {
		c.resolver.Override(so.Strategies())
	}
	return c
}

// Run crawls the site once and returns its summary. It never panics on
// site errors; the duplicate record is flushed on every path that loaded
// it, including cancellation.
func (c *Controller) Run(ctx context.Context) *model.RunSummary {
	summary := model.NewRunSummary(c.site, c.now())
	defer func() {
		summary.Duration = c.now().Sub(summary.StartedAt)
		c.metrics.Run(c.site, string(summary.Status))
		c.logger.Info("run finished",
			"status", summary.Status,
			"reason", summary.StopReason,
			"pages", summary.Pages,
			"processed", summary.Processed,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"attachments", summary.Attachments,
			"new_titles", c.tracker.Added(),
		)
	}()

	if err := c.tracker.Load(ctx); err != nil {
		c.logger.Error("duplicate record unavailable", "error", err)
		summary.Status = model.StatusFailed
		summary.StopReason = err.Error()
		summary.AddError(err.Error())
		return summary
	}

	c.crawl(ctx, summary)

	if err := c.tracker.Flush(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("duplicate record not saved", "error", err)
		summary.AddError(err.Error())
	}
	summary.KnownTitles = c.tracker.Len()
	if summary.Status == model.StatusRunning {
		summary.Status = model.StatusCompleted
	}
	return summary
}

// crawl is the pagination loop. It sets the stop reason and, for failures
// and cancellation, the final status.
func (c *Controller) crawl(ctx context.Context, summary *model.RunSummary) {
	index := 0
	for page := 1; ; page++ {
		if c.maxPages > 0 && page > c.maxPages {
			summary.StopReason = model.StopPageLimit
			return
		}
		if page > 1 {
			if err := pipeline.Sleep(ctx, c.pageDelay); err != nil {
				c.interrupt(summary)
				return
			}
		}
		if ctx.Err() != nil {
			c.interrupt(summary)
			return
		}

		items, err := c.fetchList(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				c.interrupt(summary)
				return
			}
			c.logger.Warn("list page fetch failed", "page", page, "error", err)
			summary.StopReason = model.StopFetchFailed
			summary.AddError(fmt.Sprintf("page %d: %v", page, err))
			if page == 1 {
				summary.Status = model.StatusFailed
			}
			return
		}
		summary.Pages++

		if len(items) == 0 {
			if page == 1 {
				c.logger.Error("first list page has no announcements; the board layout may have changed")
				summary.Status = model.StatusFailed
				summary.StopReason = model.StopFirstPageFail
			} else {
				c.logger.Info("reached the last list page", "page", page)
				summary.StopReason = model.StopEmptyPage
			}
			return
		}

		accepted, shouldStop := c.tracker.Filter(items)
		skipped := len(items) - len(accepted)
		summary.Skipped += skipped
		c.metrics.Announcements(c.site, metrics.OutcomeSkipped, skipped)
		c.logger.Info("list page parsed",
			"page", page,
			"found", len(items),
			"new", len(accepted),
			"stop", shouldStop,
		)

		if len(accepted) == 0 && !shouldStop && page > 1 {
			summary.StopReason = model.StopNoNewItems
			return
		}

		for i, ann := range accepted {
			if i > 0 {
				if err := pipeline.Sleep(ctx, c.itemDelay); err != nil {
					c.interrupt(summary)
					return
				}
			}
			if ctx.Err() != nil {
				c.interrupt(summary)
				return
			}
			index++
			c.processItem(ctx, index, ann, summary)
		}

		if shouldStop {
			summary.StopReason = model.StopDuplicates
			return
		}
	}
}

func (c *Controller) interrupt(summary *model.RunSummary) {
	c.logger.Warn("run cancelled")
	summary.Status = model.StatusInterrupted
	summary.StopReason = model.StopCancelled
}

// fetchList fetches and parses one list page. Announcements without a
// title are dropped.
func (c *Controller) fetchList(ctx context.Context, page int) ([]model.Announcement, error) {
	start := c.now()
	resp, err := c.fetcher.Fetch(ctx, listRequest(c.adapter, page))
	c.metrics.ObserveFetch(c.site, "list", c.now().Sub(start))
	if err != nil {
		return nil, err
	}
	c.metrics.ListPage(c.site)

	items, err := c.adapter.ParseList(resp)
	if err != nil {
		c.logger.Warn("list page could not be parsed", "page", page, "error", err)
		return nil, nil
	}

	valid := items[:0]
	for _, a := range items {
		if err := a.Validate(); err != nil {
			c.logger.Debug("announcement dropped", "page", page, "ordinal", a.Ordinal, "error", err)
			continue
		}
		valid = append(valid, a)
	}
	return valid, nil
}

// item is the state one announcement carries through the pipeline.
type item struct {
	index       int
	ann         model.Announcement
	resp        *fetch.Response
	detail      *Detail
	attachments []model.Attachment
	dir         string
	saved       int
	failed      int
}

// processItem runs one announcement through the pipeline and records the
// outcome. Errors and panics stay with the item.
func (c *Controller) processItem(ctx context.Context, index int, ann model.Announcement, summary *model.RunSummary) {
	c.logger.Info("processing announcement", "index", index, "title", ann.Title)

	p := pipeline.New[item](pipeline.WithLogger(c.logger), pipeline.WithSubject(ann.Title))
	p.AddSteps(
		pipeline.NewStep(StepFetchDetail, c.fetchDetail),
		pipeline.NewStep(StepExtract, c.extract),
		pipeline.NewStep(StepPersist, c.persist),
		pipeline.NewStep(StepDownload, c.download),
		pipeline.NewStep(StepCommit, c.commit),
	)

	it := &item{index: index, ann: ann}
	err := p.Execute(ctx, it)

	summary.Attachments += it.saved
	summary.AttachmentFailures += it.failed
	if err != nil {
		summary.Failed++
		summary.AddError(fmt.Sprintf("%s: %v", ann.Title, err))
		c.metrics.Announcement(c.site, metrics.OutcomeFailed)
		c.logger.Warn("announcement failed", "index", index, "title", ann.Title, "error", err)
		return
	}
	summary.Processed++
	c.metrics.Announcement(c.site, metrics.OutcomeProcessed)
}

func (c *Controller) fetchDetail(ctx context.Context, it *item) error {
	req, err := detailRequest(c.adapter, it.ann)
	if err != nil {
		return err
	}
	start := c.now()
	resp, err := c.fetcher.Fetch(ctx, req)
	c.metrics.ObserveFetch(c.site, "detail", c.now().Sub(start))
	if err != nil {
		return err
	}
	it.resp = resp
	return nil
}

func (c *Controller) extract(ctx context.Context, it *item) error {
	detail, err := c.adapter.ParseDetail(it.resp, it.ann)
	if err != nil {
		return fmt.Errorf("failed to parse detail page: %w", err)
	}
	if detail == nil {
		return ErrEmptyDetail
	}
	it.detail = detail
	it.ann.Enrich(detail.Metadata)

	atts := append([]model.Attachment(nil), detail.Attachments...)
	page, err := attachment.NewPage(it.resp.URL, it.resp.Text)
	if err != nil {
		c.logger.Warn("attachment resolution skipped", "title", it.ann.Title, "error", err)
	} else {
		atts = append(atts, c.resolver.Resolve(ctx, page)...)
	}
	it.attachments = model.DedupeAttachments(atts)
	c.logger.Debug("detail extracted",
		"title", it.ann.Title,
		"content_length", len(detail.Content),
		"attachments", len(it.attachments),
	)
	return nil
}

func (c *Controller) persist(_ context.Context, it *item) error {
	it.dir = c.writer.Dir(it.index, it.ann.Title)
	source := it.ann.Locator.URL
	if source == "" {
		source = it.resp.URL
	}
	body := bodyText(it.detail.Content, it.resp.Text, it.resp.URL)
	path, err := c.writer.WriteContent(it.dir, it.ann, source, body)
	if err != nil {
		return err
	}
	c.logger.Debug("content saved", "path", path)
	return nil
}

// download stores every downloadable attachment. Attachment failures are
// counted but do not fail the announcement; cancellation does.
func (c *Controller) download(ctx context.Context, it *item) error {
	if len(it.attachments) == 0 {
		c.logger.Debug("no attachments", "title", it.ann.Title)
		return nil
	}
	dl := c.downloader.ForPage(it.resp.URL)
	dest := filepath.Join(it.dir, AttachmentDir)

	for _, att := range it.attachments {
		if !att.Downloadable() {
			c.logger.Info("attachment named but not linkable", "name", att.CleanName(), "strategy", att.Strategy)
			c.metrics.Attachment(c.site, metrics.OutcomeAdvisory, att.Strategy)
			continue
		}
		if _, err := dl.Download(ctx, att, dest); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			it.failed++
			c.metrics.Attachment(c.site, metrics.OutcomeRejected, att.Strategy)
			c.logger.Warn("attachment download failed", "name", att.CleanName(), "error", err)
			continue
		}
		it.saved++
		c.metrics.Attachment(c.site, metrics.OutcomeSaved, att.Strategy)
	}
	return nil
}

func (c *Controller) commit(_ context.Context, it *item) error {
	c.tracker.Commit(it.ann.Title)
	return nil
}
