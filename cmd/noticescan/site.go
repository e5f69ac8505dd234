package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/nao1215/noticescan/internal/adapter"
	"github.com/nao1215/noticescan/internal/attachment"
	"github.com/nao1215/noticescan/internal/config"
	"github.com/nao1215/noticescan/internal/crawler"
	"github.com/nao1215/noticescan/internal/database"
	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/download"
	"github.com/nao1215/noticescan/internal/fetch"
	"github.com/nao1215/noticescan/internal/metrics"
	"github.com/nao1215/noticescan/internal/model"
)

// stores holds the duplicate record backend and the run history.
type stores struct {
	// records backs every site's Tracker.
	records dedup.Store

	// history keeps run summaries. It is also records for --store sqlite.
	history *database.CrawlDB

	redis  *database.RedisStore
	logger *slog.Logger
}

// openStores opens the run history in cfg.StateDir and the duplicate
// record store selected by cfg.Store.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	db, err := database.Open(cfg.StateDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	s := &stores{history: db, logger: logger}

	switch strings.ToLower(cfg.Store) {
	case config.StoreSQLite:
		s.records = db
	case config.StoreRedis:
		rs, err := database.NewRedisStore(ctx, database.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.redis = rs
		s.records = rs
	default:
		s.records = dedup.NewFileStore(afero.NewOsFs(), cfg.RecordDir())
	}
	logger.Debug("stores opened", "store", cfg.Store, "history", db.Path())
	return s, nil
}

// saveHistory appends every summary to the run history. Failures are
// logged; they never change the run outcome.
func (s *stores) saveHistory(ctx context.Context, summaries []*model.RunSummary) {
	for _, summary := range summaries {
		if summary == nil {
			continue
		}
		if err := s.history.SaveRunSummary(ctx, summary); err != nil {
			s.logger.Warn("failed to save run summary", "site", summary.Site, "error", err)
		}
	}
}

// Close closes every open store.
func (s *stores) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.history.Close())
	return errors.Join(errs...)
}

// siteRunner runs one site's controller and releases its browser.
type siteRunner struct {
	ctl     *crawler.Controller
	browser *fetch.BrowserFetcher
	logger  *slog.Logger
}

// Run crawls the site once.
func (r *siteRunner) Run(ctx context.Context) *model.RunSummary {
	defer func() {
		if r.browser == nil {
			return
		}
		if err := r.browser.Close(); err != nil {
			r.logger.Warn("failed to stop browser", "error", err)
		}
	}()
	return r.ctl.Run(ctx)
}

// newSiteRunner builds the fetcher, adapter, tracker and controller of
// one registry site. Every site gets its own HTTP client and cookie jar.
func newSiteRunner(cfg *config.Config, name string, records dedup.Store, collector *metrics.Collector, logger *slog.Logger) (*siteRunner, error) {
	site, err := cfg.SiteConfigs.Site(name)
	if err != nil {
		return nil, err
	}
	siteLogger := logger.With("site", name)

	client, err := fetch.NewHTTPClient(
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithInsecureTLS(site.InsecureTLS),
		fetch.WithProxy(cfg.Proxy),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithCookie(site.Cookie),
		fetch.WithHeaders(site.Headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	ad, err := adapter.New(site.Config)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", name, err)
	}

	runner := &siteRunner{logger: siteLogger}
	var fetcher fetch.Fetcher
	if cfg.Browser || site.Browser {
		opts := []fetch.BrowserOption{
			fetch.WithBrowserTimeout(cfg.Timeout),
			fetch.WithWaitSelector(site.WaitSelector),
			fetch.WithBrowserUserAgent(cfg.UserAgent),
			fetch.WithExecPath(cfg.BrowserPath),
			fetch.WithBrowserLogger(siteLogger),
		}
		if len(site.BlockSignatures) > 0 {
			opts = append(opts, fetch.WithBrowserBlockSignatures(site.BlockSignatures))
		}
		runner.browser = fetch.NewBrowserFetcher(opts...)
		fetcher = runner.browser
	} else {
		opts := []fetch.Option{
			fetch.WithLogger(siteLogger),
			fetch.WithEncoding(site.Encoding),
			fetch.WithWarmupURL(site.WarmupURL),
			fetch.WithRobots(site.RespectRobots, cfg.UserAgent),
		}
		if len(site.BlockSignatures) > 0 {
			opts = append(opts, fetch.WithBlockSignatures(site.BlockSignatures))
		}
		fetcher = fetch.NewHTTPFetcher(client, opts...)
	}

	tracker := dedup.NewTracker(name, records,
		dedup.WithThreshold(cfg.Threshold),
		dedup.WithLogger(siteLogger),
	)

	dlOpts := []download.Option{download.WithLogger(siteLogger)}
	if cfg.MaxDownloadSize > 0 {
		dlOpts = append(dlOpts, download.WithMaxSize(cfg.MaxDownloadSize))
	}

	maxPages := cfg.MaxPages
	if site.MaxPages > 0 {
		maxPages = site.MaxPages
	}

	runner.ctl = crawler.New(name, ad, fetcher, tracker,
		crawler.WithLogger(logger),
		crawler.WithMaxPages(maxPages),
		crawler.WithDelays(cfg.ItemDelay, cfg.PageDelay),
		crawler.WithResolver(attachment.NewResolver(client, site.Attachments, attachment.WithLogger(siteLogger))),
		crawler.WithDownloader(download.New(client, dlOpts...)),
		crawler.WithArtifactWriter(crawler.NewArtifactWriter(afero.NewOsFs(), filepath.Join(cfg.OutputDir, name))),
		crawler.WithMetrics(collector),
	)
	return runner, nil
}
