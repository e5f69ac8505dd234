package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/noticescan/internal/model"
)

// Runner crawls one site.
type Runner interface {
	Run(ctx context.Context) *model.RunSummary
}

// RunnerFactory builds the Runner for a site name.
type RunnerFactory func(site string) (Runner, error)

// BatchProcessor runs one crawl per site with a concurrency limit.
// A failing site never cancels the others.
type BatchProcessor struct {
	factory     RunnerFactory
	concurrency int
	delay       time.Duration
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of sites crawled at once.
// Default is 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithSiteDelay sets the pause between starting consecutive sites.
func WithSiteDelay(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d >= 0 {
			b.delay = d
		}
	}
}

// NewBatchProcessor creates a BatchProcessor. factory is called once per
// site so no state leaks between runs.
func NewBatchProcessor(factory RunnerFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch crawls every site and returns their summaries in input
// order. Sites not started before cancellation are reported as
// interrupted; the error is the context's error in that case.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sites []string) ([]*model.RunSummary, error) {
	results := make([]*model.RunSummary, len(sites))
	err := bp.ProcessBatchWithCallback(ctx, sites, func(summary *model.RunSummary, index int) {
		results[index] = summary
	})
	for i, s := range results {
		if s == nil {
			s = model.NewRunSummary(sites[i], time.Now())
			s.Status = model.StatusInterrupted
			s.StopReason = model.StopCancelled
			results[i] = s
		}
	}
	return results, err
}

// ProcessBatchWithCallback crawls every site and calls callback with each
// summary as it completes. Each index is written by exactly one goroutine.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	sites []string,
	callback func(summary *model.RunSummary, index int),
) error {
	bp.logger.Info("starting batch",
		"sites", len(sites),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, site := range sites {
		if i > 0 {
			if err := Sleep(ctx, bp.delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			callback(bp.runSite(ctx, site, i, len(sites)), i)
			return nil
		})
	}
	_ = g.Wait()

	bp.logger.Info("batch complete",
		"sites", len(sites),
		"elapsed", time.Since(startTime),
	)
	return ctx.Err()
}

func (bp *BatchProcessor) runSite(ctx context.Context, site string, index, total int) *model.RunSummary {
	bp.logger.Info("crawling site",
		"site", site,
		"index", index+1,
		"total", total,
	)

	runner, err := bp.factory(site)
	if err != nil {
		bp.logger.Error("site setup failed", "site", site, "error", err)
		summary := model.NewRunSummary(site, time.Now())
		summary.Status = model.StatusFailed
		summary.StopReason = err.Error()
		summary.AddError(err.Error())
		return summary
	}

	summary := runner.Run(ctx)
	if summary == nil {
		summary = model.NewRunSummary(site, time.Now())
		summary.Status = model.StatusFailed
	}
	bp.logger.Info("site finished",
		"site", site,
		"status", summary.Status,
		"processed", summary.Processed,
		"reason", summary.StopReason,
	)
	return summary
}
