// Package metrics exposes crawl counters and fetch latency through
// Prometheus. Each Collector owns a private registry; a nil *Collector
// is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "noticescan"

// Announcement outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Attachment outcomes.
const (
	OutcomeSaved    = "saved"
	OutcomeRejected = "rejected"
	OutcomeAdvisory = "advisory"
)

// Collector holds the crawl metrics.
type Collector struct {
	registry *prometheus.Registry

	pages         *prometheus.CounterVec
	announcements *prometheus.CounterVec
	attachments   *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
}

// New registers the crawl metrics and the Go runtime collectors on a new
// registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_pages_total",
			Help:      "List pages fetched.",
		}, []string{"site"}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Announcements seen, by outcome.",
		}, []string{"site", "outcome"}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Attachments handled, by outcome and resolver strategy.",
		}, []string{"site", "outcome", "strategy"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of page fetches.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"site", "kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Crawl runs, by final status.",
		}, []string{"site", "status"}),
	}
	c.registry.MustRegister(
		c.pages,
		c.announcements,
		c.attachments,
		c.fetchDuration,
		c.runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ListPage counts one fetched list page.
func (c *Collector) ListPage(site string) {
	if c == nil {
		return
	}
	c.pages.WithLabelValues(site).Inc()
}

// Announcement counts an announcement outcome.
func (c *Collector) Announcement(site, outcome string) {
	c.Announcements(site, outcome, 1)
}

// Announcements adds n to an announcement outcome.
func (c *Collector) Announcements(site, outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.announcements.WithLabelValues(site, outcome).Add(float64(n))
}

// Attachment counts an attachment outcome for the strategy that found it.
func (c *Collector) Attachment(site, outcome, strategy string) {
	if c == nil {
		return
	}
	c.attachments.WithLabelValues(site, outcome, strategy).Inc()
}

// ObserveFetch records how long a fetch of the given kind ("list",
// "detail") took.
func (c *Collector) ObserveFetch(site, kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.fetchDuration.WithLabelValues(site, kind).Observe(d.Seconds())
}

// Run counts a finished run.
func (c *Collector) Run(site, status string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(site, status).Inc()
}

// Handler returns the HTTP handler for the registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
