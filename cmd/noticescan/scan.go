package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/noticescan/internal/config"
	"github.com/nao1215/noticescan/internal/metrics"
	"github.com/nao1215/noticescan/internal/pipeline"
	"github.com/nao1215/noticescan/internal/report"
)

// errSitesFailed is returned after the report when at least one site
// run failed, so that schedulers see a non-zero exit status.
var errSitesFailed = errors.New("one or more sites failed")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [site...]",
		Short: "Crawl notice boards and save new announcements",
		Long: `Scan crawls the named sites of the registry, or every enabled site with --all.

For each site it reads the list pages, skips announcements whose titles
were processed before, and saves every new one to
<output>/<site>/NNN_<title>/ with its content.md and attachments.
A run stops at the page limit, at an empty list page, or after enough
consecutive known titles.

Examples:
  # Crawl one site
  noticescan scan kiat

  # Crawl every enabled site, two at a time
  noticescan scan --all --concurrency 2

  # Keep the duplicate records in SQLite and write a Markdown report
  noticescan scan --all --store sqlite --markdown --report-file run.md

  # Share duplicate records between hosts through Redis
  NOTICESCAN_REDIS_PASSWORD=secret noticescan scan kiat --store redis --redis-addr 10.0.0.5:6379

Environment variables (NOTICESCAN_OUTPUT, NOTICESCAN_STORE, ...) and a
.env file in the current directory set defaults; flags win over both.`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Site selection
	cmd.Flags().BoolP("all", "a", false,
		"Crawl every enabled site in the registry")
	cmd.Flags().Bool("force", false,
		"Crawl disabled sites named on the command line")
	cmd.Flags().StringP("config", "c", "",
		"Site registry path (default: noticescan.yaml in current or XDG config directory)")

	// Crawl behavior
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum list pages per site (0 means no limit)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Duration("item-delay", config.DefaultItemDelay,
		"Pause between announcements")
	cmd.Flags().Duration("page-delay", config.DefaultPageDelay,
		"Pause between list pages")
	cmd.Flags().Duration("site-delay", config.DefaultSiteDelay,
		"Pause between starting sites")
	cmd.Flags().Int("threshold", config.DefaultThreshold,
		"Consecutive known titles that stop a run")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of sites crawled at once")

	// Fetching
	cmd.Flags().Bool("browser", false,
		"Fetch pages with headless Chrome for every site")
	cmd.Flags().String("browser-path", "",
		"Chrome executable (default: search PATH)")
	cmd.Flags().String("proxy", "",
		"Proxy URL (http, https or socks5)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent sent with every request")
	cmd.Flags().Int64("max-download-size", 0,
		"Maximum attachment size in bytes (0 uses the built-in limit)")

	// Output and state
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory receiving one folder per site")
	cmd.Flags().String("state-dir", "",
		"Directory of duplicate records and run history (default: XDG data directory)")
	cmd.Flags().String("store", config.StoreJSON,
		"Duplicate record store: json, sqlite or redis")
	cmd.Flags().String("redis-addr", "",
		"Redis address for --store redis")
	cmd.Flags().Int("redis-db", 0,
		"Redis database number")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the run, e.g. :9090")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("report-file", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(config.DefaultEnvFile); err != nil {
		return err
	}

	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if err := resolveSites(cfg, force); err != nil {
		return err
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, scanErr := runScan(ctx, cfg, logger)
	if rep != nil {
		if err := outputReport(cmd.OutOrStdout(), cfg, rep); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if scanErr != nil {
		return scanErr
	}
	if rep.Totals.FailedSites > 0 {
		return errSitesFailed
	}
	return nil
}

// buildConfig creates a Config from defaults, NOTICESCAN_* variables and
// the flags the user set, in that order of precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	f := flagReader{cmd: cmd}
	f.bool("all", &cfg.All)
	f.string("config", &cfg.ConfigFilePath)
	f.int("max-pages", &cfg.MaxPages)
	f.duration("timeout", &cfg.Timeout)
	f.duration("item-delay", &cfg.ItemDelay)
	f.duration("page-delay", &cfg.PageDelay)
	f.duration("site-delay", &cfg.SiteDelay)
	f.int("threshold", &cfg.Threshold)
	f.int("concurrency", &cfg.Concurrency)
	f.bool("browser", &cfg.Browser)
	f.string("browser-path", &cfg.BrowserPath)
	f.string("proxy", &cfg.Proxy)
	f.string("user-agent", &cfg.UserAgent)
	f.int64("max-download-size", &cfg.MaxDownloadSize)
	f.string("output", &cfg.OutputDir)
	f.string("state-dir", &cfg.StateDir)
	f.string("store", &cfg.Store)
	f.string("redis-addr", &cfg.RedisAddr)
	f.int("redis-db", &cfg.RedisDB)
	f.string("metrics-addr", &cfg.MetricsAddr)
	f.bool("json", &cfg.JSONReport)
	f.bool("markdown", &cfg.MarkdownReport)
	f.string("report-file", &cfg.ReportFile)
	if f.err != nil {
		return nil, f.err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogJSON = getLogJSONFlag(cmd)
	cfg.Sites = args

	cf, err := loadRegistry(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	cfg.SiteConfigs = cf
	return cfg, nil
}

// loadRegistry finds and loads the site registry.
func loadRegistry(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return nil, fmt.Errorf("%w: create one with 'noticescan init'", config.ErrConfigNotFound)
	}
	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load site registry %s: %w", path, err)
	}
	return cf, nil
}

// resolveSites expands --all and checks named sites against the registry.
func resolveSites(cfg *config.Config, force bool) error {
	if cfg.All {
		cfg.Sites = cfg.SiteConfigs.EnabledNames()
		if len(cfg.Sites) == 0 {
			return config.ErrNoSite
		}
		return nil
	}
	for _, name := range cfg.Sites {
		site, ok := cfg.SiteConfigs.Sites[name]
		if !ok {
			return fmt.Errorf("%w: %s", config.ErrUnknownSite, name)
		}
		if site.Disabled && !force {
			return fmt.Errorf("%w: %s (use --force to crawl it anyway)", config.ErrSiteDisabled, name)
		}
	}
	return nil
}

// runScan crawls every site of cfg and returns the combined report. The
// report is returned even when the run was interrupted.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*report.Report, error) {
	logger.Info("starting scan",
		"sites", cfg.Sites,
		"store", cfg.Store,
		"concurrency", cfg.Concurrency,
		"output", cfg.OutputDir,
	)

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("failed to close stores", "error", err)
		}
	}()

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.New()
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := collector.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics endpoint failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	factory := func(name string) (pipeline.Runner, error) {
		runner, err := newSiteRunner(cfg, name, stores.records, collector, logger)
		if err != nil {
			return nil, err
		}
		return runner, nil
	}
	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithSiteDelay(cfg.SiteDelay),
		pipeline.WithBatchLogger(logger),
	)

	summaries, err := bp.ProcessBatch(ctx, cfg.Sites)
	stores.saveHistory(context.WithoutCancel(ctx), summaries)

	rep := report.New(getVersion(), time.Now(), summaries)
	if err != nil {
		logger.Warn("scan interrupted", "error", err)
		return rep, fmt.Errorf("scan interrupted: %w", err)
	}
	return rep, nil
}

// outputReport writes rep in the requested format to out or, when set, to
// cfg.ReportFile.
func outputReport(out io.Writer, cfg *config.Config, rep *report.Report) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	_, err := w.Write(rep)
	return err
}

// flagReader copies the flags the user set into config fields and keeps
// the first lookup error.
type flagReader struct {
	cmd *cobra.Command
	err error
}

func (f *flagReader) changed(name string) bool {
	return f.err == nil && f.cmd.Flags().Changed(name)
}

func (f *flagReader) string(name string, dst *string) {
	if f.changed(name) {
		*dst, f.err = f.cmd.Flags().GetString(name)
	}
}

func (f *flagReader) bool(name string, dst *bool) {
	if f.changed(name) {
		*dst, f.err = f.cmd.Flags().GetBool(name)
	}
}

func (f *flagReader) int(name string, dst *int) {
	if f.changed(name) {
		*dst, f.err = f.cmd.Flags().GetInt(name)
	}
}

func (f *flagReader) int64(name string, dst *int64) {
	if f.changed(name) {
		*dst, f.err = f.cmd.Flags().GetInt64(name)
	}
}

func (f *flagReader) duration(name string, dst *time.Duration) {
	if f.changed(name) {
		*dst, f.err = f.cmd.Flags().GetDuration(name)
	}
}
