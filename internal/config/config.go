package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/fetch"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "noticescan"

	// DefaultMaxPages bounds the list pages read per run. New notices
	// appear on the first pages; deeper pages are history.
	DefaultMaxPages = 4

	// DefaultTimeout applies to each HTTP request.
	DefaultTimeout = fetch.DefaultTimeout

	// DefaultItemDelay is the pause between detail pages.
	DefaultItemDelay = 1 * time.Second

	// DefaultPageDelay is the pause between list pages.
	DefaultPageDelay = 2 * time.Second

	// DefaultSiteDelay is the pause between site starts in a batch.
	DefaultSiteDelay = 5 * time.Second

	// DefaultThreshold is the number of consecutive known titles that stops
	// a run.
	DefaultThreshold = dedup.DefaultThreshold

	// DefaultOutputDir receives one directory per site.
	DefaultOutputDir = "output"

	// DefaultConcurrency runs sites one after another.
	DefaultConcurrency = 1

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = fetch.DefaultUserAgent
)

// Duplicate stores.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds the options of one noticescan invocation.
// It is populated from CLI flags and environment overrides and passed
// through the application rather than kept in global state.
type Config struct {
	// Sites are the registry names to crawl.
	Sites []string

	// All crawls every enabled site in the registry.
	All bool

	// ConfigFilePath is the site registry path. When empty, FindConfigFile
	// searches the default locations.
	ConfigFilePath string

	// SiteConfigs is the loaded registry.
	SiteConfigs *File

	// OutputDir receives <site>/NNN_<title> artifacts.
	OutputDir string

	// StateDir holds the JSON duplicate records and the SQLite database.
	// Defaults to the XDG data directory.
	StateDir string

	// MaxPages bounds the list pages per run; 0 means no limit.
	MaxPages int

	// Timeout applies to each HTTP request.
	Timeout time.Duration

	// ItemDelay, PageDelay and SiteDelay are politeness pauses.
	ItemDelay time.Duration
	PageDelay time.Duration
	SiteDelay time.Duration

	// Threshold is the consecutive known titles that stop a run.
	Threshold int

	// Store selects the duplicate record backend.
	Store string

	// Redis connection for the redis store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Browser fetches pages with headless Chrome for every site.
	Browser bool

	// BrowserPath is the Chrome executable; empty uses the default lookup.
	BrowserPath string

	// Proxy is an http, https or socks5 proxy URL.
	Proxy string

	// UserAgent is sent with every request.
	UserAgent string

	// MaxDownloadSize caps one attachment; 0 uses the downloader default.
	MaxDownloadSize int64

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string

	// Concurrency is the number of sites crawled at once.
	Concurrency int

	// JSONReport and MarkdownReport select the run report format.
	// They are mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile receives the report instead of stdout.
	ReportFile string

	// Verbose enables debug logs.
	Verbose bool

	// LogJSON switches logs to JSON lines.
	LogJSON bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:   DefaultOutputDir,
		StateDir:    XDGDataDir(),
		MaxPages:    DefaultMaxPages,
		Timeout:     DefaultTimeout,
		ItemDelay:   DefaultItemDelay,
		PageDelay:   DefaultPageDelay,
		SiteDelay:   DefaultSiteDelay,
		Threshold:   DefaultThreshold,
		Store:       StoreJSON,
		Concurrency: DefaultConcurrency,
		UserAgent:   DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for noticescan.
// On Linux: ~/.local/share/noticescan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for noticescan.
// On Linux: ~/.config/noticescan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for noticescan.
// On Linux: ~/.cache/noticescan
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// RecordDir returns the directory of the JSON duplicate records.
func (c *Config) RecordDir() string {
	return filepath.Join(c.StateDir, "records")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 && !c.All {
		return ErrNoSite
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.ItemDelay < 0 || c.PageDelay < 0 || c.SiteDelay < 0 {
		return ErrInvalidDelay
	}
	if c.Threshold <= 0 {
		return ErrInvalidThreshold
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxDownloadSize < 0 {
		return ErrInvalidMaxDownloadSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	switch strings.ToLower(c.Store) {
	case StoreJSON, StoreSQLite:
	case StoreRedis:
		if c.RedisAddr == "" {
			return ErrNoRedisAddr
		}
	default:
		return ErrUnknownStore
	}
	return nil
}
