package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and File.Site() and can be
// matched with errors.Is().
var (
	// ErrNoSite is returned when neither site names nor --all are given.
	ErrNoSite = errors.New("no site specified: name one or more sites or use --all")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidDelay is returned when any politeness delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidThreshold is returned when the duplicate threshold is not positive.
	ErrInvalidThreshold = errors.New("invalid duplicate threshold: must be positive")

	// ErrInvalidConcurrency is returned when the site concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidMaxDownloadSize is returned when the attachment size cap is negative.
	ErrInvalidMaxDownloadSize = errors.New("invalid max download size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrUnknownStore is returned for a duplicate store other than json,
	// sqlite or redis.
	ErrUnknownStore = errors.New("unknown store: must be json, sqlite or redis")

	// ErrNoRedisAddr is returned when the redis store has no address.
	ErrNoRedisAddr = errors.New("redis store requires an address")

	// ErrUnknownSite is returned for a site missing from the registry.
	ErrUnknownSite = errors.New("site not found in configuration")

	// ErrSiteDisabled is returned for a site marked disabled.
	ErrSiteDisabled = errors.New("site is disabled")
)
