package crawler

import "errors"

var (
	// ErrNoDetailLocator is returned for announcements without a detail
	// URL when the adapter cannot build the request itself.
	ErrNoDetailLocator = errors.New("announcement has no detail URL")

	// ErrEmptyDetail is returned when a detail page yields no detail.
	ErrEmptyDetail = errors.New("detail page parsed to nothing")
)
