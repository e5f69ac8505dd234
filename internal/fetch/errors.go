package fetch

import (
	"errors"
	"fmt"
)

// Failure kinds. A *FetchError unwraps to exactly one of them, so callers
// can branch with errors.Is.
var (
	// ErrTransport covers DNS, connection, TLS and timeout failures.
	ErrTransport = errors.New("transport failure")

	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrBlocked is returned when the body matches a firewall or challenge
	// page signature.
	ErrBlocked = errors.New("blocked by site protection")

	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrUnsupportedMethod is returned by fetchers that cannot issue the
	// requested method.
	ErrUnsupportedMethod = errors.New("request method not supported")
)

// FetchError describes a failed fetch.
type FetchError struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status, or 0 when no response arrived.
	StatusCode int

	// Kind is one of the package sentinel errors.
	Kind error

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: %v (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %v (status %d)", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newFetchError(url string, status int, kind, cause error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Kind: kind, Err: cause}
}
