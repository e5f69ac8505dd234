package download

import (
	"errors"
	"fmt"
	"strings"
)

// Validation and transfer failures.
var (
	// ErrEmptyPayload is returned for zero-byte responses.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrErrorPage is returned for HTML error pages served in place of a file.
	ErrErrorPage = errors.New("payload is an HTML error page")

	// ErrSignatureMismatch is returned when the payload does not start
	// with the signature its extension implies.
	ErrSignatureMismatch = errors.New("payload signature does not match extension")

	// ErrUnexpectedHTML is returned for markup where a file was expected.
	ErrUnexpectedHTML = errors.New("payload is HTML")

	// ErrTruncated is returned when the transfer ended early.
	ErrTruncated = errors.New("payload truncated")

	// ErrTooLarge is returned when the payload exceeds the size limit.
	ErrTooLarge = errors.New("payload exceeds size limit")

	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrNoCandidates is returned for attachments without a request to try.
	ErrNoCandidates = errors.New("attachment has no download candidates")
)

// CandidateError is the failure of one candidate request.
type CandidateError struct {
	URL string
	Err error
}

// Error implements error.
func (e CandidateError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

// Unwrap returns the cause.
func (e CandidateError) Unwrap() error {
	return e.Err
}

// Error reports an attachment whose candidates all failed.
type Error struct {
	// Name is the attachment display name.
	Name string

	// Failures holds one entry per candidate, in order.
	Failures []CandidateError
}

// Error implements error.
func (e *Error) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("download %q: %v", e.Name, ErrNoCandidates)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("download %q failed for %d candidate(s): %s", e.Name, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every candidate failure to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if len(e.Failures) == 0 {
		return []error{ErrNoCandidates}
	}
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}
