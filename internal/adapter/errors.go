package adapter

import "errors"

var (
	// ErrUnknownType is returned for an unsupported adapter type.
	ErrUnknownType = errors.New("unknown adapter type")

	// ErrNoListURL is returned when neither a list URL nor an API URL is set.
	ErrNoListURL = errors.New("list URL is not set")

	// ErrUnknownPagination is returned for an unsupported pagination type.
	ErrUnknownPagination = errors.New("unknown pagination type")

	// ErrNoPathTemplate is returned for path pagination without a template.
	ErrNoPathTemplate = errors.New("path pagination requires a template")

	// ErrNoListTable is returned when the list table selector matches nothing.
	ErrNoListTable = errors.New("list table not found")

	// ErrItemsNotFound is returned when the API items path does not lead to
	// an array.
	ErrItemsNotFound = errors.New("API items not found")

	// ErrNoDetailCall is returned when a script-call locator cannot be
	// turned into a request.
	ErrNoDetailCall = errors.New("no detail call template for locator")
)
