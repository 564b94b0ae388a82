package navigator

import "errors"

var (
	// ErrFetchFailure is returned when a page cannot be retrieved or the
	// server answers with a non-success status.
	ErrFetchFailure = errors.New("page fetch failed")
	// ErrMalformedPage is returned when a fetched page has no content region.
	ErrMalformedPage = errors.New("page has no content region")
	// ErrNoLink is returned by ClickLink when the page has no matching link.
	ErrNoLink = errors.New("no such link")
)
