package navigator

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"findit/fetcher"
	"findit/html"
)

// Loader retrieves and parses a page.
type Loader interface {
	Load(ctx context.Context, target *url.URL) (*html.Fragment, error)
}

// PageLoader fetches pages over HTTP, or through headless Chrome when
// UseBrowser is set, and extracts their fragments.
type PageLoader struct {
	UseBrowser bool
	logger     *zap.Logger
	fetch      func(ctx context.Context, url string) (*fetcher.FetchResult, error) // nil picks by UseBrowser
}

// NewPageLoader returns a loader.
func NewPageLoader(useBrowser bool, logger *zap.Logger) *PageLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageLoader{UseBrowser: useBrowser, logger: logger.Named("loader")}
}

// Load fetches target bypassing caches. Transport errors and non-2xx
// responses are ErrFetchFailure; a page with no content region is
// ErrMalformedPage. A cancelled ctx is returned as is.
func (l *PageLoader) Load(ctx context.Context, target *url.URL) (*html.Fragment, error) {
	fetch := l.fetch
	if fetch == nil {
		fetch = fetcher.Checked
		if l.UseBrowser {
			fetch = fetcher.WithBrowser
		}
	}

	res, err := fetch(ctx, target.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, &fetcher.StatusError{URL: target.String(), StatusCode: res.StatusCode})
	}
	l.logger.Debug("fetched page",
		zap.String("url", target.String()),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", res.FetchTime),
	)

	frag, err := html.ParseString(res.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPage, target, err)
	}
	return frag, nil
}
