// Package fetcher retrieves pages and scripts over HTTP, with an optional
// headless Chrome path for pages that need a real browser.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// FetchResult contains the fetched body and metadata.
type FetchResult struct {
	HTML        string
	FinalURL    string // URL after following redirects
	StatusCode  int
	UsedBrowser bool
	FetchTime   time.Duration
}

// OK reports whether the response had a 2xx status.
func (r *FetchResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError reports a response with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Options configures the fetcher behavior.
type Options struct {
	UserAgent      string
	TimeoutSeconds int
	ChromePath     string // Path to Chrome binary (empty = auto-detect)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:      "FINDIT/1.0 (navigator)",
		TimeoutSeconds: 30,
		ChromePath:     "",
	}
}

// Package-level options (set via Configure)
var opts = DefaultOptions()

// Configure sets the package-level options.
func Configure(o Options) {
	if o.UserAgent != "" {
		opts.UserAgent = o.UserAgent
	}
	if o.TimeoutSeconds > 0 {
		opts.TimeoutSeconds = o.TimeoutSeconds
	}
	opts.ChromePath = o.ChromePath // Can be empty
}

// UserAgent returns the currently configured user agent string.
func UserAgent() string {
	return opts.UserAgent
}

// Timeout returns the currently configured timeout duration.
func Timeout() time.Duration {
	return time.Duration(opts.TimeoutSeconds) * time.Second
}

// userDataDir returns a persistent directory for Chrome user data.
func userDataDir() string {
	dir, _ := os.UserCacheDir()
	return filepath.Join(dir, "findit-chrome-profile")
}

// Simple fetches a URL using standard HTTP. Caches are always bypassed so
// the content is current. Any HTTP status is returned as a result; callers
// that need success check OK.
func Simple(ctx context.Context, url string) (*FetchResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	client := &http.Client{
		Timeout: Timeout(),
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	// Capture final URL after redirects
	finalURL := resp.Request.URL.String()

	return &FetchResult{
		HTML:       string(body),
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		FetchTime:  time.Since(start),
	}, nil
}

// Checked fetches like Simple but turns a non-2xx status into a *StatusError.
func Checked(ctx context.Context, url string) (*FetchResult, error) {
	res, err := Simple(ctx, url)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, &StatusError{URL: url, StatusCode: res.StatusCode}
	}
	return res, nil
}

// Source fetches the text of a script.
func Source(ctx context.Context, url string) (string, error) {
	res, err := Checked(ctx, url)
	if err != nil {
		return "", err
	}
	return res.HTML, nil
}

// WithBrowser fetches a URL using headless Chrome so script-built markup is
// included. The status is that of the first document response the tab
// receives.
func WithBrowser(ctx context.Context, targetURL string) (*FetchResult, error) {
	start := time.Now()

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", "new"),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.UserDataDir(userDataDir()),
	}
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()

	// Browser fetches get extra time
	timeout := Timeout()
	if timeout < 30*time.Second {
		timeout = 45 * time.Second
	} else {
		timeout = timeout + 15*time.Second
	}
	browserCtx, cancel := context.WithTimeout(allocCtx, timeout)
	defer cancel()

	browserCtx, cancel = chromedp.NewContext(browserCtx)
	defer cancel()

	var status documentStatus
	chromedp.ListenTarget(browserCtx, status.listen)

	var html string
	var finalURL string
	err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetCacheDisabled(true),
		network.SetExtraHTTPHeaders(network.Headers(map[string]interface{}{
			"Cache-Control": "no-cache",
			"Pragma":        "no-cache",
		})),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch: %w", err)
	}

	return &FetchResult{
		HTML:        html,
		FinalURL:    finalURL,
		StatusCode:  status.code(),
		UsedBrowser: true,
		FetchTime:   time.Since(start),
	}, nil
}

// documentStatus records the status of the first document response seen by
// a tab. Redirect hops never arrive as responses, so this is the final page;
// later document responses belong to frames.
type documentStatus struct {
	mu     sync.Mutex
	status int
}

func (s *documentStatus) listen(ev interface{}) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		s.status = int(e.Response.Status)
	}
}

// code returns the recorded status, 200 when no response was seen.
func (s *documentStatus) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
