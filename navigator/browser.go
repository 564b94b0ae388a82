package navigator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"findit/document"
	"findit/fetcher"
	"findit/script"
	"findit/session"
)

var anchor = cascadia.MustCompile("a[href]")

// Config wires a Browser.
type Config struct {
	LinkSelector      string
	InterceptPatterns []string
	Routes            Routes
	ScriptTimeout     time.Duration
	ScriptPolicy      script.Policy
	UseBrowser        bool             // fetch through headless Chrome
	History           *session.History // restored history, nil for a fresh one
	Metrics           *Metrics         // nil disables metrics
	Logger            *zap.Logger
}

// Browser is a single tab: a live document with its history, script runtime
// and navigation engine. Full page loads go through Assign.
type Browser struct {
	doc         *document.Document
	history     *session.History
	runtime     *script.Runtime
	reconciler  *script.Reconciler
	engine      *Engine
	interceptor *Interceptor
	useBrowser  bool
	logger      *zap.Logger
}

// NewBrowser creates a tab showing an empty page. Register controllers on
// Engine() before calling Open.
func NewBrowser(cfg Config) (*Browser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	history := cfg.History
	if history == nil {
		history = session.New()
	}
	routes := cfg.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}

	b := &Browser{
		doc:        document.New(nil),
		history:    history,
		useBrowser: cfg.UseBrowser,
		logger:     logger.Named("browser"),
	}
	b.runtime = script.NewRuntime(b.doc, logger)
	b.reconciler = script.NewReconciler(b.doc, b.runtime, fetcher.Source,
		script.WithTimeout(cfg.ScriptTimeout),
		script.WithPolicy(cfg.ScriptPolicy),
		script.WithLogger(logger),
	)
	b.engine = NewEngine(b.doc, history,
		WithLoader(NewPageLoader(cfg.UseBrowser, logger)),
		WithNative(b),
		WithReconciler(b.reconciler),
		WithRoutes(routes),
		WithLinkSelector(cfg.LinkSelector),
		WithLogger(logger),
		WithMetrics(cfg.Metrics),
	)

	ic, err := NewInterceptor(b.doc, b.engine, cfg.LinkSelector, cfg.InterceptPatterns, logger)
	if err != nil {
		return nil, err
	}
	b.interceptor = ic

	history.OnPopState(b.popState)
	return b, nil
}

// Document returns the live document.
func (b *Browser) Document() *document.Document { return b.doc }

// History returns the tab's history.
func (b *Browser) History() *session.History { return b.history }

// Runtime returns the script runtime.
func (b *Browser) Runtime() *script.Runtime { return b.runtime }

// Engine returns the navigation engine.
func (b *Browser) Engine() *Engine { return b.engine }

// Open loads rawURL as a full page load.
func (b *Browser) Open(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	return b.engine.Assign(ctx, u)
}

// Navigate runs a transition to ref, resolved against the current page.
func (b *Browser) Navigate(ctx context.Context, ref string) (Result, error) {
	u, err := b.doc.Resolve(ref)
	if err != nil {
		return Result{}, fmt.Errorf("resolving %q: %w", ref, err)
	}
	return b.engine.Navigate(ctx, u, Push)
}

// Click dispatches a click at n. When no listener prevents it and n is inside
// a link, the link is followed with a full page load.
func (b *Browser) Click(ctx context.Context, n *html.Node) (*document.Event, error) {
	ev := b.doc.Click(n)
	if ev.DefaultPrevented() {
		return ev, nil
	}
	link := document.Closest(n, anchor)
	if link == nil {
		return ev, nil
	}
	href, _ := b.doc.Attr(link, "href")
	u, err := b.doc.Resolve(href)
	if err != nil {
		return ev, fmt.Errorf("resolving %q: %w", href, err)
	}
	_, err = b.engine.Assign(ctx, u)
	return ev, err
}

// ClickLink clicks the first link whose href is exactly href and waits for
// any transition it started. It returns ErrNoLink when no link matches.
func (b *Browser) ClickLink(ctx context.Context, href string) error {
	for _, n := range b.doc.Find("a[href]") {
		if v, _ := b.doc.Attr(n, "href"); v == href {
			_, err := b.Click(ctx, n)
			b.Wait()
			return err
		}
	}
	return fmt.Errorf("%w: %q on %s", ErrNoLink, href, b.doc.URL())
}

// Back goes one entry back in history. It returns false at the start.
func (b *Browser) Back() bool { return b.history.Back() }

// Forward goes one entry forward in history.
func (b *Browser) Forward() bool { return b.history.Forward() }

// Wait blocks until background transitions finish.
func (b *Browser) Wait() { b.engine.Wait() }

// Assign replaces the whole page with target, as typing the URL would:
// every listener and script global of the old page is dropped, a history
// entry without state is pushed, and the new page boots from scratch.
func (b *Browser) Assign(ctx context.Context, target *url.URL) error {
	fetch := fetcher.Simple
	if b.useBrowser {
		fetch = fetcher.WithBrowser
	}
	res, err := fetch(ctx, target.String())
	if err != nil {
		return err
	}
	final := target
	if u, err := url.Parse(res.FinalURL); err == nil && res.FinalURL != "" {
		final = u
	}

	// The old page keeps its controllers until the new one is in hand.
	b.engine.UnmountAll()
	if err := b.doc.Load(strings.NewReader(res.HTML), final); err != nil {
		return fmt.Errorf("parsing %s: %w", final, err)
	}
	b.runtime.Reset()
	b.history.Push(final.String(), nil)
	b.logger.Info("page loaded",
		zap.String("url", final.String()),
		zap.Int("status", res.StatusCode),
	)

	b.boot(ctx, final)
	return nil
}

func (b *Browser) boot(ctx context.Context, u *url.URL) {
	b.interceptor.Install()
	if _, err := b.reconciler.Boot(ctx, u); err != nil {
		b.logger.Warn("page scripts failed", zap.String("url", u.String()), zap.Error(err))
	}
	b.engine.Activate(u)
}

func (b *Browser) popState(ps session.PopState) {
	u, err := url.Parse(ps.Entry.URL)
	if err != nil {
		b.logger.Warn("bad history entry", zap.String("url", ps.Entry.URL), zap.Error(err))
		return
	}
	b.doc.SetURL(u)

	target := u
	if ps.Entry.State != nil {
		if s, err := b.doc.Resolve(ps.Entry.State.URL); err == nil {
			target = s
		}
	}
	b.engine.Start(target, Replay)
}
