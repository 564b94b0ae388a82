package navigator

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"findit/document"
)

// DefaultLinkSelector selects the in-app navigation links.
const DefaultLinkSelector = ".nav-link"

// DefaultInterceptPatterns are the page paths handled without a full reload.
var DefaultInterceptPatterns = []string{"**/*.html", "**/*.htm"}

// Starter begins a transition without waiting for it.
type Starter interface {
	Start(target *url.URL, mode Mode) <-chan Result
}

// Interceptor turns clicks on navigation links into transitions.
type Interceptor struct {
	doc      *document.Document
	starter  Starter
	matcher  cascadia.Matcher
	patterns []string
	logger   *zap.Logger

	mu sync.Mutex
	id document.ListenerID
}

// NewInterceptor compiles the link selector and validates the path patterns.
// Empty arguments select the defaults.
func NewInterceptor(doc *document.Document, starter Starter, selector string, patterns []string, logger *zap.Logger) (*Interceptor, error) {
	if selector == "" {
		selector = DefaultLinkSelector
	}
	if len(patterns) == 0 {
		patterns = DefaultInterceptPatterns
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("link selector %q: %w", selector, err)
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid intercept pattern %q", p)
		}
	}

	return &Interceptor{
		doc:      doc,
		starter:  starter,
		matcher:  sel,
		patterns: patterns,
		logger:   logger.Named("interceptor"),
	}, nil
}

// Install attaches the click listener to the document. Calling it again
// replaces the earlier listener, so it is safe after the document reloads.
func (i *Interceptor) Install() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.id != 0 {
		i.doc.RemoveEventListener("click", i.id)
	}
	i.id = i.doc.AddEventListener("click", i.handle)
}

// Remove detaches the click listener.
func (i *Interceptor) Remove() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.id != 0 {
		i.doc.RemoveEventListener("click", i.id)
		i.id = 0
	}
}

// Target resolves href against the document and reports whether following
// it should become a transition.
func (i *Interceptor) Target(href string) (*url.URL, bool) {
	cur := i.doc.URL()
	u, err := i.doc.Resolve(href)
	if err != nil || cur == nil {
		return nil, false
	}
	if u.Scheme != cur.Scheme || u.Host != cur.Host {
		return nil, false
	}
	return u, i.matches(u.Path)
}

func (i *Interceptor) matches(p string) bool {
	if p == "" || strings.HasSuffix(p, "/") {
		return true
	}
	name := strings.ToLower(strings.TrimPrefix(p, "/"))
	for _, pattern := range i.patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func (i *Interceptor) handle(ev *document.Event) {
	if ev.DefaultPrevented() {
		return
	}
	link := document.Closest(ev.Target, i.matcher)
	if link == nil {
		return
	}
	href, ok := i.doc.Attr(link, "href")
	if !ok {
		return
	}
	target, ok := i.Target(href)
	if !ok {
		i.logger.Debug("leaving link to the browser", zap.String("href", href))
		return
	}

	ev.PreventDefault()
	i.starter.Start(target, Push)
}
