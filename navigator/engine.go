// Package navigator moves the live document between pages without full
// reloads. An Engine fetches the target page, swaps its content region into
// the live document, reconciles scripts, remounts the page controllers and
// records history. Clicks on navigation links reach the Engine through an
// Interceptor; back and forward reach it through a Browser.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"findit/document"
	"findit/html"
	"findit/lifecycle"
	"findit/script"
	"findit/session"
)

const tracerName = "findit/navigator"

// State is the phase of the transition in progress.
type State int32

const (
	Idle State = iota
	Loading
	Swapping
	ReconcilingScripts
	Mounting
	Fallback
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Swapping:
		return "swapping"
	case ReconcilingScripts:
		return "reconciling-scripts"
	case Mounting:
		return "mounting"
	case Fallback:
		return "fallback"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Mode says whether a transition records a history entry.
type Mode int

const (
	// Push records a new history entry once the transition completes.
	Push Mode = iota
	// Replay follows history traversal and records nothing.
	Replay
)

func (m Mode) String() string {
	if m == Replay {
		return "replay"
	}
	return "push"
}

// Outcome is how a transition ended.
type Outcome int

const (
	Completed Outcome = iota
	// Superseded transitions were overtaken by a newer one and left the
	// document alone from that point on.
	Superseded
	// FellBack transitions handed the target to native navigation.
	FellBack
	// Native is a full page load requested directly.
	Native
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Superseded:
		return "superseded"
	case FellBack:
		return "fallback"
	case Native:
		return "native"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes a finished transition.
type Result struct {
	URL        string
	Generation uint64
	Outcome    Outcome
	Report     script.Report
	// Cause is the failure that led to a fallback.
	Cause error
}

// NativeNavigator performs a full page load.
type NativeNavigator interface {
	Assign(ctx context.Context, target *url.URL) error
}

// ScriptReconciler brings a fragment's scripts into the live document.
type ScriptReconciler interface {
	Reconcile(ctx context.Context, base *url.URL, frag *html.Fragment) (script.Report, error)
}

// Engine runs transitions. The most recently started transition always wins:
// starting one cancels the one in flight, and a transition that finds itself
// overtaken stops before touching the document again.
type Engine struct {
	doc        *document.Document
	history    *session.History
	loader     Loader
	native     NativeNavigator
	reconciler ScriptReconciler
	routes     Routes
	links      string
	logger     *zap.Logger
	metrics    *Metrics
	tracer     trace.Tracer

	families    []string
	controllers map[string]lifecycle.Controller

	gen    atomic.Uint64
	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	last   Result

	// commit serializes the phases that mutate the document.
	commit sync.Mutex
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoader sets the page loader.
func WithLoader(l Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithNative sets the full page load used for fallbacks.
func WithNative(n NativeNavigator) Option {
	return func(e *Engine) { e.native = n }
}

// WithReconciler sets the script reconciler.
func WithReconciler(r ScriptReconciler) Option {
	return func(e *Engine) { e.reconciler = r }
}

// WithController registers the controller mounted for a family.
func WithController(family string, c lifecycle.Controller) Option {
	return func(e *Engine) { e.Register(family, c) }
}

// WithRoutes replaces the routing table.
func WithRoutes(r Routes) Option {
	return func(e *Engine) { e.routes = r }
}

// WithLinkSelector sets the selector of links marked active.
func WithLinkSelector(sel string) Option {
	return func(e *Engine) {
		if sel != "" {
			e.links = sel
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l.Named("navigator") }
}

// WithMetrics enables transition metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer. By default the global provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine returns an engine working on doc and recording into history.
func NewEngine(doc *document.Document, history *session.History, opts ...Option) *Engine {
	e := &Engine{
		doc:         doc,
		history:     history,
		routes:      DefaultRoutes(),
		links:       DefaultLinkSelector,
		logger:      zap.NewNop(),
		controllers: make(map[string]lifecycle.Controller),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = NewPageLoader(false, e.logger)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Register adds or replaces the controller for a family. Controllers must be
// registered before transitions start.
func (e *Engine) Register(family string, c lifecycle.Controller) {
	if _, ok := e.controllers[family]; !ok {
		e.families = append(e.families, family)
	}
	e.controllers[family] = c
}

// State returns the phase of the latest transition.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Generation returns the token of the latest transition.
func (e *Engine) Generation() uint64 {
	return e.gen.Load()
}

// Last returns the result of the most recently finished transition.
func (e *Engine) Last() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Navigate runs a transition to target on the calling goroutine.
func (e *Engine) Navigate(ctx context.Context, target *url.URL, mode Mode) (Result, error) {
	gen, ctx, cancel := e.begin(ctx)
	defer cancel()
	return e.transition(ctx, gen, target, mode)
}

// Start runs a transition in the background. The returned channel receives
// its result. The new transition supersedes any in flight as soon as Start
// returns.
func (e *Engine) Start(target *url.URL, mode Mode) <-chan Result {
	gen, ctx, cancel := e.begin(context.Background())
	out := make(chan Result, 1)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		res, err := e.transition(ctx, gen, target, mode)
		if err != nil {
			e.logger.Warn("transition failed", zap.String("url", target.String()), zap.Error(err))
		}
		out <- res
	}()
	return out
}

// Wait blocks until every transition started with Start has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Assign performs a full page load of target through the native navigator,
// superseding any transition in flight.
func (e *Engine) Assign(ctx context.Context, target *url.URL) (Result, error) {
	gen, ctx, cancel := e.begin(ctx)
	defer cancel()

	e.commit.Lock()
	defer e.commit.Unlock()

	res := Result{URL: target.String(), Generation: gen, Outcome: Native}
	if !e.current(gen) {
		res.Outcome = Superseded
		return res, nil
	}
	e.setState(Fallback)
	defer e.finish(gen, res)
	if e.native == nil {
		return res, errors.New("no native navigator configured")
	}
	return res, e.native.Assign(ctx, target)
}

// Activate marks the navigation link for target and mounts its routed
// controller, as the last phase of a transition does. Native navigation
// calls it after booting a freshly loaded page.
func (e *Engine) Activate(target *url.URL) {
	SetActiveNav(e.doc, e.links, target)

	family, ok := e.routes.Lookup(target)
	if !ok {
		e.logger.Debug("no controller routed", zap.String("page", Basename(target.Path)))
		return
	}
	c, ok := e.controllers[family]
	if !ok {
		e.logger.Debug("no controller registered", zap.String("family", family))
		return
	}
	if err := c.Mount(); err != nil {
		e.logger.Warn("mount failed", zap.String("family", family), zap.Error(err))
	}
}

// UnmountAll unmounts every registered controller.
func (e *Engine) UnmountAll() {
	for _, family := range e.families {
		e.controllers[family].Unmount()
	}
}

func (e *Engine) begin(parent context.Context) (uint64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	gen := e.gen.Add(1)
	e.state.Store(int32(Loading))
	e.mu.Unlock()

	return gen, ctx, cancel
}

func (e *Engine) current(gen uint64) bool {
	return e.gen.Load() == gen
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Engine) finish(gen uint64, res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = res
	if e.current(gen) {
		e.state.Store(int32(Idle))
	}
}

func (e *Engine) transition(ctx context.Context, gen uint64, target *url.URL, mode Mode) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "navigator.transition", trace.WithAttributes(
		attribute.String("navigation.url", target.String()),
		attribute.String("navigation.mode", mode.String()),
		attribute.Int64("navigation.generation", int64(gen)),
	))
	defer span.End()

	start := time.Now()
	res, err := e.run(ctx, gen, target, mode)
	took := time.Since(start)

	span.SetAttributes(attribute.String("navigation.outcome", res.Outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if res.Cause != nil {
		span.SetStatus(codes.Error, res.Cause.Error())
	}
	e.metrics.observe(mode, res, took)
	e.logger.Debug("transition finished",
		zap.String("url", res.URL),
		zap.Stringer("mode", mode),
		zap.Stringer("outcome", res.Outcome),
		zap.Duration("took", took),
	)
	return res, err
}

func (e *Engine) run(ctx context.Context, gen uint64, target *url.URL, mode Mode) (Result, error) {
	res := Result{URL: target.String(), Generation: gen}

	frag, err := e.loader.Load(ctx, target)
	if err != nil {
		if !e.current(gen) || ctx.Err() != nil {
			res.Outcome = Superseded
			e.finish(gen, res)
			return res, nil
		}
		return e.fallback(ctx, res, target, err)
	}

	res, err = e.commitPage(ctx, res, target, mode, frag)
	var fe *fallbackError
	if errors.As(err, &fe) {
		return e.fallback(ctx, res, target, fe.cause)
	}
	e.finish(gen, res)
	return res, err
}

type fallbackError struct{ cause error }

func (e *fallbackError) Error() string { return e.cause.Error() }

func (e *Engine) commitPage(ctx context.Context, res Result, target *url.URL, mode Mode, frag *html.Fragment) (Result, error) {
	e.commit.Lock()
	defer e.commit.Unlock()

	superseded := func() bool {
		if e.current(res.Generation) && ctx.Err() == nil {
			return false
		}
		res.Outcome = Superseded
		return true
	}

	if superseded() {
		return res, nil
	}
	e.setState(Swapping)
	e.UnmountAll()
	if err := e.swap(frag); err != nil {
		return res, &fallbackError{cause: err}
	}

	e.setState(ReconcilingScripts)
	if e.reconciler != nil {
		rep, err := e.reconciler.Reconcile(ctx, target, frag)
		res.Report = rep
		e.metrics.report(rep)
		if err != nil {
			if superseded() {
				return res, nil
			}
			return res, &fallbackError{cause: err}
		}
	}

	if superseded() {
		return res, nil
	}
	e.setState(Mounting)
	// Controllers read the location while mounting.
	if mode == Push {
		e.doc.SetURL(target)
	}
	e.Activate(target)

	if superseded() {
		return res, nil
	}
	if mode == Push {
		e.history.Push(target.String(), &session.State{URL: target.String()})
	}
	res.Outcome = Completed
	return res, nil
}

func (e *Engine) swap(frag *html.Fragment) error {
	if err := e.doc.ReplaceMain(frag.Main); err != nil {
		return err
	}
	if frag.Title != "" {
		e.doc.SetTitle(frag.Title)
	}
	opts := html.Current()
	if frag.HeaderTitle != nil {
		e.doc.CopyInner(opts.HeaderTitleSelector, frag.HeaderTitle)
	}
	if frag.Subtitle != nil {
		e.doc.CopyInner(opts.SubtitleSelector, frag.Subtitle)
	}
	return nil
}

func (e *Engine) fallback(ctx context.Context, res Result, target *url.URL, cause error) (Result, error) {
	e.commit.Lock()
	defer e.commit.Unlock()

	if !e.current(res.Generation) || ctx.Err() != nil {
		res.Outcome = Superseded
		e.finish(res.Generation, res)
		return res, nil
	}

	e.logger.Warn("falling back to native navigation",
		zap.String("url", target.String()),
		zap.Error(cause),
	)
	e.metrics.fallback(fallbackReason(cause))
	e.setState(Fallback)

	res.Outcome = FellBack
	res.Cause = cause
	defer e.finish(res.Generation, res)
	if e.native == nil {
		return res, fmt.Errorf("no native navigator for fallback: %w", cause)
	}
	if err := e.native.Assign(ctx, target); err != nil {
		return res, fmt.Errorf("native navigation to %s: %w", target, err)
	}
	return res, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrFetchFailure):
		return "fetch"
	case errors.Is(err, ErrMalformedPage):
		return "malformed"
	case errors.Is(err, document.ErrNoMain):
		return "no-main"
	case errors.Is(err, script.ErrScriptLoadStall):
		return "script-stall"
	case errors.Is(err, script.ErrScriptLoad):
		return "script"
	}
	return "other"
}
