// Package script brings the scripts a fetched page needs into the live
// document: external scripts not yet present are loaded in declaration order,
// then inline scripts run.
package script

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"findit/document"
	"findit/html"
)

var (
	// ErrScriptLoadStall is returned when a script does not finish loading
	// within the load timeout.
	ErrScriptLoadStall = errors.New("script load stalled")
	// ErrScriptLoad is returned when a script cannot be fetched or throws
	// while being evaluated.
	ErrScriptLoad = errors.New("script load failed")
)

// DefaultTimeout bounds each external script load and each inline run.
const DefaultTimeout = 10 * time.Second

// Policy decides what a failed external script does to the transition.
type Policy int

const (
	// Degrade records the failure and carries on without the script.
	Degrade Policy = iota
	// Abort stops reconciliation and returns the error.
	Abort
)

// ParsePolicy maps the config spelling of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "degrade":
		return Degrade, nil
	case "fallback", "abort":
		return Abort, nil
	}
	return Degrade, fmt.Errorf("unknown script failure policy %q", s)
}

// Executor runs script source.
type Executor interface {
	Run(ctx context.Context, name, code string) error
}

// SourceFunc fetches the text of an external script.
type SourceFunc func(ctx context.Context, url string) (string, error)

// Report describes what one reconciliation did.
type Report struct {
	Loaded       []string // external scripts inserted and loaded
	Skipped      []string // external scripts already present
	Failed       []string // external scripts that failed under Degrade
	Inline       int      // inline scripts run
	InlineErrors int      // inline scripts that threw
}

// Reconciler loads scripts into a live document.
type Reconciler struct {
	doc     *document.Document
	exec    Executor
	source  SourceFunc
	timeout time.Duration
	policy  Policy
	logger  *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTimeout sets the per-script load timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPolicy sets the failure policy.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) {
		r.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l.Named("scripts")
	}
}

// NewReconciler returns a reconciler for doc.
func NewReconciler(doc *document.Document, exec Executor, source SourceFunc, opts ...Option) *Reconciler {
	r := &Reconciler{
		doc:     doc,
		exec:    exec,
		source:  source,
		timeout: DefaultTimeout,
		policy:  Degrade,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Policy returns the failure policy in effect.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Reconcile inserts and loads the fragment's external scripts that the live
// document does not already hold, strictly in order, then runs every inline
// script of the fragment. base resolves relative script URLs.
func (r *Reconciler) Reconcile(ctx context.Context, base *url.URL, frag *html.Fragment) (Report, error) {
	var rep Report

	for _, src := range frag.Scripts {
		if r.doc.HasScript(src) {
			rep.Skipped = append(rep.Skipped, src)
			continue
		}
		r.doc.AppendScript(src)
		if err := r.external(ctx, base, src, &rep); err != nil {
			return rep, err
		}
	}

	return rep, r.inline(ctx, frag.InlineScripts, &rep)
}

// Boot runs every script already in the live document in document order,
// as a freshly loaded page does.
func (r *Reconciler) Boot(ctx context.Context, base *url.URL) (Report, error) {
	var rep Report

	var inline []string
	for _, s := range r.doc.Scripts() {
		if !s.Inline {
			if err := r.inline(ctx, inline, &rep); err != nil {
				return rep, err
			}
			inline = inline[:0]
			if err := r.external(ctx, base, s.Src, &rep); err != nil {
				return rep, err
			}
			continue
		}
		inline = append(inline, s.Body)
	}
	return rep, r.inline(ctx, inline, &rep)
}

func (r *Reconciler) external(ctx context.Context, base *url.URL, src string, rep *Report) error {
	err := r.load(ctx, base, src)
	if err == nil {
		rep.Loaded = append(rep.Loaded, src)
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	rep.Failed = append(rep.Failed, src)
	if r.policy == Abort {
		return err
	}
	r.logger.Warn("continuing without script", zap.String("src", src), zap.Error(err))
	return nil
}

func (r *Reconciler) load(ctx context.Context, base *url.URL, src string) error {
	ref, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScriptLoad, src, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	code, err := r.source(loadCtx, ref.String())
	if err == nil {
		err = r.exec.Run(loadCtx, src, code)
	}
	switch {
	case err == nil:
		r.logger.Debug("script loaded", zap.String("src", src))
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(loadCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", ErrScriptLoadStall, src, r.timeout)
	}
	return fmt.Errorf("%w: %s: %w", ErrScriptLoad, src, err)
}

func (r *Reconciler) inline(ctx context.Context, bodies []string, rep *Report) error {
	for i, body := range bodies {
		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.exec.Run(runCtx, fmt.Sprintf("inline-%d", rep.Inline+i), body)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rep.InlineErrors++
			r.logger.Warn("inline script failed", zap.Error(err))
		}
	}
	rep.Inline += len(bodies)
	return nil
}
