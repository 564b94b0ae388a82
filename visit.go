package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"findit/config"
	"findit/controller"
	"findit/items"
	"findit/navigator"
	"findit/script"
	"findit/session"
)

func visitCmd() *cobra.Command {
	var (
		useBrowser bool
		showHTML   bool
		noSession  bool
		metrics    bool
	)

	cmd := &cobra.Command{
		Use:   "visit <url> [step...]",
		Short: "Open a page and follow links in a headless tab",
		Long: `Open a page with a full load, then apply each step in order:

  <href>      click the link with exactly this href (or navigate to it)
  :back       go back one history entry
  :forward    go forward one history entry

The tab's final page and history are printed when all steps are done.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.Flags().Changed("browser") {
				cfg.Fetcher.UseBrowser = useBrowser
			}
			if noSession {
				cfg.Session.Persist = false
			}
			return visit(cmd.Context(), cmd.OutOrStdout(), cfg, logger, args[0], args[1:], visitOptions{
				html:    showHTML,
				metrics: metrics,
			})
		},
	}

	cmd.Flags().BoolVar(&useBrowser, "browser", false, "fetch pages through headless Chrome")
	cmd.Flags().BoolVar(&showHTML, "html", false, "print the final content region as HTML")
	cmd.Flags().BoolVar(&noSession, "no-session", false, "neither restore nor save history")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print transition counters when done")

	return cmd
}

// visitOptions selects what visit prints besides the tab summary.
type visitOptions struct {
	html    bool
	metrics bool
}

func newTab(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*navigator.Browser, error) {
	policy, err := script.ParsePolicy(cfg.Scripts.OnFailure)
	if err != nil {
		return nil, err
	}

	history := session.New()
	if cfg.Session.Persist {
		snap, err := session.Load(cfg.Session.Path)
		switch {
		case err == nil:
			history.Restore(*snap)
		case errors.Is(err, fs.ErrNotExist):
		default:
			logger.Warn("ignoring unreadable session", zap.Error(err))
		}
	}

	b, err := navigator.NewBrowser(navigator.Config{
		LinkSelector:      cfg.Navigation.LinkSelector,
		InterceptPatterns: cfg.Navigation.InterceptPatterns,
		Routes:            navigator.Routes(cfg.Routes),
		ScriptTimeout:     time.Duration(cfg.Scripts.LoadTimeoutSeconds) * time.Second,
		ScriptPolicy:      policy,
		UseBrowser:        cfg.Fetcher.UseBrowser,
		History:           history,
		Metrics:           navigator.NewMetrics(navigator.WithRegistry(reg)),
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := items.Load(cfg.Items.Path)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	b.Engine().Register(navigator.FamilyApp, controller.NewItemApp(b.Document(), store, logger))
	b.Engine().Register(navigator.FamilyDashboard, controller.NewDashboard(b.Document(), store, b.History(), logger))
	return b, nil
}

func visit(ctx context.Context, w io.Writer, cfg *config.Config, logger *zap.Logger, start string, steps []string, opts visitOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prometheus.NewRegistry()
	b, err := newTab(cfg, reg, logger)
	if err != nil {
		return err
	}

	if _, err := b.Open(ctx, start); err != nil {
		return fmt.Errorf("opening %s: %w", start, err)
	}

	for _, step := range steps {
		if err := runStep(ctx, b, step); err != nil {
			return err
		}
		b.Wait()
	}

	printTab(w, b, opts.html)
	if opts.metrics {
		if err := printCounters(w, reg); err != nil {
			return err
		}
	}

	if cfg.Session.Persist {
		if err := session.Save(cfg.Session.Path, b.History().Snapshot()); err != nil {
			logger.Warn("saving session", zap.Error(err))
		}
	}
	return nil
}

func runStep(ctx context.Context, b *navigator.Browser, step string) error {
	switch step {
	case ":back":
		if !b.Back() {
			return fmt.Errorf("no history to go back to")
		}
		return nil
	case ":forward":
		if !b.Forward() {
			return fmt.Errorf("no history to go forward to")
		}
		return nil
	}

	err := b.ClickLink(ctx, step)
	if !errors.Is(err, navigator.ErrNoLink) {
		return err
	}
	res, err := b.Navigate(ctx, step)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", step, err)
	}
	if res.Outcome == navigator.FellBack {
		fmt.Fprintf(os.Stderr, "fell back to a full load of %s: %v\n", res.URL, res.Cause)
	}
	return nil
}

func printTab(w io.Writer, b *navigator.Browser, showHTML bool) {
	doc := b.Document()
	res := b.Engine().Last()

	fmt.Fprintf(w, "URL:     %s\n", doc.URL())
	fmt.Fprintf(w, "Title:   %s\n", doc.Title())
	if main := doc.Main(); main != nil {
		id, _ := doc.Attr(main, "id")
		fmt.Fprintf(w, "Main:    #%s\n", id)
	} else {
		fmt.Fprintln(w, "Main:    (none)")
	}
	fmt.Fprintf(w, "Last:    %s (generation %d)\n", res.Outcome, res.Generation)
	if len(res.Report.Loaded)+res.Report.Inline > 0 {
		fmt.Fprintf(w, "Scripts: loaded %s, %d inline\n", strings.Join(res.Report.Loaded, ", "), res.Report.Inline)
	}

	fmt.Fprintln(w, "History:")
	cur, _ := b.History().Current()
	for i, e := range b.History().Entries() {
		mark := " "
		if e.ID == cur.ID {
			mark = "*"
		}
		kind := "load"
		if e.State != nil {
			kind = "swap"
		}
		fmt.Fprintf(w, "  %s %2d %-4s %s\n", mark, i, kind, e.URL)
	}

	if showHTML {
		fmt.Fprintln(w)
		fmt.Fprintln(w, doc.OuterHTML(doc.Main()))
	}
}

// printCounters writes every counter in reg, one labelled series per line.
func printCounters(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	fmt.Fprintln(w, "Metrics:")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "  %s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}
