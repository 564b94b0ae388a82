package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"findit/site"
)

func serveCmd() *cobra.Command {
	var (
		addr     string
		allowAll bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bulletin pages",
		Long:  `Serve the bulletin's pages, scripts and a /metrics endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("allow-all") {
				cfg.Server.AllowAll = allowAll
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			srv := site.New(site.Config{
				Addr:     cfg.Server.Addr,
				AllowAll: cfg.Server.AllowAll,
				Registry: reg,
				Logger:   logger,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case s := <-sig:
				logger.Info("shutting down", zap.String("signal", s.String()))
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&allowAll, "allow-all", false, "allow all CORS origins")

	return cmd
}
