package main

import (
	"assemblycore/internal/adapters/httpapi"
	"assemblycore/internal/core"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var extra []core.ServiceOption
			if seed {
				extra = append(extra, core.WithPartTypeSeeding())
			}
			a, err := buildApp(ctx, opts.cfg, extra...)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv := &http.Server{
				Addr:              opts.cfg.HTTPAddr,
				Handler:           newRouter(a),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serve(ctx, srv, a.logger)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed-part-types", true, "seed the default part types into an empty catalogue")
	return cmd
}

// newRouter mounts the API alongside health and metrics endpoints.
func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.RequestLogger(a.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	httpapi.NewHandler(a.service, a.logger).Register(r)
	return r
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
