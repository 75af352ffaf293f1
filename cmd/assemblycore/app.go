package main

import (
	"assemblycore/internal/blob"
	"assemblycore/internal/core"
	"assemblycore/internal/lease"
	"assemblycore/internal/platform/config"
	"assemblycore/internal/platform/logging"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app bundles the service with the resources it holds open.
type app struct {
	logger   *zap.Logger
	service  *core.Service
	registry *prometheus.Registry
	closers  []func() error
}

// buildApp opens every configured backend and assembles the service.
func buildApp(ctx context.Context, cfg *config.Config, extra ...core.ServiceOption) (*app, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := core.OpenPersistentStore(cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	if db, ok := store.(interface{ DB() *sql.DB }); ok {
		a.closers = append(a.closers, db.DB().Close)
	}

	locker, err := a.openLocker(ctx, cfg.Lease)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	opts := []core.ServiceOption{
		core.WithLogger(logging.NewZapLogger(logger)),
		core.WithAuditRecorder(logging.NewAuditLogger(logger)),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(a.registry)),
		core.WithTracer(core.NewOTelTracer(nil)),
		core.WithAllocationLocker(locker),
	}
	if blobs != nil {
		opts = append(opts, core.WithBlobStore(blobs))
	}
	a.service = core.NewService(store, append(opts, extra...)...)
	logger.Info("service assembled",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.Bool("redis_lease", cfg.Lease.RedisURL != ""),
	)
	return a, nil
}

func (a *app) openLocker(ctx context.Context, cfg config.LeaseConfig) (lease.Locker, error) {
	if cfg.RedisURL == "" {
		return lease.NewLocal(), nil
	}
	client, err := lease.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lease.NewRedis(client, cfg.TTL), nil
}

// Close releases backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
