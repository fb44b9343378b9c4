package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"shelterhub/internal/blob"
	"shelterhub/internal/config"
	"shelterhub/internal/core"
	"shelterhub/internal/logging"
	"shelterhub/internal/metrics"
)

// serviceExpvar publishes at most once per process; expvar names are global.
var serviceExpvar = sync.OnceValue(func() *core.OperationStats {
	return core.NewOperationStats("shelterhub_service")
})

// app holds the wired process dependencies shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	log     *logging.Adapter
	store   core.PersistentStore
	photos  blob.Store
	metrics *metrics.Metrics
	svc     *core.Service
}

// newApp loads configuration and opens storage. withMetrics registers the
// Prometheus recorder, which only long-running commands need.
func newApp(ctx context.Context, envFiles []string, withMetrics bool) (*app, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, log: logging.NewAdapter(logger)}

	a.store, err = core.OpenPersistentStore(ctx, cfg.StorageConfig(), core.NewDefaultRulesEngine())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.photos, err = blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(a.log.With("component", "service")),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: a.log.With("component", "audit")}),
		core.WithPhotoStore(a.photos),
		core.WithBcryptCost(cfg.Auth.BcryptCost),
		core.WithReportingCurrency(cfg.ReportingCurrency),
	}
	if withMetrics {
		a.metrics = metrics.New(true)
		opts = append(opts, core.WithMetricsRecorder(core.FanoutMetrics{
			a.metrics,
			serviceExpvar(),
		}))
	}
	if cfg.Log.Trace {
		opts = append(opts, core.WithTracer(core.NewSpanLog(os.Stderr)))
	}
	a.svc = core.NewService(a.store, opts...)
	a.logger.Debug("storage opened",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver),
	)
	return a, nil
}

func (a *app) close() {
	if closer, ok := a.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("close storage", zap.Error(err))
		}
	}
	// Sync on stderr fails on some platforms; nothing useful to do about it.
	_ = a.logger.Sync()
}
