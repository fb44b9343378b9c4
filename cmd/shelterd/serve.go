package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shelterhub/internal/adapters/backup"
	"shelterhub/internal/adapters/httpapi"
	"shelterhub/internal/auth"
	"shelterhub/internal/core"
)

func newServeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled jobs",
		Long: `Serve the HTTP API on SHELTERHUB_HTTP_ADDR.

Scheduled jobs:
  backup - writes a state snapshot to the blob store (SHELTERHUB_BACKUP_SCHEDULE)
  sweep  - flags overdue treatments (SHELTERHUB_SWEEP_SCHEDULE)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if err := a.cfg.RequireTokenSecret(); err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(a.cfg.Auth.TokenSecret, a.cfg.Auth.TokenIssuer, a.cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	api, err := httpapi.NewServer(httpapi.Config{
		Service:        a.svc,
		Tokens:         issuer,
		Logger:         a.logger.Named("http"),
		Metrics:        a.metrics,
		RateLimitRPS:   a.cfg.HTTP.RateLimitRPS,
		RateLimitBurst: a.cfg.HTTP.RateLimitBurst,
	})
	if err != nil {
		return err
	}

	worker := backup.NewWorker(a.store, a.photos,
		backup.WithAudit(core.LogAuditRecorder{Logger: a.log.With("component", "audit")}),
		backup.WithLogger(a.log.With("component", "backup")),
	)
	worker.Start()
	scheduler := backup.NewScheduler(a.log.With("component", "scheduler"), a.metrics)
	if err := scheduler.Add("backup", a.cfg.Jobs.BackupSchedule, backup.BackupJob(worker)); err != nil {
		return err
	}
	if err := scheduler.Add("sweep", a.cfg.Jobs.SweepSchedule, backup.SweepJob(a.svc, a.log.With("component", "sweep"))); err != nil {
		return err
	}
	scheduler.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		a.logger.Warn("backup worker shutdown", zap.Error(err))
	}
	return serveErr
}
