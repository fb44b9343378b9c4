package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"shelterhub/internal/core"
)

// JobObserver receives the outcome of every scheduled run.
type JobObserver interface {
	ObserveJob(job string, success bool, duration time.Duration)
}

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules. Overlapping runs of the same
// job are skipped.
type Scheduler struct {
	cron     *cron.Cron
	logger   core.Logger
	observer JobObserver
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler builds a scheduler. observer may be nil.
func NewScheduler(logger core.Logger, observer JobObserver) *Scheduler {
	if logger == nil {
		logger = nopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:   logger,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Add registers job under name with a standard five-field or descriptor spec.
// An empty schedule disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		s.logger.Info("scheduled job disabled", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Entries reports the next activation of each registered job.
func (s *Scheduler) Entries() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running ones and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(name string, job Job) {
	start := time.Now()
	err := job(s.ctx)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveJob(name, err == nil, elapsed)
	}
	if err != nil {
		s.logger.Error("scheduled job failed", "job", name, "duration", elapsed, "error", err)
		return
	}
	s.logger.Info("scheduled job finished", "job", name, "duration", elapsed)
}

// BackupJob enqueues a backup on w.
func BackupJob(w *Worker) Job {
	return func(ctx context.Context) error {
		_, err := w.Enqueue(ctx, Request{RequestedBy: "scheduler", Reason: "scheduled"})
		return err
	}
}

// SweepJob flags overdue treatments and logs what it flagged.
func SweepJob(svc *core.Service, logger core.Logger) Job {
	if logger == nil {
		logger = nopLogger{}
	}
	return func(ctx context.Context) error {
		ctx = core.WithActor(ctx, "scheduler")
		flagged, _, err := svc.SweepOverdueTreatments(ctx, time.Time{})
		if err != nil {
			return err
		}
		if len(flagged) > 0 {
			ids := make([]string, 0, len(flagged))
			for _, t := range flagged {
				ids = append(ids, t.ID)
			}
			logger.Warn("overdue treatments flagged", "count", len(flagged), "treatment_ids", ids)
		}
		return nil
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
