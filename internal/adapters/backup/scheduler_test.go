package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

type jobObservation struct {
	job     string
	success bool
}

type captureObserver struct {
	mu   sync.Mutex
	runs []jobObservation
}

func (c *captureObserver) ObserveJob(job string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, jobObservation{job: job, success: success})
}

func TestSchedulerAddValidatesSpecs(t *testing.T) {
	s := NewScheduler(nil, nil)
	noop := func(context.Context) error { return nil }
	if err := s.Add("backup", "not a schedule", noop); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
	if err := s.Add("disabled", "", noop); err != nil {
		t.Fatalf("empty schedule should disable the job: %v", err)
	}
	if err := s.Add("sweep", "@hourly", noop); err != nil {
		t.Fatalf("add sweep: %v", err)
	}
	if err := s.Add("backup", "0 3 * * *", noop); err != nil {
		t.Fatalf("add backup: %v", err)
	}
	if got := len(s.Entries()); got != 2 {
		t.Fatalf("expected 2 registered jobs, got %d", got)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSchedulerRunReportsOutcome(t *testing.T) {
	obs := &captureObserver{}
	s := NewScheduler(nil, obs)
	s.run("ok", func(context.Context) error { return nil })
	s.run("broken", func(context.Context) error { return errors.New("boom") })

	if len(obs.runs) != 2 || !obs.runs[0].success || obs.runs[1].success || obs.runs[1].job != "broken" {
		t.Fatalf("unexpected observations %+v", obs.runs)
	}
}

func TestSweepJobFlagsOverdueTreatments(t *testing.T) {
	svc := seededService(t)
	ctx := context.Background()
	cats, err := svc.ListCats(ctx, core.CatFilter{})
	if err != nil || len(cats) == 0 {
		t.Fatalf("list cats: %v", err)
	}
	overdue, _, err := svc.ScheduleTreatment(ctx, domain.Treatment{
		CatID:       cats[0].ID,
		Kind:        domain.TreatmentDeworming,
		ScheduledAt: fixedNow.Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	obs := &captureObserver{}
	s := NewScheduler(nil, obs)
	s.run("sweep", SweepJob(svc, nil))

	treatments, err := svc.ListTreatments(ctx, core.TreatmentFilter{CatID: cats[0].ID})
	if err != nil {
		t.Fatalf("list treatments: %v", err)
	}
	if len(treatments) != 1 || treatments[0].ID != overdue.ID || treatments[0].Status != domain.TreatmentStatusFlagged {
		t.Fatalf("expected treatment flagged, got %+v", treatments)
	}
	if len(obs.runs) != 1 || !obs.runs[0].success {
		t.Fatalf("unexpected observations %+v", obs.runs)
	}
}

func TestBackupJobPropagatesErrors(t *testing.T) {
	svc := seededService(t)
	w := NewWorker(svc.Store(), nil)
	if err := BackupJob(w)(context.Background()); err == nil {
		t.Fatalf("expected error without a store")
	}
}
