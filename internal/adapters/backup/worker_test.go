package backup

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	blob "shelterhub/internal/blob/core"
	"shelterhub/internal/core"
	blobmemory "shelterhub/internal/infra/blob/memory"
	"shelterhub/pkg/domain"
)

var fixedNow = time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)

type captureAudit struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (c *captureAudit) Record(_ context.Context, entry core.AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) all() []core.AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.AuditEntry(nil), c.entries...)
}

type failingStore struct {
	blob.Store
}

func (failingStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func seededService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })))
	ctx := context.Background()
	ward, _, err := svc.CreateWard(ctx, domain.Ward{Name: "North"})
	if err != nil {
		t.Fatalf("create ward: %v", err)
	}
	if _, _, err := svc.CreateCage(ctx, domain.Cage{Label: "N1", WardID: ward.ID, Capacity: 2}); err != nil {
		t.Fatalf("create cage: %v", err)
	}
	for _, name := range []string{"Tom", "Kit"} {
		if _, _, err := svc.IntakeCat(ctx, domain.Cat{Name: name}); err != nil {
			t.Fatalf("intake %s: %v", name, err)
		}
	}
	return svc
}

func TestRunWritesLoadableBackup(t *testing.T) {
	svc := seededService(t)
	store := blobmemory.New()
	audit := &captureAudit{}
	w := NewWorker(svc.Store(), store, WithAudit(audit), WithClock(func() time.Time { return fixedNow }))

	record, err := w.Run(context.Background(), Request{RequestedBy: "cli", Reason: "manual"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if record.Status != StatusSucceeded || record.CompletedAt == nil {
		t.Fatalf("unexpected record %+v", record)
	}
	if !strings.HasPrefix(record.Key, "backups/20240601T030000Z-"+record.ID) || !strings.HasSuffix(record.Key, ".json") {
		t.Fatalf("unexpected key %s", record.Key)
	}
	if record.Counts["cats"] != 2 || record.Counts["cages"] != 1 || record.SizeBytes == 0 {
		t.Fatalf("unexpected counts %+v size %d", record.Counts, record.SizeBytes)
	}

	info, err := store.Head(context.Background(), record.Key)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentType != "application/json" || info.Metadata["backup_id"] != record.ID {
		t.Fatalf("unexpected blob info %+v", info)
	}

	doc, err := w.Load(context.Background(), strings.TrimPrefix(record.Key, KeyPrefix))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.BackupID != record.ID || len(doc.State.Cats) != 2 || doc.State.IntakeSequence != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}

	listed, err := w.List(context.Background())
	if err != nil || len(listed) != 1 || listed[0].Key != record.Key {
		t.Fatalf("unexpected listing %+v err=%v", listed, err)
	}

	entries := audit.all()
	if len(entries) != 1 || entries[0].Operation != "run_backup" || entries[0].Actor != "cli" || entries[0].Status != core.AuditStatusSuccess {
		t.Fatalf("unexpected audit %+v", entries)
	}
}

func TestRunReportsStoreFailure(t *testing.T) {
	svc := seededService(t)
	audit := &captureAudit{}
	w := NewWorker(svc.Store(), failingStore{Store: blobmemory.New()}, WithAudit(audit))

	record, err := w.Run(context.Background(), Request{RequestedBy: "cli"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store failure, got %v", err)
	}
	if record.Status != StatusFailed || record.Key != "" {
		t.Fatalf("unexpected record %+v", record)
	}
	entries := audit.all()
	if len(entries) != 1 || entries[0].Status != core.AuditStatusError {
		t.Fatalf("expected failure audit, got %+v", entries)
	}
}

func TestWorkerProcessesQueue(t *testing.T) {
	svc := seededService(t)
	audit := &captureAudit{}
	w := NewWorker(svc.Store(), blobmemory.New(), WithAudit(audit))
	w.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := w.Stop(ctx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	queued, err := w.Enqueue(context.Background(), Request{RequestedBy: "scheduler"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued {
		t.Fatalf("expected queued status, got %s", queued.Status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		record, ok := w.Get(queued.ID)
		if !ok {
			t.Fatalf("record disappeared")
		}
		if record.Status == StatusSucceeded {
			break
		}
		if record.Status == StatusFailed {
			t.Fatalf("backup failed: %s", record.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("backup did not finish, status %s", record.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline = time.Now().Add(time.Second)
	for len(audit.all()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected enqueue and run audits, got %+v", audit.all())
		}
		time.Sleep(5 * time.Millisecond)
	}
	ops := map[string]bool{}
	for _, e := range audit.all() {
		ops[e.Operation] = true
	}
	if !ops["enqueue_backup"] || !ops["run_backup"] {
		t.Fatalf("unexpected audit operations %+v", ops)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	svc := seededService(t)
	w := NewWorker(svc.Store(), blobmemory.New(), WithQueueSize(1))

	first, err := w.Enqueue(context.Background(), Request{})
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := w.Enqueue(context.Background(), Request{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, ok := w.Get(first.ID); !ok {
		t.Fatalf("expected first record to remain tracked")
	}
	if _, ok := w.Get("missing"); ok {
		t.Fatalf("expected unknown id to be absent")
	}
}

func TestWorkerRequiresStore(t *testing.T) {
	svc := seededService(t)
	w := NewWorker(svc.Store(), nil)
	if _, err := w.Run(context.Background(), Request{}); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := w.List(context.Background()); err == nil {
		t.Fatalf("expected missing store error from List")
	}
}

func TestRestoreReplacesState(t *testing.T) {
	svc := seededService(t)
	audit := &captureAudit{}
	w := NewWorker(svc.Store(), blobmemory.New(), WithAudit(audit), WithClock(func() time.Time { return fixedNow }))
	record, err := w.Run(context.Background(), Request{RequestedBy: "cli"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, _, err := svc.IntakeCat(context.Background(), domain.Cat{Name: "Late"}); err != nil {
		t.Fatalf("intake: %v", err)
	}

	doc, err := w.Restore(context.Background(), record.Key, "cli")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if doc.BackupID != record.ID || doc.Counts()["cats"] != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if got := len(svc.Store().ExportState().Cats); got != 2 {
		t.Fatalf("expected state rolled back to two cats, got %d", got)
	}
	entries := audit.all()
	last := entries[len(entries)-1]
	if last.Operation != "restore_backup" || last.EntityID != record.ID || last.Status != core.AuditStatusSuccess {
		t.Fatalf("unexpected restore audit %+v", last)
	}

	if _, err := w.Restore(context.Background(), "missing.json", "cli"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found for missing backup, got %v", err)
	}
}

type exportOnly struct{ domain.Snapshot }

func (e exportOnly) ExportState() domain.Snapshot { return e.Snapshot }

func TestRestoreRequiresRestorer(t *testing.T) {
	w := NewWorker(exportOnly{}, blobmemory.New())
	if _, err := w.Restore(context.Background(), "any.json", "cli"); err == nil || !strings.Contains(err.Error(), "cannot restore") {
		t.Fatalf("expected restorer error, got %v", err)
	}
}

func TestRecordLimitDropsOldestFinished(t *testing.T) {
	svc := seededService(t)
	tick := fixedNow
	clock := func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	w := NewWorker(svc.Store(), blobmemory.New(), WithClock(clock), WithRecordLimit(2))

	var ids []string
	for i := 0; i < 3; i++ {
		record, err := w.Run(context.Background(), Request{RequestedBy: "cli"})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		ids = append(ids, record.ID)
	}
	if _, ok := w.Get(ids[0]); ok {
		t.Fatalf("expected oldest record dropped")
	}
	for _, id := range ids[1:] {
		if _, ok := w.Get(id); !ok {
			t.Fatalf("expected record %s kept", id)
		}
	}

	pending := NewWorker(svc.Store(), blobmemory.New(), WithRecordLimit(1), WithQueueSize(4))
	var queued []string
	for i := 0; i < 3; i++ {
		record, err := pending.Enqueue(context.Background(), Request{})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		queued = append(queued, record.ID)
	}
	for _, id := range queued {
		if _, ok := pending.Get(id); !ok {
			t.Fatalf("queued record %s must not be dropped", id)
		}
	}
}
