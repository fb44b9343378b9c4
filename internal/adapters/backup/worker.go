// Package backup serializes shelter state into the blob store, either on
// demand or from a cron schedule.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	blob "shelterhub/internal/blob/core"
	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

// Status describes the lifecycle stage of a backup.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// KeyPrefix is the blob namespace holding backup documents.
const KeyPrefix = "backups/"

// FormatVersion is written into every backup document.
const FormatVersion = 1

// ErrQueueFull is returned by Enqueue when the worker cannot accept more work.
var ErrQueueFull = errors.New("backup queue full")

// Record tracks a backup request and its outcome.
type Record struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Key         string         `json:"key,omitempty"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
	Counts      map[string]int `json:"counts,omitempty"`
	RequestedBy string         `json:"requested_by"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	out := r
	if r.Counts != nil {
		out.Counts = make(map[string]int, len(r.Counts))
		for k, v := range r.Counts {
			out.Counts[k] = v
		}
	}
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

// Request describes who asked for a backup and why.
type Request struct {
	RequestedBy string
	Reason      string
}

// Document is the JSON layout of a stored backup.
type Document struct {
	Version   int             `json:"version"`
	BackupID  string          `json:"backup_id"`
	CreatedAt time.Time       `json:"created_at"`
	State     domain.Snapshot `json:"state"`
}

// Source exposes the state to back up. core.PersistentStore satisfies it.
type Source interface {
	ExportState() domain.Snapshot
}

// Restorer accepts a snapshot loaded from a backup. core.PersistentStore
// satisfies it.
type Restorer interface {
	Restore(ctx context.Context, snapshot domain.Snapshot) error
}

// Option customizes a Worker.
type Option func(*Worker)

// WithAudit records backup requests and outcomes.
func WithAudit(recorder core.AuditRecorder) Option {
	return func(w *Worker) {
		if recorder != nil {
			w.audit = recorder
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger core.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithQueueSize sets the pending-request buffer.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithRecordLimit caps how many backup records the worker remembers. The
// oldest finished records are dropped first.
func WithRecordLimit(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxRecords = n
		}
	}
}

// Worker writes backups asynchronously.
type Worker struct {
	source     Source
	store      blob.Store
	audit      core.AuditRecorder
	logger     core.Logger
	now        func() time.Time
	queueSize  int
	maxRecords int

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a worker writing snapshots of source into store.
func NewWorker(source Source, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source:     source,
		store:      store,
		audit:      nopAudit{},
		logger:     nopLogger{},
		now:        time.Now,
		queueSize:  32,
		maxRecords: 100,
		jobs:       make(map[string]*Record),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan string, w.queueSize)
	return w
}

// Start begins processing queued backups.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the running backup.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(w.ctx, id)
		}
	}
}

// Enqueue schedules a backup and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	if err := w.ready(); err != nil {
		return Record{}, err
	}
	record := w.register(req)
	select {
	case w.queue <- record.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.record(ctx, "enqueue_backup", record, nil)
	return record, nil
}

// Run writes a backup synchronously and returns the finished record. A failed
// backup returns the record together with the error.
func (w *Worker) Run(ctx context.Context, req Request) (Record, error) {
	if err := w.ready(); err != nil {
		return Record{}, err
	}
	record := w.register(req)
	w.process(ctx, record.ID)
	final, _ := w.Get(record.ID)
	if final.Status == StatusFailed {
		return final, errors.New(final.Error)
	}
	return final, nil
}

// Get returns a copy of the backup record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// List returns the stored backup documents, newest first.
func (w *Worker) List(ctx context.Context) ([]blob.Info, error) {
	if w.store == nil {
		return nil, errors.New("backup store not configured")
	}
	items, err := w.store.List(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key > items[j].Key })
	return items, nil
}

// Load reads a stored backup document.
func (w *Worker) Load(ctx context.Context, key string) (Document, error) {
	if w.store == nil {
		return Document{}, errors.New("backup store not configured")
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		key = KeyPrefix + key
	}
	_, rc, err := w.store.Get(ctx, key)
	if err != nil {
		return Document{}, err
	}
	defer rc.Close()
	var doc Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode backup %s: %w", key, err)
	}
	if doc.Version != FormatVersion {
		return Document{}, fmt.Errorf("backup %s: unsupported version %d", key, doc.Version)
	}
	return doc, nil
}

// Restore loads the backup stored under key and replaces the source state
// with it. The source must implement Restorer.
func (w *Worker) Restore(ctx context.Context, key, actor string) (Document, error) {
	target, ok := w.source.(Restorer)
	if !ok {
		return Document{}, errors.New("backup source cannot restore state")
	}
	doc, err := w.Load(ctx, key)
	if err != nil {
		return Document{}, err
	}
	started := w.now().UTC()
	err = target.Restore(ctx, doc.State)
	entry := core.AuditEntry{
		Operation: "restore_backup",
		Entity:    "backup",
		Action:    domain.ActionUpdate,
		EntityID:  doc.BackupID,
		Actor:     actor,
		Status:    core.AuditStatusSuccess,
		Timestamp: w.now().UTC(),
	}
	entry.Duration = entry.Timestamp.Sub(started)
	if err != nil {
		entry.Status = core.AuditStatusError
		entry.Error = err.Error()
		w.audit.Record(context.WithoutCancel(ctx), entry)
		w.logger.Error("backup restore failed", "backup_id", doc.BackupID, "error", err)
		return Document{}, fmt.Errorf("restore backup %s: %w", doc.BackupID, err)
	}
	w.audit.Record(context.WithoutCancel(ctx), entry)
	w.logger.Info("backup restored", "backup_id", doc.BackupID, "created_at", doc.CreatedAt)
	return doc, nil
}

// Counts tallies the records held in a backup document.
func (d Document) Counts() map[string]int {
	return countRecords(d.State)
}

func (w *Worker) ready() error {
	if w.source == nil {
		return errors.New("backup source not configured")
	}
	if w.store == nil {
		return errors.New("backup store not configured")
	}
	return nil
}

func (w *Worker) register(req Request) Record {
	now := w.now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.mu.Lock()
	w.jobs[record.ID] = &record
	w.pruneLocked()
	w.mu.Unlock()
	return record.copy()
}

// pruneLocked drops the oldest finished records beyond maxRecords. Queued and
// running records are never dropped.
func (w *Worker) pruneLocked() {
	excess := len(w.jobs) - w.maxRecords
	if excess <= 0 {
		return
	}
	finished := make([]*Record, 0, len(w.jobs))
	for _, r := range w.jobs {
		if r.Status == StatusSucceeded || r.Status == StatusFailed {
			finished = append(finished, r)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		if finished[i].CreatedAt.Equal(finished[j].CreatedAt) {
			return finished[i].ID < finished[j].ID
		}
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})
	for i := 0; i < excess && i < len(finished); i++ {
		delete(w.jobs, finished[i].ID)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	w.update(id, func(r *Record) { r.Status = StatusRunning })

	started := w.now().UTC()
	state := w.source.ExportState()
	doc := Document{Version: FormatVersion, BackupID: id, CreatedAt: started, State: state}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		w.fail(ctx, id, fmt.Errorf("encode snapshot: %w", err))
		return
	}
	key := fmt.Sprintf("%s%s-%s.json", KeyPrefix, started.Format("20060102T150405Z"), id)
	info, err := w.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"backup_id": id, "format_version": fmt.Sprint(FormatVersion)},
	})
	if err != nil {
		w.fail(ctx, id, fmt.Errorf("store backup: %w", err))
		return
	}

	now := w.now().UTC()
	var final Record
	w.update(id, func(r *Record) {
		r.Status = StatusSucceeded
		r.Error = ""
		r.Key = info.Key
		r.SizeBytes = info.Size
		r.Counts = countRecords(state)
		r.CompletedAt = &now
		final = r.copy()
	})
	w.logger.Info("backup written", "backup_id", id, "key", info.Key, "bytes", info.Size)
	w.record(ctx, "run_backup", final, nil)
}

func (w *Worker) fail(ctx context.Context, id string, err error) {
	now := w.now().UTC()
	var final Record
	w.update(id, func(r *Record) {
		r.Status = StatusFailed
		r.Error = err.Error()
		r.CompletedAt = &now
		final = r.copy()
	})
	w.logger.Error("backup failed", "backup_id", id, "error", err)
	w.record(ctx, "run_backup", final, err)
}

func (w *Worker) update(id string, mutate func(*Record)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		mutate(record)
		record.UpdatedAt = w.now().UTC()
	}
}

func (w *Worker) record(ctx context.Context, op string, r Record, err error) {
	entry := core.AuditEntry{
		Operation: op,
		Entity:    "backup",
		Action:    domain.ActionCreate,
		EntityID:  r.ID,
		Actor:     r.RequestedBy,
		Status:    core.AuditStatusSuccess,
		Timestamp: w.now().UTC(),
	}
	if r.CompletedAt != nil {
		entry.Duration = r.CompletedAt.Sub(r.CreatedAt)
	}
	if err != nil {
		entry.Status = core.AuditStatusError
		entry.Error = err.Error()
	}
	w.audit.Record(context.WithoutCancel(ctx), entry)
}

func countRecords(s domain.Snapshot) map[string]int {
	return map[string]int{
		"wards":      len(s.Wards),
		"cages":      len(s.Cages),
		"cats":       len(s.Cats),
		"treatments": len(s.Treatments),
		"donations":  len(s.Donations),
		"ledger":     len(s.Ledger),
		"teams":      len(s.Teams),
		"users":      len(s.Users),
	}
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, core.AuditEntry) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
