package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var statsSeq atomic.Uint64

// OperationTally is the running count for one service operation.
type OperationTally struct {
	Calls    int64   `json:"calls"`
	Failures int64   `json:"failures"`
	TotalMS  float64 `json:"total_ms"`
}

// OperationStats keeps per-operation tallies and serves them as an expvar
// variable, so /debug/vars shows service activity without a Prometheus scraper.
type OperationStats struct {
	name string

	mu     sync.Mutex
	tallies map[string]*OperationTally
}

// NewOperationStats publishes the stats under name. An empty name gets a
// unique generated one; expvar panics on reused names.
func NewOperationStats(name string) *OperationStats {
	if name == "" {
		name = fmt.Sprintf("shelterhub_operations_%d", statsSeq.Add(1))
	}
	stats := &OperationStats{name: name, tallies: make(map[string]*OperationTally)}
	expvar.Publish(name, expvar.Func(func() any { return stats.Tallies() }))
	return stats
}

// Name is the expvar key.
func (s *OperationStats) Name() string { return s.name }

// Tallies copies the current counts keyed by operation.
func (s *OperationStats) Tallies() map[string]OperationTally {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OperationTally, len(s.tallies))
	for op, t := range s.tallies {
		out[op] = *t
	}
	return out
}

// Observe implements MetricsRecorder.
func (s *OperationStats) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tallies[operation]
	if !ok {
		t = &OperationTally{}
		s.tallies[operation] = t
	}
	t.Calls++
	if !success {
		t.Failures++
	}
	t.TotalMS += duration.Seconds() * 1000
}

// FanoutMetrics forwards every observation to each non-nil recorder.
type FanoutMetrics []MetricsRecorder

// Observe implements MetricsRecorder.
func (f FanoutMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range f {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}

// Span is one finished service operation as written by SpanLog.
type Span struct {
	Operation string        `json:"operation"`
	Actor     string        `json:"actor,omitempty"`
	Start     time.Time     `json:"start"`
	Took      time.Duration `json:"took_ns"`
	Err       string        `json:"err,omitempty"`
}

// Failed reports whether the operation returned an error.
func (s Span) Failed() bool { return s.Err != "" }

// SpanLog is a Tracer that writes one JSON line per finished operation and
// keeps the spans in memory.
type SpanLog struct {
	mu    sync.Mutex
	out   *json.Encoder
	spans []Span
}

// NewSpanLog writes spans to w. With a nil w spans are only retained.
func NewSpanLog(w io.Writer) *SpanLog {
	log := &SpanLog{}
	if w != nil {
		log.out = json.NewEncoder(w)
	}
	return log
}

// Spans returns the finished spans in completion order.
func (l *SpanLog) Spans() []Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Span(nil), l.spans...)
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &openSpan{log: l, span: Span{
		Operation: operation,
		Actor:     ActorFromContext(ctx),
		Start:     time.Now().UTC(),
	}}
}

type openSpan struct {
	log  *SpanLog
	span Span
}

func (o *openSpan) End(err error) {
	o.span.Took = time.Since(o.span.Start)
	if err != nil {
		o.span.Err = err.Error()
	}
	o.log.mu.Lock()
	defer o.log.mu.Unlock()
	o.log.spans = append(o.log.spans, o.span)
	if o.log.out != nil {
		_ = o.log.out.Encode(o.span)
	}
}

// LogAuditRecorder turns audit entries into "audit" log lines.
type LogAuditRecorder struct {
	Logger Logger
}

// Record implements AuditRecorder.
func (r LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	if r.Logger == nil {
		return
	}
	fields := []any{
		"operation", entry.Operation,
		"entity", entry.Entity,
		"action", entry.Action,
		"entity_id", entry.EntityID,
		"actor", entry.Actor,
		"status", entry.Status,
		"duration", entry.Duration,
	}
	if entry.Error != "" {
		fields = append(fields, "error", entry.Error)
	}
	r.Logger.Info("audit", fields...)
}
