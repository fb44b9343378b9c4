package core

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	blob "shelterhub/internal/blob/core"
	"shelterhub/internal/infra/persistence/memory"
	"shelterhub/pkg/domain"
)

// Logger is the minimal structured logger used by the service. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded in an audit entry.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes a single mutating operation.
type AuditEntry struct {
	Operation string            `json:"operation"`
	Entity    domain.EntityType `json:"entity"`
	Action    domain.Action     `json:"action"`
	EntityID  string            `json:"entity_id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Status    AuditStatus       `json:"status"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type actorKey struct{}

// WithActor annotates ctx with the identifier of the acting user.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user recorded by WithActor.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithPhotoStore configures the blob store used for cat photos.
func WithPhotoStore(store blob.Store) Option {
	return func(s *Service) {
		s.photos = store
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// WithReportingCurrency sets the currency summed by revenue reports.
func WithReportingCurrency(code string) Option {
	return func(s *Service) {
		s.currency = domain.NormalizeCurrency(code)
	}
}

// Service exposes the shelter's transactional operations over a persistent store.
type Service struct {
	store      PersistentStore
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	photos     blob.Store
	bcryptCost int
	currency   string

	// decoyHash is compared against when no account matches a login.
	decoyHash func() []byte
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:      store,
		logger:     noopLogger{},
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		audit:      noopAudit{},
		bcryptCost: bcrypt.DefaultCost,
		currency:   domain.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.decoyHash = sync.OnceValue(func() []byte {
		hash, _ := bcrypt.GenerateFromPassword([]byte("shelterhub-no-such-user"), svc.bcryptCost)
		return hash
	})
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Now returns the service clock time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// auditedOperations lists the operations that produce audit entries.
var auditedOperations = map[string]operationMeta{
	"create_ward":        {domain.EntityWard, domain.ActionCreate},
	"update_ward":        {domain.EntityWard, domain.ActionUpdate},
	"delete_ward":        {domain.EntityWard, domain.ActionDelete},
	"create_cage":        {domain.EntityCage, domain.ActionCreate},
	"update_cage":        {domain.EntityCage, domain.ActionUpdate},
	"delete_cage":        {domain.EntityCage, domain.ActionDelete},
	"intake_cat":         {domain.EntityCat, domain.ActionCreate},
	"update_cat":         {domain.EntityCat, domain.ActionUpdate},
	"place_cat":          {domain.EntityCat, domain.ActionUpdate},
	"release_cat":        {domain.EntityCat, domain.ActionUpdate},
	"discharge_cat":      {domain.EntityCat, domain.ActionUpdate},
	"delete_cat":         {domain.EntityCat, domain.ActionDelete},
	"attach_cat_photo":   {domain.EntityCat, domain.ActionUpdate},
	"schedule_treatment": {domain.EntityTreatment, domain.ActionCreate},
	"start_treatment":    {domain.EntityTreatment, domain.ActionUpdate},
	"complete_treatment": {domain.EntityTreatment, domain.ActionUpdate},
	"cancel_treatment":   {domain.EntityTreatment, domain.ActionUpdate},
	"flag_treatment":     {domain.EntityTreatment, domain.ActionUpdate},
	"record_donation":    {domain.EntityDonation, domain.ActionCreate},
	"record_transaction": {domain.EntityLedgerEntry, domain.ActionCreate},
	"delete_transaction": {domain.EntityLedgerEntry, domain.ActionDelete},
	"create_team":        {domain.EntityTeam, domain.ActionCreate},
	"delete_team":        {domain.EntityTeam, domain.ActionDelete},
	"create_user":        {domain.EntityUser, domain.ActionCreate},
	"update_user_role":   {domain.EntityUser, domain.ActionUpdate},
	"assign_user_team":   {domain.EntityUser, domain.ActionUpdate},
	"deactivate_user":    {domain.EntityUser, domain.ActionUpdate},
}

// begin opens a span for op and returns the completion callback that ends
// it, records metrics, logs, and audits mutating operations.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(entityID string, res Result, err error)) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	return ctx, func(entityID string, res Result, err error) {
		duration := s.clock.Now().Sub(start)
		span.End(err)
		s.metrics.Observe(ctx, op, err == nil, duration)
		for _, v := range res.Violations {
			if v.Severity == domain.SeverityWarn {
				s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
			}
		}
		if err != nil {
			s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
			s.recordAudit(ctx, op, entityID, duration, err)
			return
		}
		s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
		s.recordAudit(ctx, op, entityID, duration, nil)
	}
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     ActorFromContext(ctx),
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// view runs fn against a read-only snapshot.
func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}
