package ledger

import (
	"context"
	"time"

	"sitcomledger/pkg/domain"
)

// Logger is the structured logging surface used by the service. *slog.Logger satisfies it.
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

// Clock provides the current time for audit timestamps and durations.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reports time.Now in UTC.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan ends a traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus reports whether an audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one façade operation.
type AuditEntry struct {
	Operation string
	Kind      domain.RecordKind
	Action    domain.Action
	RecordID  string
	Caller    domain.Identity
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	seeds    SeedSource
	hasher   Hasher
	sink     domain.NotificationSink
	policies []AwardPolicy
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:  noopLogger{},
		clock:   ClockFunc(nil),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		seeds:   RandomSeedSource{},
		hasher:  Blake2bHasher{},
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit recorder.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithSeedSource overrides the seed source used for identifier derivation.
func WithSeedSource(seeds SeedSource) ServiceOption {
	return func(o *serviceOptions) {
		if seeds != nil {
			o.seeds = seeds
		}
	}
}

// WithHasher overrides the identifier hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(o *serviceOptions) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithNotificationSink sets the sink receiving post-commit notifications.
func WithNotificationSink(sink domain.NotificationSink) ServiceOption {
	return func(o *serviceOptions) {
		o.sink = sink
	}
}

// WithAwardPolicies installs automatic competence award policies.
func WithAwardPolicies(policies ...AwardPolicy) ServiceOption {
	return func(o *serviceOptions) {
		o.policies = append(o.policies, policies...)
	}
}
