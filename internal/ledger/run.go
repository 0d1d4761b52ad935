package ledger

import (
	"context"

	"sitcomledger/pkg/domain"
)

// outcome collects what a successful operation produced. Notifications are
// only delivered once the operation returns without error.
type outcome struct {
	record domain.Record
	notes  []domain.Notification
}

func (o *outcome) notify(n domain.Notification) {
	o.notes = append(o.notes, n)
}

// run wraps an operation with tracing, metrics, audit and logging, wraps any
// failure in a LedgerError and delivers queued notifications after success.
func (s *Service) run(ctx context.Context, op string, kind domain.RecordKind, caller domain.Identity, fn func(context.Context, *outcome) (domain.Result, error)) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := s.clock.Now()
	out := &outcome{}
	res, err := fn(ctx, out)
	duration := s.clock.Now().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Kind:      kind,
		Action:    domain.ActionCreate,
		Caller:    caller,
		Duration:  duration,
		Timestamp: started,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		if domain.IsFatal(err) {
			s.logger.Error("ledger invariant violated", "operation", op, "kind", kind, "error", err)
		} else {
			s.logger.Warn("ledger operation rejected", "operation", op, "kind", kind, "error", err)
		}
		return res, domain.NewLedgerError(op, kind, err)
	}

	if out.record != nil {
		entry.RecordID = out.record.RecordID().String()
	}
	entry.Status = AuditStatusSuccess
	s.audit.Record(ctx, entry)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "message", v.Message)
	}
	s.logger.Debug("ledger operation committed", "operation", op, "kind", kind, "record_id", entry.RecordID, "duration", duration)
	s.deliver(ctx, out.notes)
	return res, nil
}

// deliver hands notifications to the sink in order. The operation has already
// committed, so delivery failures are logged rather than returned.
func (s *Service) deliver(ctx context.Context, notes []domain.Notification) {
	if s.sink == nil {
		return
	}
	for _, n := range notes {
		if err := s.sink.Notify(ctx, n); err != nil {
			s.logger.Error("notification delivery failed", "type", n.Kind, "record_id", n.RecordID.String(), "error", err)
		}
	}
}
