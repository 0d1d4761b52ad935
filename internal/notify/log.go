package notify

import (
	"context"
	"log/slog"

	"sitcomledger/pkg/domain"
)

// LogSink writes each notification as a structured log record.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink logs at Info on logger, or on slog.Default when logger is nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: slog.LevelInfo}
}

// WithLevel returns a copy of the sink logging at level.
func (s *LogSink) WithLevel(level slog.Level) *LogSink {
	cp := *s
	cp.level = level
	return &cp
}

// Notify implements domain.NotificationSink.
func (s *LogSink) Notify(ctx context.Context, n domain.Notification) error {
	s.logger.LogAttrs(ctx, s.level, "ledger notification",
		slog.String("type", string(n.Kind)),
		slog.Uint64("student_id", uint64(n.Student)),
		slog.Uint64("code", uint64(n.Code)),
		slog.String("by", string(n.By)),
		slog.String("record_id", n.RecordID.String()),
		slog.Uint64("term", uint64(n.Term)),
	)
	return nil
}
