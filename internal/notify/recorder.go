// Package notify provides notification sinks for committed ledger operations.
package notify

import (
	"context"
	"sync"

	"sitcomledger/pkg/domain"
)

// Recorder keeps every notification in memory, in delivery order.
type Recorder struct {
	mu    sync.Mutex
	notes []domain.Notification
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements domain.NotificationSink.
func (r *Recorder) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

// Notifications returns a copy of the recorded notifications.
func (r *Recorder) Notifications() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.notes...)
}

// Reset discards recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}
