package notify

import (
	"context"
	"errors"

	"sitcomledger/pkg/domain"
)

// Group fans a notification out to several sinks in registration order.
// Every sink is attempted; failures are joined.
type Group struct {
	sinks []domain.NotificationSink
}

// NewGroup builds a group. Nil sinks are ignored.
func NewGroup(sinks ...domain.NotificationSink) *Group {
	g := &Group{}
	for _, s := range sinks {
		g.Add(s)
	}
	return g
}

// Add appends a sink. Nil sinks are ignored.
func (g *Group) Add(s domain.NotificationSink) {
	if s == nil {
		return
	}
	g.sinks = append(g.sinks, s)
}

// Len reports the number of sinks.
func (g *Group) Len() int { return len(g.sinks) }

// Notify implements domain.NotificationSink.
func (g *Group) Notify(ctx context.Context, n domain.Notification) error {
	var agg error
	for _, s := range g.sinks {
		if err := s.Notify(ctx, n); err != nil {
			agg = errors.Join(agg, err)
		}
	}
	return agg
}
