package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.EventPublisher = (*EventPublisher)(nil)

// EventPublisher is a mock implementation of smartcrawl.EventPublisher.
type EventPublisher struct {
	PublishFn func(ctx context.Context, event smartcrawl.SessionEvent) error
}

func (p *EventPublisher) Publish(ctx context.Context, event smartcrawl.SessionEvent) error {
	return p.PublishFn(ctx, event)
}
