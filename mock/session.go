package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.SessionService = (*SessionService)(nil)

// SessionService is a mock implementation of smartcrawl.SessionService.
type SessionService struct {
	CreateSessionFn     func(ctx context.Context, session *smartcrawl.Session) error
	FindSessionByIDFn   func(ctx context.Context, id string) (*smartcrawl.Session, error)
	FindSessionsFn      func(ctx context.Context, filter smartcrawl.SessionFilter) ([]*smartcrawl.Session, error)
	UpdateSessionFn     func(ctx context.Context, id string, upd smartcrawl.SessionUpdate) (*smartcrawl.Session, error)
	IncrementCountersFn func(ctx context.Context, id string, delta smartcrawl.Counters) error
	RequestStopFn       func(ctx context.Context, id string) error
}

func (s *SessionService) CreateSession(ctx context.Context, session *smartcrawl.Session) error {
	return s.CreateSessionFn(ctx, session)
}

func (s *SessionService) FindSessionByID(ctx context.Context, id string) (*smartcrawl.Session, error) {
	return s.FindSessionByIDFn(ctx, id)
}

func (s *SessionService) FindSessions(ctx context.Context, filter smartcrawl.SessionFilter) ([]*smartcrawl.Session, error) {
	return s.FindSessionsFn(ctx, filter)
}

func (s *SessionService) UpdateSession(ctx context.Context, id string, upd smartcrawl.SessionUpdate) (*smartcrawl.Session, error) {
	return s.UpdateSessionFn(ctx, id, upd)
}

func (s *SessionService) IncrementCounters(ctx context.Context, id string, delta smartcrawl.Counters) error {
	return s.IncrementCountersFn(ctx, id, delta)
}

func (s *SessionService) RequestStop(ctx context.Context, id string) error {
	return s.RequestStopFn(ctx, id)
}
