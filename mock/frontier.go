package mock

import (
	"context"

	"github.com/fwojciec/smartcrawl"
)

var _ smartcrawl.FrontierService = (*FrontierService)(nil)

// FrontierService is a mock implementation of smartcrawl.FrontierService.
type FrontierService struct {
	CreateEntryFn   func(ctx context.Context, entry *smartcrawl.FrontierEntry) error
	UpdateEntryFn   func(ctx context.Context, id string, upd smartcrawl.EntryUpdate) error
	FindEntriesFn   func(ctx context.Context, filter smartcrawl.FrontierFilter) ([]*smartcrawl.FrontierEntry, error)
	CountEntriesFn  func(ctx context.Context, sessionID string) (map[smartcrawl.EntryState]int, error)
	CreateOutcomeFn func(ctx context.Context, outcome *smartcrawl.FetchOutcome) error
	FindOutcomesFn  func(ctx context.Context, filter smartcrawl.OutcomeFilter) ([]*smartcrawl.FetchOutcome, error)
}

func (s *FrontierService) CreateEntry(ctx context.Context, entry *smartcrawl.FrontierEntry) error {
	return s.CreateEntryFn(ctx, entry)
}

func (s *FrontierService) UpdateEntry(ctx context.Context, id string, upd smartcrawl.EntryUpdate) error {
	return s.UpdateEntryFn(ctx, id, upd)
}

func (s *FrontierService) FindEntries(ctx context.Context, filter smartcrawl.FrontierFilter) ([]*smartcrawl.FrontierEntry, error) {
	return s.FindEntriesFn(ctx, filter)
}

func (s *FrontierService) CountEntries(ctx context.Context, sessionID string) (map[smartcrawl.EntryState]int, error) {
	return s.CountEntriesFn(ctx, sessionID)
}

func (s *FrontierService) CreateOutcome(ctx context.Context, outcome *smartcrawl.FetchOutcome) error {
	return s.CreateOutcomeFn(ctx, outcome)
}

func (s *FrontierService) FindOutcomes(ctx context.Context, filter smartcrawl.OutcomeFilter) ([]*smartcrawl.FetchOutcome, error) {
	return s.FindOutcomesFn(ctx, filter)
}
