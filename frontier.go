package smartcrawl

import (
	"context"
	"time"
)

// Source records how a frontier entry was discovered.
type Source string

// Discovery sources.
const (
	SourceSeed       Source = "seed"
	SourceLink       Source = "link"
	SourcePagination Source = "pagination"
	SourceSitemap    Source = "sitemap"
	SourceFeed       Source = "feed"
	SourceRedirect   Source = "redirect"
)

// EntryState is the dispatch state of a frontier entry.
type EntryState string

// Entry states.
const (
	EntryPending    EntryState = "pending"
	EntryDispatched EntryState = "dispatched"
	EntryCompleted  EntryState = "completed"
	EntryFailed     EntryState = "failed"
	EntryBlocked    EntryState = "blocked"

	// EntryFiltered records a candidate rejected by scope, patterns or
	// robots rules. It is never dispatched.
	EntryFiltered EntryState = "filtered"

	// EntryRedirect records the final URL of a redirect so it is not
	// fetched again. It is never dispatched.
	EntryRedirect EntryState = "redirect"
)

// IsTerminal reports whether the entry will not be dispatched again.
func (s EntryState) IsTerminal() bool {
	switch s {
	case EntryCompleted, EntryFailed, EntryBlocked, EntryFiltered, EntryRedirect:
		return true
	}
	return false
}

// FrontierEntry is a URL known to a session.
type FrontierEntry struct {
	ID        string
	SessionID string

	// URL is the normalized form of the discovered URL.
	URL string

	// DedupKey is unique per session. It is the URL, or the URL and page
	// number when paginated entries are not deduplicated by URL.
	DedupKey string

	ParentURL string
	Depth     int
	Source    Source

	// Page is the pagination page number, zero when not paginated.
	Page int

	State           EntryState
	Attempts        int
	Seq             int64
	ExcludedProxies []string

	// ReadyAt delays dispatch of a requeued entry.
	ReadyAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FrontierFilter represents a filter for FindEntries.
type FrontierFilter struct {
	SessionID string
	State     *EntryState
}

// EntryUpdate represents fields that can be updated on a frontier entry.
type EntryUpdate struct {
	State           *EntryState
	Attempts        *int
	ExcludedProxies []string
	ReadyAt         *time.Time
}

// OutcomeFilter represents a filter for FindOutcomes.
type OutcomeFilter struct {
	SessionID string
	EntryID   *string
}

// FrontierService persists frontier entries and their fetch outcomes.
type FrontierService interface {
	// CreateEntry inserts a new entry.
	// Returns ECONFLICT if the session already has an entry with the same DedupKey.
	CreateEntry(ctx context.Context, entry *FrontierEntry) error

	// UpdateEntry applies upd to the entry identified by id.
	// Returns ENOTFOUND if the entry does not exist.
	UpdateEntry(ctx context.Context, id string, upd EntryUpdate) error

	// FindEntries returns entries ordered by sequence number.
	FindEntries(ctx context.Context, filter FrontierFilter) ([]*FrontierEntry, error)

	// CountEntries returns the number of entries per state for a session.
	CountEntries(ctx context.Context, sessionID string) (map[EntryState]int, error)

	// CreateOutcome appends an outcome. Outcomes are never updated.
	CreateOutcome(ctx context.Context, outcome *FetchOutcome) error

	// FindOutcomes returns outcomes in creation order.
	FindOutcomes(ctx context.Context, filter OutcomeFilter) ([]*FetchOutcome, error)
}
