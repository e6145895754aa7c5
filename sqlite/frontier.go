package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ smartcrawl.FrontierService = (*FrontierService)(nil)

const entryColumns = `id, session_id, url, dedup_key, parent_url, depth, source, page, state,
	attempts, seq, excluded_proxies, ready_at, created_at, updated_at`

const outcomeColumns = `id, session_id, entry_id, url, attempt, status, terminal, status_code,
	duration, proxy_id, classification, error, created_at`

// FrontierService implements smartcrawl.FrontierService using SQLite.
type FrontierService struct {
	db *DB
}

// NewFrontierService creates a new FrontierService.
func NewFrontierService(db *DB) *FrontierService {
	return &FrontierService{db: db}
}

// CreateEntry inserts a frontier entry. The (session_id, dedup_key)
// uniqueness constraint turns duplicate inserts into ECONFLICT.
func (s *FrontierService) CreateEntry(ctx context.Context, entry *smartcrawl.FrontierEntry) error {
	if entry.SessionID == "" || entry.URL == "" || entry.DedupKey == "" {
		return smartcrawl.Errorf(smartcrawl.EINVALID, "entry session, url and dedup key required")
	}
	excluded, err := marshalStrings(entry.ExcludedProxies)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	readyAt := ""
	if !entry.ReadyAt.IsZero() {
		readyAt = formatTime(entry.ReadyAt)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO frontier_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.URL, entry.DedupKey, entry.ParentURL, entry.Depth,
		string(entry.Source), entry.Page, string(entry.State), entry.Attempts, entry.Seq, excluded, readyAt,
		formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
	if isUniqueViolation(err) {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "entry %s already exists", entry.DedupKey)
	}
	return err
}

// UpdateEntry applies upd to an entry.
func (s *FrontierService) UpdateEntry(ctx context.Context, id string, upd smartcrawl.EntryUpdate) error {
	var set []string
	var args []any

	if upd.State != nil {
		set = append(set, "state = ?")
		args = append(args, string(*upd.State))
	}
	if upd.Attempts != nil {
		set = append(set, "attempts = ?")
		args = append(args, *upd.Attempts)
	}
	if upd.ExcludedProxies != nil {
		excluded, err := marshalStrings(upd.ExcludedProxies)
		if err != nil {
			return err
		}
		set = append(set, "excluded_proxies = ?")
		args = append(args, excluded)
	}
	if upd.ReadyAt != nil {
		set = append(set, "ready_at = ?")
		args = append(args, formatTime(*upd.ReadyAt))
	}
	set = append(set, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE frontier_entries SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	return requireRow(result, "frontier entry not found")
}

// FindEntries returns entries ordered by sequence number.
func (s *FrontierService) FindEntries(ctx context.Context, filter smartcrawl.FrontierFilter) ([]*smartcrawl.FrontierEntry, error) {
	var query strings.Builder
	args := []any{filter.SessionID}

	query.WriteString("SELECT " + entryColumns + " FROM frontier_entries WHERE session_id = ?")
	if filter.State != nil {
		query.WriteString(" AND state = ?")
		args = append(args, string(*filter.State))
	}
	query.WriteString(" ORDER BY seq")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*smartcrawl.FrontierEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountEntries returns the number of entries per state for a session.
func (s *FrontierService) CountEntries(ctx context.Context, sessionID string) (map[smartcrawl.EntryState]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM frontier_entries WHERE session_id = ? GROUP BY state
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[smartcrawl.EntryState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[smartcrawl.EntryState(state)] = n
	}
	return counts, rows.Err()
}

// CreateOutcome appends an outcome.
func (s *FrontierService) CreateOutcome(ctx context.Context, outcome *smartcrawl.FetchOutcome) error {
	if outcome.Classification == nil {
		return smartcrawl.Errorf(smartcrawl.EINVALID, "outcome classification required")
	}
	if outcome.ID == "" {
		outcome.ID = uuid.New().String()
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_outcomes (`+outcomeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, outcome.ID, outcome.SessionID, outcome.EntryID, outcome.URL, outcome.Attempt, string(outcome.Status),
		boolToInt(outcome.Terminal), outcome.StatusCode, int64(outcome.Duration), outcome.ProxyID,
		outcome.Classification.String(), outcome.Error, formatTime(outcome.CreatedAt))
	if isUniqueViolation(err) {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "outcome %s already exists", outcome.ID)
	}
	return err
}

// FindOutcomes returns outcomes in creation order.
func (s *FrontierService) FindOutcomes(ctx context.Context, filter smartcrawl.OutcomeFilter) ([]*smartcrawl.FetchOutcome, error) {
	var query strings.Builder
	args := []any{filter.SessionID}

	query.WriteString("SELECT " + outcomeColumns + " FROM fetch_outcomes WHERE session_id = ?")
	if filter.EntryID != nil {
		query.WriteString(" AND entry_id = ?")
		args = append(args, *filter.EntryID)
	}
	query.WriteString(" ORDER BY created_at, rowid")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*smartcrawl.FetchOutcome
	for rows.Next() {
		var o smartcrawl.FetchOutcome
		var status, classification, createdAt string
		var terminal int
		var duration int64
		if err := rows.Scan(&o.ID, &o.SessionID, &o.EntryID, &o.URL, &o.Attempt, &status, &terminal,
			&o.StatusCode, &duration, &o.ProxyID, &classification, &o.Error, &createdAt); err != nil {
			return nil, err
		}
		o.Status = smartcrawl.OutcomeStatus(status)
		o.Terminal = terminal != 0
		o.Duration = time.Duration(duration)
		if o.Classification, err = smartcrawl.ParseClassification(classification); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

func scanEntry(row rowScanner) (*smartcrawl.FrontierEntry, error) {
	var e smartcrawl.FrontierEntry
	var source, state, excluded, readyAt, createdAt, updatedAt string

	if err := row.Scan(&e.ID, &e.SessionID, &e.URL, &e.DedupKey, &e.ParentURL, &e.Depth, &source, &e.Page,
		&state, &e.Attempts, &e.Seq, &excluded, &readyAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Source = smartcrawl.Source(source)
	e.State = smartcrawl.EntryState(state)

	var err error
	if e.ExcludedProxies, err = unmarshalStrings(excluded, "excluded_proxies"); err != nil {
		return nil, err
	}
	if readyAt != "" {
		if e.ReadyAt, err = parseRFC3339(readyAt, "ready_at"); err != nil {
			return nil, err
		}
	}
	if e.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &e, nil
}
