package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(sessionID, url string, seq int64) *smartcrawl.FrontierEntry {
	return &smartcrawl.FrontierEntry{
		SessionID: sessionID,
		URL:       url,
		DedupKey:  url,
		Source:    smartcrawl.SourceSeed,
		State:     smartcrawl.EntryPending,
		Seq:       seq,
	}
}

func TestFrontierService_CreateEntry(t *testing.T) {
	t.Parallel()

	t.Run("rejects a second entry with the same dedup key", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		session := createTestSession(t, sqlite.NewSessionService(db))
		svc := sqlite.NewFrontierService(db)
		ctx := context.Background()

		require.NoError(t, svc.CreateEntry(ctx, newTestEntry(session.ID, "https://a.com/", 1)))

		err := svc.CreateEntry(ctx, newTestEntry(session.ID, "https://a.com/", 2))
		assert.Equal(t, smartcrawl.ECONFLICT, smartcrawl.ErrorCode(err))
	})

	t.Run("allows the same url under different page keys", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		session := createTestSession(t, sqlite.NewSessionService(db))
		svc := sqlite.NewFrontierService(db)
		ctx := context.Background()

		first := newTestEntry(session.ID, "https://a.com/list", 1)
		second := newTestEntry(session.ID, "https://a.com/list", 2)
		second.Page = 2
		second.DedupKey = "https://a.com/list#page=2"

		require.NoError(t, svc.CreateEntry(ctx, first))
		require.NoError(t, svc.CreateEntry(ctx, second))
	})

	t.Run("same url in different sessions does not conflict", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		sessions := sqlite.NewSessionService(db)
		a, b := createTestSession(t, sessions), createTestSession(t, sessions)
		svc := sqlite.NewFrontierService(db)
		ctx := context.Background()

		require.NoError(t, svc.CreateEntry(ctx, newTestEntry(a.ID, "https://a.com/", 1)))
		require.NoError(t, svc.CreateEntry(ctx, newTestEntry(b.ID, "https://a.com/", 1)))
	})
}

func TestFrontierService_UpdateEntry(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	session := createTestSession(t, sqlite.NewSessionService(db))
	svc := sqlite.NewFrontierService(db)
	ctx := context.Background()

	entry := newTestEntry(session.ID, "https://a.com/", 1)
	require.NoError(t, svc.CreateEntry(ctx, entry))

	state := smartcrawl.EntryPending
	attempts := 2
	readyAt := time.Now().Add(time.Minute)
	require.NoError(t, svc.UpdateEntry(ctx, entry.ID, smartcrawl.EntryUpdate{
		State:           &state,
		Attempts:        &attempts,
		ExcludedProxies: []string{"p1"},
		ReadyAt:         &readyAt,
	}))

	entries, err := svc.FindEntries(ctx, smartcrawl.FrontierFilter{SessionID: session.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, []string{"p1"}, entries[0].ExcludedProxies)
	assert.WithinDuration(t, readyAt, entries[0].ReadyAt, time.Millisecond)

	err = svc.UpdateEntry(ctx, "missing", smartcrawl.EntryUpdate{State: &state})
	assert.Equal(t, smartcrawl.ENOTFOUND, smartcrawl.ErrorCode(err))
}

func TestFrontierService_FindEntries(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	session := createTestSession(t, sqlite.NewSessionService(db))
	svc := sqlite.NewFrontierService(db)
	ctx := context.Background()

	require.NoError(t, svc.CreateEntry(ctx, newTestEntry(session.ID, "https://a.com/b", 2)))
	require.NoError(t, svc.CreateEntry(ctx, newTestEntry(session.ID, "https://a.com/a", 1)))
	done := newTestEntry(session.ID, "https://a.com/c", 3)
	done.State = smartcrawl.EntryCompleted
	require.NoError(t, svc.CreateEntry(ctx, done))

	entries, err := svc.FindEntries(ctx, smartcrawl.FrontierFilter{SessionID: session.ID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "https://a.com/a", entries[0].URL)
	assert.Equal(t, "https://a.com/b", entries[1].URL)

	pending := smartcrawl.EntryPending
	entries, err = svc.FindEntries(ctx, smartcrawl.FrontierFilter{SessionID: session.ID, State: &pending})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	counts, err := svc.CountEntries(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[smartcrawl.EntryPending])
	assert.Equal(t, 1, counts[smartcrawl.EntryCompleted])
}

func TestFrontierService_Outcomes(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	session := createTestSession(t, sqlite.NewSessionService(db))
	svc := sqlite.NewFrontierService(db)
	ctx := context.Background()

	entry := newTestEntry(session.ID, "https://a.com/", 1)
	require.NoError(t, svc.CreateEntry(ctx, entry))

	first := &smartcrawl.FetchOutcome{
		SessionID:      session.ID,
		EntryID:        entry.ID,
		URL:            entry.URL,
		Attempt:        1,
		Status:         smartcrawl.OutcomeFailed,
		StatusCode:     503,
		Duration:       120 * time.Millisecond,
		ProxyID:        "p1",
		Classification: smartcrawl.Retryable{Kind: smartcrawl.RetryServerError},
		CreatedAt:      time.Now(),
	}
	second := &smartcrawl.FetchOutcome{
		SessionID:      session.ID,
		EntryID:        entry.ID,
		URL:            entry.URL,
		Attempt:        2,
		Status:         smartcrawl.OutcomeCompleted,
		Terminal:       true,
		StatusCode:     200,
		Classification: smartcrawl.Success{},
		CreatedAt:      time.Now().Add(time.Second),
	}
	require.NoError(t, svc.CreateOutcome(ctx, first))
	require.NoError(t, svc.CreateOutcome(ctx, second))

	outcomes, err := svc.FindOutcomes(ctx, smartcrawl.OutcomeFilter{SessionID: session.ID, EntryID: &entry.ID})
	require.NoError(t, err)
	require.Len(t, outcomes, 2, "a retry appends rather than replaces")
	assert.Equal(t, smartcrawl.Retryable{Kind: smartcrawl.RetryServerError}, outcomes[0].Classification)
	assert.Equal(t, 120*time.Millisecond, outcomes[0].Duration)
	assert.False(t, outcomes[0].Terminal)
	assert.Equal(t, smartcrawl.Success{}, outcomes[1].Classification)
	assert.True(t, outcomes[1].Terminal)
}
