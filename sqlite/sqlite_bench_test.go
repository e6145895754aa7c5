package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/sqlite"
	"github.com/stretchr/testify/require"
)

// BenchmarkFrontierWrites simulates the write pattern of a crawl: one entry
// insert, one state update, one outcome and one counter increment per URL.
func BenchmarkFrontierWrites(b *testing.B) {
	b.Run("memory", func(b *testing.B) {
		benchmarkFrontierWrites(b, ":memory:")
	})

	b.Run("wal_file", func(b *testing.B) {
		benchmarkFrontierWrites(b, filepath.Join(b.TempDir(), "bench.db"))
	})
}

func benchmarkFrontierWrites(b *testing.B, path string) {
	b.Helper()

	db := sqlite.NewDB(path)
	require.NoError(b, db.Open())
	defer db.Close()

	ctx := context.Background()
	sessions := sqlite.NewSessionService(db)
	session := &smartcrawl.Session{Name: "bench", Seeds: []string{"https://example.com/"}, Policy: smartcrawl.DefaultPolicy()}
	require.NoError(b, sessions.CreateSession(ctx, session))

	frontier := sqlite.NewFrontierService(db)
	completed := smartcrawl.EntryCompleted

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		url := fmt.Sprintf("https://example.com/docs/page%d", i)
		entry := &smartcrawl.FrontierEntry{
			SessionID: session.ID,
			URL:       url,
			DedupKey:  url,
			Depth:     1,
			Source:    smartcrawl.SourceLink,
			State:     smartcrawl.EntryPending,
			Seq:       int64(i),
		}
		if err := frontier.CreateEntry(ctx, entry); err != nil {
			b.Fatal(err)
		}
		if err := frontier.UpdateEntry(ctx, entry.ID, smartcrawl.EntryUpdate{State: &completed}); err != nil {
			b.Fatal(err)
		}
		outcome := &smartcrawl.FetchOutcome{
			SessionID:      session.ID,
			EntryID:        entry.ID,
			URL:            url,
			Attempt:        1,
			Status:         smartcrawl.OutcomeCompleted,
			Terminal:       true,
			StatusCode:     200,
			Classification: smartcrawl.Success{},
		}
		if err := frontier.CreateOutcome(ctx, outcome); err != nil {
			b.Fatal(err)
		}
		if err := sessions.IncrementCounters(ctx, session.ID, smartcrawl.Counters{Discovered: 1, Completed: 1}); err != nil {
			b.Fatal(err)
		}
	}
}
