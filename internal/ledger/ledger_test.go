package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gistflow/internal/gist"
)

func openTestLedger(t *testing.T, opts Options) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "ledger.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestHasSeen(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	seen, err := l.HasSeen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "msg-1", Score: 80}))
	require.NoError(t, l.RecordFailure(ctx, "msg-2", gist.Transient("notion", errors.New("503"))))

	for _, id := range []string{"msg-1", "msg-2"} {
		seen, err := l.HasSeen(ctx, id)
		require.NoError(t, err)
		assert.True(t, seen, id)
	}
}

func TestRecordSuccessRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	entry := gist.LedgerEntry{
		SourceID:        "msg-1",
		Subject:         "Weekly Go",
		Sender:          "Go Weekly",
		Score:           85,
		Degraded:        true,
		DestinationRefs: map[gist.DestinationKind]string{gist.DestinationNotion: "page-1"},
		ProcessedAt:     at,
	}
	require.NoError(t, l.RecordSuccess(ctx, entry))

	entries, err := l.RecentProcessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, gist.OutcomeProcessed, got.Outcome)
	assert.Equal(t, "Weekly Go", got.Subject)
	assert.Equal(t, 85, got.Score)
	assert.True(t, got.Degraded)
	assert.False(t, got.IsLowValue)
	assert.Equal(t, "page-1", got.DestinationRefs[gist.DestinationNotion])
	assert.True(t, at.Equal(got.ProcessedAt))
}

func TestRecordFailureAndClear(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	require.NoError(t, l.RecordFailure(ctx, "msg-1", gist.Content("extract", errors.New("empty body"))))
	require.NoError(t, l.RecordFailure(ctx, "msg-2", errors.New("boom")))

	records, err := l.ListErrors(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "msg-2", records[0].SourceID, "newest first")
	assert.Equal(t, gist.CategoryUnknown, records[0].Category)
	assert.Equal(t, gist.CategoryContent, records[1].Category)
	assert.Contains(t, records[1].Message, "empty body")

	require.NoError(t, l.ClearError(ctx, "msg-1"))
	seen, err := l.HasSeen(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen, "cleared item becomes eligible again")

	records, err = l.ListErrors(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 2, "error records are kept after clearing")

	err = l.ClearError(ctx, "msg-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearErrorKeepsSuccess(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "msg-1"}))
	assert.ErrorIs(t, l.ClearError(ctx, "msg-1"), ErrNotFound)

	seen, err := l.HasSeen(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSuccessReplacesFailure(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	require.NoError(t, l.RecordFailure(ctx, "msg-1", errors.New("first try")))
	require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "msg-1", Score: 50}))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.ErrorRecords)
}

func TestListErrorsSince(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now.Add(-2 * time.Hour) }
	require.NoError(t, l.RecordFailure(ctx, "old", errors.New("old")))
	l.now = func() time.Time { return now }
	require.NoError(t, l.RecordFailure(ctx, "new", errors.New("new")))

	records, err := l.ListErrors(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].SourceID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "a", Score: 90}))
	require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "b", Score: 10, IsLowValue: true}))
	require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "c", Score: 50, Degraded: true}))
	require.NoError(t, l.RecordFailure(ctx, "d", errors.New("x")))

	stats, err = l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.LowValue)
	assert.Equal(t, 1, stats.Degraded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.ErrorRecords)
	assert.InDelta(t, 50.0, stats.AverageScore, 0.001)
	assert.NotNil(t, stats.LastProcessedAt)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	first, err := l.BeginRun(ctx)
	require.NoError(t, err)
	require.NoError(t, l.FinishRun(ctx, first.ID, RunSummary{Found: 3, Processed: 2, Skipped: 1, Published: 2}))

	second, err := l.BeginRun(ctx)
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	runs, err := l.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, 3, runs[1].Found)
	assert.Equal(t, 2, runs[1].Published)
	assert.NotNil(t, runs[1].FinishedAt)

	assert.Error(t, l.FinishRun(ctx, 999, RunSummary{}))
}

func TestFailureRetryAfterRuns(t *testing.T) {
	tests := []struct {
		name        string
		afterRuns   int
		laterRuns   int
		wantSeen    bool
		wantExpired int
	}{
		{name: "disabled keeps failures", afterRuns: 0, laterRuns: 3, wantSeen: true},
		{name: "expires after one run", afterRuns: 1, laterRuns: 1, wantSeen: false, wantExpired: 1},
		{name: "not yet expired", afterRuns: 3, laterRuns: 2, wantSeen: true},
		{name: "expires after three runs", afterRuns: 3, laterRuns: 3, wantSeen: false, wantExpired: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			l := openTestLedger(t, Options{FailureRetryAfterRuns: tt.afterRuns})

			_, err := l.BeginRun(ctx)
			require.NoError(t, err)
			require.NoError(t, l.RecordFailure(ctx, "msg-1", errors.New("boom")))
			require.NoError(t, l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: "msg-2"}))

			expired := 0
			for i := 0; i < tt.laterRuns; i++ {
				run, err := l.BeginRun(ctx)
				require.NoError(t, err)
				expired += run.Expired
			}

			seen, err := l.HasSeen(ctx, "msg-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeen, seen)
			assert.Equal(t, tt.wantExpired, expired)

			seen, err = l.HasSeen(ctx, "msg-2")
			require.NoError(t, err)
			assert.True(t, seen, "successful entries never expire")
		})
	}
}

func TestConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- l.RecordSuccess(ctx, gist.LedgerEntry{SourceID: fmt.Sprintf("msg-%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			_, err := l.Stats(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Processed)
}

func TestRecordRequiresSourceID(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t, Options{})

	assert.Error(t, l.RecordSuccess(ctx, gist.LedgerEntry{}))
	assert.Error(t, l.RecordFailure(ctx, "", errors.New("x")))
}
