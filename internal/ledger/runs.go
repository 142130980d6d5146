package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/teemow/gistflow/internal/gist"
)

// Run identifies one pipeline invocation.
type Run struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	// Expired counts failed entries deleted by the retry policy when the run began.
	Expired int `json:"expired"`
}

// RunSummary holds the counters written when a run finishes.
type RunSummary struct {
	Found     int    `json:"found"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Published int    `json:"published"`
	Error     string `json:"error,omitempty"`
}

// RunRecord is a persisted run with its summary.
type RunRecord struct {
	Run
	RunSummary
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Stats aggregates ledger contents.
type Stats struct {
	Processed       int        `json:"processed"`
	LowValue        int        `json:"low_value"`
	Degraded        int        `json:"degraded"`
	Failed          int        `json:"failed"`
	ErrorRecords    int        `json:"error_records"`
	Runs            int        `json:"runs"`
	AverageScore    float64    `json:"average_score"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// BeginRun registers a new run and applies the failure retry policy: failed
// entries recorded FailureRetryAfterRuns or more runs ago are deleted so the
// items become eligible again.
func (l *Ledger) BeginRun(ctx context.Context) (Run, error) {
	run := Run{StartedAt: l.now()}

	err := l.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := psql.Insert(tableRuns).
			Columns("started_at").
			Values(run.StartedAt.UnixMilli()).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		if run.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		if l.opts.FailureRetryAfterRuns <= 0 {
			return nil
		}

		query, args, err = psql.Delete(tableItems).
			Where(sq.Eq{"outcome": string(gist.OutcomeFailed)}).
			Where(sq.LtOrEq{"run_id": run.ID - int64(l.opts.FailureRetryAfterRuns)}).
			ToSql()
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to expire failed entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		run.Expired = int(n)

		query, args, err = psql.Update(tableRuns).
			Set("expired", run.Expired).
			Where(sq.Eq{"id": run.ID}).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return Run{}, err
	}

	l.currentRun.Store(run.ID)
	return run, nil
}

// FinishRun stores the summary for a run started with BeginRun.
func (l *Ledger) FinishRun(ctx context.Context, runID int64, summary RunSummary) error {
	query, args, err := psql.Update(tableRuns).
		SetMap(map[string]any{
			"finished_at": l.now().UnixMilli(),
			"found":       summary.Found,
			"processed":   summary.Processed,
			"skipped":     summary.Skipped,
			"failed":      summary.Failed,
			"published":   summary.Published,
			"error":       summary.Error,
		}).
		Where(sq.Eq{"id": runID}).
		ToSql()
	if err != nil {
		return err
	}

	return l.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("run %d not found", runID)
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query, args, err := psql.Select("id", "started_at", "finished_at", "found", "processed",
		"skipped", "failed", "published", "expired", "error").
		From(tableRuns).
		OrderBy("id DESC").
		Limit(clampLimit(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var runs []RunRecord
	err = l.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec      RunRecord
				started  int64
				finished sql.NullInt64
			)
			if err := rows.Scan(&rec.ID, &started, &finished, &rec.Found, &rec.Processed,
				&rec.Skipped, &rec.Failed, &rec.Published, &rec.Expired, &rec.Error); err != nil {
				return fmt.Errorf("failed to scan run: %w", err)
			}
			rec.StartedAt = time.UnixMilli(started).UTC()
			if finished.Valid {
				t := time.UnixMilli(finished.Int64).UTC()
				rec.FinishedAt = &t
			}
			runs = append(runs, rec)
		}
		return rows.Err()
	})
	return runs, err
}

// RecentProcessed returns up to limit successful entries, newest first.
func (l *Ledger) RecentProcessed(ctx context.Context, limit int) ([]gist.LedgerEntry, error) {
	query, args, err := psql.Select("source_id", "outcome", "subject", "sender", "score",
		"is_low_value", "degraded", "destination_refs", "processed_at").
		From(tableItems).
		Where(sq.Eq{"outcome": string(gist.OutcomeProcessed)}).
		OrderBy("processed_at DESC", "source_id").
		Limit(clampLimit(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var entries []gist.LedgerEntry
	err = l.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list processed items: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e                  gist.LedgerEntry
				outcome, refs      string
				lowValue, degraded int
				processedAt        int64
			)
			if err := rows.Scan(&e.SourceID, &outcome, &e.Subject, &e.Sender, &e.Score,
				&lowValue, &degraded, &refs, &processedAt); err != nil {
				return fmt.Errorf("failed to scan processed item: %w", err)
			}
			e.Outcome = gist.Outcome(outcome)
			e.IsLowValue = lowValue != 0
			e.Degraded = degraded != 0
			e.ProcessedAt = time.UnixMilli(processedAt).UTC()
			if err := json.Unmarshal([]byte(refs), &e.DestinationRefs); err != nil {
				return fmt.Errorf("failed to decode destination refs for %s: %w", e.SourceID, err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

// Stats summarizes the ledger.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	itemsQuery, itemsArgs, err := psql.Select(
		"COALESCE(SUM(CASE WHEN outcome = 'processed' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN outcome = 'processed' AND is_low_value = 1 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN outcome = 'processed' AND degraded = 1 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0)",
		"COALESCE(AVG(CASE WHEN outcome = 'processed' THEN score END), 0)",
		"MAX(CASE WHEN outcome = 'processed' THEN processed_at END)",
	).From(tableItems).ToSql()
	if err != nil {
		return Stats{}, err
	}
	errorsQuery, _, err := psql.Select("COUNT(*)").From(tableErrors).ToSql()
	if err != nil {
		return Stats{}, err
	}
	runsQuery, _, err := psql.Select("COUNT(*)").From(tableRuns).ToSql()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	err = l.withConn(ctx, func(conn *sql.Conn) error {
		var last sql.NullInt64
		err := conn.QueryRowContext(ctx, itemsQuery, itemsArgs...).Scan(
			&stats.Processed, &stats.LowValue, &stats.Degraded, &stats.Failed, &stats.AverageScore, &last)
		if err != nil {
			return fmt.Errorf("failed to aggregate items: %w", err)
		}
		if last.Valid {
			t := time.UnixMilli(last.Int64).UTC()
			stats.LastProcessedAt = &t
		}
		if err := conn.QueryRowContext(ctx, errorsQuery).Scan(&stats.ErrorRecords); err != nil {
			return fmt.Errorf("failed to count errors: %w", err)
		}
		if err := conn.QueryRowContext(ctx, runsQuery).Scan(&stats.Runs); err != nil {
			return fmt.Errorf("failed to count runs: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, err
	}
	return stats, nil
}

func clampLimit(limit int) uint64 {
	switch {
	case limit <= 0:
		return 20
	case limit > 500:
		return 500
	}
	return uint64(limit)
}
