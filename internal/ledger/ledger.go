package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/teemow/gistflow/internal/gist"
)

//go:embed schema.sql
var schemaSQL string

const (
	tableItems  = "processed_items"
	tableErrors = "processing_errors"
	tableRuns   = "runs"

	// busyTimeout lets concurrent writers wait for the file lock instead of failing.
	busyTimeout = 5 * time.Second
)

// ErrNotFound is returned by ClearError when no failed entry exists for the id.
var ErrNotFound = errors.New("no failed entry for source id")

// Options tunes ledger policy.
type Options struct {
	// FailureRetryAfterRuns deletes failed entries this many runs after they
	// were recorded, so the items are fetched again. 0 disables expiry.
	FailureRetryAfterRuns int
}

// Ledger is the durable idempotency store. Every call acquires its own
// connection from the pool and releases it before returning, so concurrent
// readers never share a cursor with a running pipeline.
type Ledger struct {
	db   *sql.DB
	path string
	opts Options
	now  func() time.Time

	// currentRun is stamped on entries so failures can expire by run count.
	currentRun atomic.Int64
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Open opens (creating if needed) the ledger database at path and applies the schema.
func Open(ctx context.Context, path string, opts Options) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	return &Ledger{
		db:   db,
		path: path,
		opts: opts,
		now:  time.Now,
	}, nil
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping checks that the database is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// withConn runs fn on a dedicated connection that is released afterwards.
func (l *Ledger) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire ledger connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// withTx runs fn inside a transaction on a dedicated connection.
func (l *Ledger) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return l.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin ledger transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit ledger transaction: %w", err)
		}
		return nil
	})
}

// HasSeen reports whether any entry, successful or failed, exists for sourceID.
func (l *Ledger) HasSeen(ctx context.Context, sourceID string) (bool, error) {
	query, args, err := psql.Select("1").From(tableItems).
		Where(sq.Eq{"source_id": sourceID}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}

	var seen bool
	err = l.withConn(ctx, func(conn *sql.Conn) error {
		var one int
		switch err := conn.QueryRowContext(ctx, query, args...).Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("failed to query ledger: %w", err)
		}
		seen = true
		return nil
	})
	return seen, err
}

// RecordSuccess stores the processed entry, replacing any earlier entry for the id.
func (l *Ledger) RecordSuccess(ctx context.Context, entry gist.LedgerEntry) error {
	if entry.SourceID == "" {
		return fmt.Errorf("source id is required")
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = l.now()
	}
	refs, err := json.Marshal(entry.DestinationRefs)
	if err != nil {
		return fmt.Errorf("failed to encode destination refs: %w", err)
	}
	if entry.DestinationRefs == nil {
		refs = []byte("{}")
	}

	return l.withTx(ctx, func(tx *sql.Tx) error {
		return upsertItem(ctx, tx, itemRow{
			sourceID:   entry.SourceID,
			outcome:    gist.OutcomeProcessed,
			subject:    entry.Subject,
			sender:     entry.Sender,
			score:      entry.Score,
			isLowValue: entry.IsLowValue,
			degraded:   entry.Degraded,
			refs:       string(refs),
			at:         entry.ProcessedAt,
			runID:      l.currentRun.Load(),
		})
	})
}

// RecordFailure marks sourceID as failed and appends an error record, atomically.
func (l *Ledger) RecordFailure(ctx context.Context, sourceID string, cause error) error {
	if sourceID == "" {
		return fmt.Errorf("source id is required")
	}
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	now := l.now()

	return l.withTx(ctx, func(tx *sql.Tx) error {
		err := upsertItem(ctx, tx, itemRow{
			sourceID: sourceID,
			outcome:  gist.OutcomeFailed,
			refs:     "{}",
			at:       now,
			runID:    l.currentRun.Load(),
		})
		if err != nil {
			return err
		}

		query, args, err := psql.Insert(tableErrors).
			Columns("source_id", "category", "message", "occurred_at").
			Values(sourceID, string(gist.CategoryOf(cause)), cause.Error(), now.UnixMilli()).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert error record: %w", err)
		}
		return nil
	})
}

// ListErrors returns error records at or after since, newest first.
// A zero since lists every record.
func (l *Ledger) ListErrors(ctx context.Context, since time.Time) ([]gist.ErrorRecord, error) {
	builder := psql.Select("id", "source_id", "category", "message", "occurred_at").
		From(tableErrors).
		OrderBy("occurred_at DESC", "id DESC")
	if !since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"occurred_at": since.UnixMilli()})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var records []gist.ErrorRecord
	err = l.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list errors: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec      gist.ErrorRecord
				category string
				at       int64
			)
			if err := rows.Scan(&rec.ID, &rec.SourceID, &category, &rec.Message, &at); err != nil {
				return fmt.Errorf("failed to scan error record: %w", err)
			}
			rec.Category = gist.Category(category)
			rec.OccurredAt = time.UnixMilli(at).UTC()
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

// ClearError removes the failed entry for sourceID so the next run fetches the
// item again. Error records are kept as audit trail. Successful entries are
// never removed.
func (l *Ledger) ClearError(ctx context.Context, sourceID string) error {
	query, args, err := psql.Delete(tableItems).
		Where(sq.Eq{"source_id": sourceID, "outcome": string(gist.OutcomeFailed)}).
		ToSql()
	if err != nil {
		return err
	}

	return l.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to clear error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, sourceID)
		}
		return nil
	})
}

type itemRow struct {
	sourceID   string
	outcome    gist.Outcome
	subject    string
	sender     string
	score      int
	isLowValue bool
	degraded   bool
	refs       string
	at         time.Time
	runID      int64
}

func upsertItem(ctx context.Context, tx *sql.Tx, row itemRow) error {
	query, args, err := psql.Insert(tableItems).
		Columns("source_id", "outcome", "subject", "sender", "score", "is_low_value",
			"degraded", "destination_refs", "processed_at", "run_id").
		Values(row.sourceID, string(row.outcome), row.subject, row.sender, row.score,
			boolInt(row.isLowValue), boolInt(row.degraded), row.refs, row.at.UnixMilli(), row.runID).
		Suffix(`ON CONFLICT(source_id) DO UPDATE SET
			outcome = excluded.outcome,
			subject = excluded.subject,
			sender = excluded.sender,
			score = excluded.score,
			is_low_value = excluded.is_low_value,
			degraded = excluded.degraded,
			destination_refs = excluded.destination_refs,
			processed_at = excluded.processed_at,
			run_id = excluded.run_id`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write ledger entry %s: %w", row.sourceID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
