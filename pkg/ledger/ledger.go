// Package ledger keeps a SQLite record of every backend attempt the
// coordinator makes, for diagnosing fallback behavior.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/glossa-app/glossa/pkg/models"
)

// Ledger writes and queries attempt records in a dedicated SQLite database.
type Ledger struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
	closeErr      error
}

// New opens the ledger database and creates the schema. A positive
// retentionDays starts an hourly cleanup of older records.
func New(dbPath string, retentionDays int) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	l := &Ledger{
		db:            db,
		retentionDays: retentionDays,
		done:          make(chan struct{}),
	}

	if retentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS attempts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id  TEXT NOT NULL,
		capability  TEXT NOT NULL,
		backend     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		error_kind  TEXT,
		message     TEXT,
		attempts    INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts(request_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at)`)
	return err
}

// Record inserts one attempt.
func (l *Ledger) Record(ctx context.Context, a models.Attempt) error {
	if l == nil || l.db == nil {
		return nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO attempts
		(request_id, capability, backend, outcome, error_kind, message, attempts, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, string(a.Capability), string(a.Backend), string(a.Outcome),
		a.ErrorKind, a.Message, a.Attempts, a.LatencyMs, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Query returns attempts matching opts, newest first.
func (l *Ledger) Query(ctx context.Context, opts models.AttemptQueryOpts) ([]models.Attempt, error) {
	q := `SELECT request_id, capability, backend, outcome, error_kind, message,
		attempts, latency_ms, created_at
		FROM attempts WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Backend != "" {
		q += " AND backend = ?"
		args = append(args, string(opts.Backend))
	}
	if opts.Capability != "" {
		q += " AND capability = ?"
		args = append(args, string(opts.Capability))
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, string(opts.Outcome))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var capability, backend, outcome string
		var errorKind, message sql.NullString
		if err := rows.Scan(
			&a.RequestID, &capability, &backend, &outcome,
			&errorKind, &message, &a.Attempts, &a.LatencyMs, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		a.Capability = models.Capability(capability)
		a.Backend = models.BackendID(backend)
		a.Outcome = models.AttemptOutcome(outcome)
		a.ErrorKind = errorKind.String
		a.Message = message.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns attempt counts and mean latency grouped by backend,
// capability and outcome.
func (l *Ledger) Stats(ctx context.Context) ([]models.AttemptStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT backend, capability, outcome, count(*) AS cnt, avg(latency_ms)
		 FROM attempts GROUP BY backend, capability, outcome
		 ORDER BY backend, capability, outcome`)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AttemptStat
	for rows.Next() {
		var s models.AttemptStat
		var backend, capability, outcome string
		var avg sql.NullFloat64
		if err := rows.Scan(&backend, &capability, &outcome, &s.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan attempt stat: %w", err)
		}
		s.Backend = models.BackendID(backend)
		s.Capability = models.Capability(capability)
		s.Outcome = models.AttemptOutcome(outcome)
		s.AvgLatencyMs = avg.Float64
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than the retention period.
func (l *Ledger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Ledger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.closeErr = l.db.Close()
	})
	return l.closeErr
}

func (l *Ledger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
