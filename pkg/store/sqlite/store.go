package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/glossa-app/glossa/pkg/store"
)

// Store is a key-value store backed by a single SQLite table.
type Store struct {
	db    *sql.DB
	quota int64
}

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// New opens the database at dbPath and creates the schema. A quota of zero
// or less disables the byte limit.
func New(dbPath string, quotaBytes int64) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open store db")
	}
	// SQLite serializes writers; one connection keeps quota checks and writes
	// in the same transaction view.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createKVTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate store db")
	}

	return &Store{db: db, quota: quotaBytes}, nil
}

// Get returns the values for the keys that exist.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := `SELECT key, value FROM kv_entries WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "store get")
	}
	defer rows.Close()
	if err := scanInto(rows, out); err != nil {
		return nil, errors.Wrap(err, "store get")
	}
	return out, nil
}

// Scan returns every entry whose key starts with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv_entries WHERE substr(key, 1, ?) = ?`,
		len(prefix), prefix,
	)
	if err != nil {
		return nil, errors.Wrap(err, "store scan")
	}
	defer rows.Close()

	out := make(map[string][]byte)
	if err := scanInto(rows, out); err != nil {
		return nil, errors.Wrap(err, "store scan")
	}
	return out, nil
}

// Set writes all entries in one transaction, rejecting the batch with
// store.ErrQuotaExceeded if it would not fit.
func (s *Store) Set(ctx context.Context, entries map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store set")
	}
	defer func() { _ = tx.Rollback() }()

	if s.quota > 0 {
		var used int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(value)), 0) FROM kv_entries`,
		).Scan(&used); err != nil {
			return errors.Wrap(err, "store usage")
		}
		for k, v := range entries {
			var old int64
			err := tx.QueryRowContext(ctx,
				`SELECT LENGTH(CAST(key AS BLOB)) + LENGTH(value) FROM kv_entries WHERE key = ?`, k,
			).Scan(&old)
			if err != nil && err != sql.ErrNoRows {
				return errors.Wrap(err, "store usage")
			}
			used += store.EntrySize(k, v) - old
		}
		if used > s.quota {
			return store.ErrQuotaExceeded
		}
	}

	for k, v := range entries {
		if v == nil {
			v = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO kv_entries (key, value) VALUES (?, ?)`, k, v,
		); err != nil {
			return errors.Wrap(err, "store set")
		}
	}
	return errors.Wrap(tx.Commit(), "store commit")
}

// Remove deletes the given keys.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE key IN (?`+strings.Repeat(",?", len(keys)-1)+`)`, args...)
	return errors.Wrap(err, "store remove")
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries`)
	return errors.Wrap(err, "store clear")
}

// BytesInUse sums key and value lengths.
func (s *Store) BytesInUse(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(value)), 0) FROM kv_entries`,
	).Scan(&used)
	if err != nil {
		return 0, errors.Wrap(err, "store usage")
	}
	return used, nil
}

// QuotaBytes returns the configured capacity.
func (s *Store) QuotaBytes() int64 {
	return s.quota
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanInto(rows *sql.Rows, out map[string][]byte) error {
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		out[k] = v
	}
	return rows.Err()
}

var _ store.Store = (*Store)(nil)
