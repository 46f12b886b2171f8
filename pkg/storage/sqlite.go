package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
)

// SQLiteStore keeps every collection in a single kv table keyed by
// (collection, key). WAL journaling permits concurrent readers while
// writes stay serialized; the hot paths run as prepared statements.
type SQLiteStore struct {
	db       *sql.DB
	getStmt  *sql.Stmt
	setStmt  *sql.Stmt
	delStmt  *sql.Stmt
	hasStmt  *sql.Stmt
	cntStmt  *sql.Stmt
	clrStmt  *sql.Stmt
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, oerrors.Storage(err, "failed to open database %s", path)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, oerrors.Storage(err, "failed to enable WAL journaling")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			PRIMARY KEY (collection, key)
		)`); err != nil {
		db.Close()
		return nil, oerrors.Storage(err, "failed to create kv table")
	}

	s := &SQLiteStore{db: db}
	for _, p := range []struct {
		stmt **sql.Stmt
		sql  string
	}{
		{&s.getStmt, `SELECT value FROM kv WHERE collection = ? AND key = ?`},
		{&s.setStmt, `INSERT INTO kv (collection, key, value) VALUES (?, ?, ?)
			ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value`},
		{&s.delStmt, `DELETE FROM kv WHERE collection = ? AND key = ?`},
		{&s.hasStmt, `SELECT 1 FROM kv WHERE collection = ? AND key = ?`},
		{&s.cntStmt, `SELECT COUNT(*) FROM kv WHERE collection = ?`},
		{&s.clrStmt, `DELETE FROM kv WHERE collection = ?`},
	} {
		prepared, err := db.Prepare(p.sql)
		if err != nil {
			db.Close()
			return nil, oerrors.Storage(err, "failed to prepare statement")
		}
		*p.stmt = prepared
	}
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, collection, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return nil, oerrors.Storage(err, "failed to read %s/%s", collection, key)
	}
	return []byte(value), nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, key string, value []byte) error {
	if _, err := s.setStmt.ExecContext(ctx, collection, key, string(value)); err != nil {
		return oerrors.Storage(err, "failed to write %s/%s", collection, key)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	res, err := s.delStmt.ExecContext(ctx, collection, key)
	if err != nil {
		return false, oerrors.Storage(err, "failed to delete %s/%s", collection, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oerrors.Storage(err, "failed to delete %s/%s", collection, key)
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context, collection string, opts ListOptions) ([]Entry, error) {
	order := "ASC"
	if opts.Descending {
		order = "DESC"
	}
	limit := -1 // sqlite: no limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	query := fmt.Sprintf(
		`SELECT key, value FROM kv WHERE collection = ? ORDER BY key %s LIMIT ? OFFSET ?`, order)

	rows, err := s.db.QueryContext(ctx, query, collection, limit, opts.Offset)
	if err != nil {
		return nil, oerrors.Storage(err, "failed to list collection %s", collection)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, oerrors.Storage(err, "failed to scan row in %s", collection)
		}
		entries = append(entries, Entry{Key: key, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, oerrors.Storage(err, "failed to list collection %s", collection)
	}
	return entries, nil
}

func (s *SQLiteStore) Has(ctx context.Context, collection, key string) (bool, error) {
	var one int
	err := s.hasStmt.QueryRowContext(ctx, collection, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, oerrors.Storage(err, "failed to check %s/%s", collection, key)
	}
	return true, nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.cntStmt.QueryRowContext(ctx, collection).Scan(&n); err != nil {
		return 0, oerrors.Storage(err, "failed to count collection %s", collection)
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	if _, err := s.clrStmt.ExecContext(ctx, collection); err != nil {
		return oerrors.Storage(err, "failed to clear collection %s", collection)
	}
	return nil
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM kv ORDER BY collection`)
	if err != nil {
		return nil, oerrors.Storage(err, "failed to list collections")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, oerrors.Storage(err, "failed to scan collection name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, oerrors.Storage(err, "failed to list collections")
	}
	return names, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
