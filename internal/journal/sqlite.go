package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite via modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the journal at dbPath.
// Use ":memory:" for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// One connection: writes are serialized and ":memory:" stays a single
	// database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT 'null',
			at         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_at ON entries(at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Record marshals detail to JSON and appends it as a new entry. It
// satisfies the console's Recorder interface.
func (s *SQLiteStore) Record(ctx context.Context, sessionID, kind string, detail any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("journal: marshal %s detail: %w", kind, err)
	}
	return s.Append(ctx, &Entry{SessionID: sessionID, Kind: kind, Detail: raw})
}

// Append persists e. An empty ID is replaced by a new UUID and a zero At
// by the current time.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	if e.Kind == "" {
		return errors.New("journal: entry has no kind")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	e.At = e.At.UTC()
	detail := string(e.Detail)
	if detail == "" {
		detail = "null"
	}

	query := `INSERT INTO entries (id, session_id, kind, detail, at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, e.ID, e.SessionID, e.Kind, detail, e.At.Format(timeLayout)); err != nil {
		return fmt.Errorf("journal: save entry: %w", err)
	}
	return nil
}

// List returns matching entries, oldest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]*Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}

	query := `SELECT seq, id, session_id, kind, detail, at FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	query = `SELECT id, session_id, kind, detail, at FROM (` + query + `) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e      Entry
			detail string
			at     string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &detail, &at); err != nil {
			return nil, fmt.Errorf("journal: scan entry row: %w", err)
		}
		if e.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("journal: parse at %q: %w", at, err)
		}
		if detail != "null" {
			e.Detail = json.RawMessage(detail)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate rows: %w", err)
	}
	return entries, nil
}

// Sessions summarises every session in the journal, most recent first.
// User is taken from the session's login entry when there is one.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]*SessionSummary, error) {
	query := `
		SELECT session_id,
		       MAX(CASE WHEN kind = 'login' THEN json_extract(detail, '$.user') END),
		       COUNT(*), MIN(at), MAX(at)
		FROM entries
		GROUP BY session_id
		ORDER BY MAX(at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("journal: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		var (
			sum         SessionSummary
			user        sql.NullString
			first, last string
		)
		if err := rows.Scan(&sum.SessionID, &user, &sum.Entries, &first, &last); err != nil {
			return nil, fmt.Errorf("journal: scan session row: %w", err)
		}
		sum.User = user.String
		if sum.First, err = time.Parse(timeLayout, first); err != nil {
			return nil, fmt.Errorf("journal: parse first %q: %w", first, err)
		}
		if sum.Last, err = time.Parse(timeLayout, last); err != nil {
			return nil, fmt.Errorf("journal: parse last %q: %w", last, err)
		}
		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate rows: %w", err)
	}
	return out, nil
}

// Prune removes entries older than maxAge and returns how many were
// deleted.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-maxAge).Format(timeLayout)

	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: prune entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: rows affected: %w", err)
	}
	return deleted, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
