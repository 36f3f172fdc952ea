package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists search records and conversations in a single SQLite
// file using the pure Go modernc.org/sqlite driver.
//
// The database is opened in WAL mode with a single connection, so writes
// are serialized and reads never block on them.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./branchchat.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
// Use ":memory:" for a throwaway database in tests.
type SQLiteStore struct {
	sqlConversations

	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	s.sqlConversations = sqlConversations{db: db, open: s.checkOpen}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	searches := `
		CREATE TABLE IF NOT EXISTS searches (
			run_id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			answer TEXT NOT NULL,
			config TEXT NOT NULL,
			trace TEXT NOT NULL,
			cost_usd REAL NOT NULL DEFAULT 0,
			created_unix_ms INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, searches); err != nil {
		return fmt.Errorf("failed to create searches table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_searches_created ON searches(created_unix_ms DESC)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create searches index: %w", err)
	}

	conversations := `
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			message_id INTEGER,
			created_unix_ms INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, conversations); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	messages := `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			reasoning_summary TEXT NOT NULL DEFAULT '',
			num_of_children INTEGER NOT NULL DEFAULT 0,
			referred_message_id INTEGER,
			referred_content TEXT NOT NULL DEFAULT '',
			created_unix_ms INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, messages); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	for _, index := range []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_message ON conversations(message_id)`,
	} {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create conversation index: %w", err)
		}
	}
	return nil
}

// SaveSearch implements Store.
func (s *SQLiteStore) SaveSearch(ctx context.Context, rec SearchRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	config, trace, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO searches (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			goal = excluded.goal,
			answer = excluded.answer,
			config = excluded.config,
			trace = excluded.trace,
			cost_usd = excluded.cost_usd,
			created_unix_ms = excluded.created_unix_ms
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.RunID, rec.Goal, rec.Answer, string(config), string(trace), rec.CostUSD, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save search: %w", err)
	}
	return nil
}

// LoadSearch implements Store.
func (s *SQLiteStore) LoadSearch(ctx context.Context, runID string) (SearchRecord, error) {
	if err := s.checkOpen(); err != nil {
		return SearchRecord{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM searches WHERE run_id = ?`, runID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SearchRecord{}, ErrNotFound
	}
	if err != nil {
		return SearchRecord{}, fmt.Errorf("failed to load search: %w", err)
	}
	return rec, nil
}

// ListSearches implements Store.
func (s *SQLiteStore) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM searches ORDER BY created_unix_ms DESC, run_id ASC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	out := []SearchRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
