package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists search records and conversations in MySQL for
// multi-process deployments.
//
// Example:
//
//	st, err := store.NewMySQLStore("user:pass@tcp(localhost:3306)/branchchat")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
type MySQLStore struct {
	sqlConversations

	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to dsn, verifies the connection and migrates the
// schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	m.sqlConversations = sqlConversations{db: db, open: m.checkOpen}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	searches := `
		CREATE TABLE IF NOT EXISTS searches (
			run_id VARCHAR(64) NOT NULL PRIMARY KEY,
			goal TEXT NOT NULL,
			answer MEDIUMTEXT NOT NULL,
			config JSON NOT NULL,
			trace JSON NOT NULL,
			cost_usd DOUBLE NOT NULL DEFAULT 0,
			created_unix_ms BIGINT NOT NULL,
			INDEX idx_searches_created (created_unix_ms)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, searches); err != nil {
		return fmt.Errorf("failed to create searches table: %w", err)
	}

	conversations := `
		CREATE TABLE IF NOT EXISTS conversations (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			message_id BIGINT NULL,
			created_unix_ms BIGINT NOT NULL,
			INDEX idx_conversations_message (message_id),
			INDEX idx_conversations_created (created_unix_ms)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, conversations); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	messages := `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			conversation_id BIGINT NOT NULL,
			role VARCHAR(16) NOT NULL,
			content MEDIUMTEXT NOT NULL,
			reasoning_summary MEDIUMTEXT NOT NULL,
			num_of_children INT NOT NULL DEFAULT 0,
			referred_message_id BIGINT NULL,
			referred_content TEXT NOT NULL,
			created_unix_ms BIGINT NOT NULL,
			INDEX idx_messages_conversation (conversation_id, id),
			CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id)
				REFERENCES conversations(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, messages); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}

// SaveSearch implements Store.
func (m *MySQLStore) SaveSearch(ctx context.Context, rec SearchRecord) error {
	if err := m.checkOpen(); err != nil {
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
		ON DUPLICATE KEY UPDATE
			goal = VALUES(goal),
			answer = VALUES(answer),
			config = VALUES(config),
			trace = VALUES(trace),
			cost_usd = VALUES(cost_usd),
			created_unix_ms = VALUES(created_unix_ms)
	`
	_, err = m.db.ExecContext(ctx, query,
		rec.RunID, rec.Goal, rec.Answer, config, trace, rec.CostUSD, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save search: %w", err)
	}
	return nil
}

// LoadSearch implements Store.
func (m *MySQLStore) LoadSearch(ctx context.Context, runID string) (SearchRecord, error) {
	if err := m.checkOpen(); err != nil {
		return SearchRecord{}, err
	}

	row := m.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM searches WHERE run_id = ?`, runID)
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
func (m *MySQLStore) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
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

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Close implements Store.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}
