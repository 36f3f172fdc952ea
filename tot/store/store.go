// Package store persists completed tree searches and branching chat
// conversations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/branchchat/tot"
)

// ErrNotFound is returned when a requested run ID, conversation or message
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store is closed")

// DefaultListLimit is used when ListSearches is called with limit <= 0.
const DefaultListLimit = 20

// SearchRecord is a completed search as it is stored. Failed searches are
// never recorded.
type SearchRecord struct {
	RunID     string           `json:"run_id"`
	Goal      string           `json:"goal"`
	Answer    string           `json:"answer"`
	Config    tot.SearchConfig `json:"config"`
	Trace     tot.SearchTrace  `json:"trace"`
	CostUSD   float64          `json:"cost_usd"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store persists search records.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveSearch stores rec, replacing any record with the same RunID.
	SaveSearch(ctx context.Context, rec SearchRecord) error

	// LoadSearch returns the record for runID, or ErrNotFound.
	LoadSearch(ctx context.Context, runID string) (SearchRecord, error)

	// ListSearches returns up to limit records, newest first.
	ListSearches(ctx context.Context, limit int) ([]SearchRecord, error)

	// Close releases resources held by the store.
	Close() error
}

func validateRecord(rec SearchRecord) error {
	if rec.RunID == "" {
		return errors.New("search record requires a run ID")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// encodeRecord serializes the JSON columns of rec.
func encodeRecord(rec SearchRecord) (config, trace []byte, err error) {
	config, err = json.Marshal(rec.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	trace, err = json.Marshal(rec.Trace)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal trace: %w", err)
	}
	return config, trace, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads one row selected with recordColumns.
func scanRecord(row rowScanner) (SearchRecord, error) {
	var (
		rec           SearchRecord
		config, trace []byte
		createdMillis int64
	)
	if err := row.Scan(&rec.RunID, &rec.Goal, &rec.Answer, &config, &trace, &rec.CostUSD, &createdMillis); err != nil {
		return SearchRecord{}, err
	}
	if err := json.Unmarshal(config, &rec.Config); err != nil {
		return SearchRecord{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal(trace, &rec.Trace); err != nil {
		return SearchRecord{}, fmt.Errorf("failed to unmarshal trace: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return rec, nil
}

const recordColumns = "run_id, goal, answer, config, trace, cost_usd, created_unix_ms"
