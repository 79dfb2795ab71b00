package usage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteStore persists limiter state as named JSON blobs in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const (
	blobWindow = "usage_window"
	blobLimits = "usage_limits"
)

// NewSQLiteStore creates the store and its schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize usage_state schema: %w", err)
	}
	return s, nil
}

// initSchema creates the usage_state table.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_state (
		name TEXT PRIMARY KEY,
		blob TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// saveBlob upserts one named blob. The write is committed before return,
// so a successful save is durable.
func (s *SQLiteStore) saveBlob(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO usage_state (name, blob, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP
	`, name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

// loadBlob reads one named blob; found is false when no blob exists.
func (s *SQLiteStore) loadBlob(name string, v interface{}) (bool, error) {
	var data string
	err := s.db.QueryRow("SELECT blob FROM usage_state WHERE name = ?", name).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", name, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return true, nil
}

// SaveWindow persists the record list.
func (s *SQLiteStore) SaveWindow(records []Record) error {
	return s.saveBlob(blobWindow, windowState{Records: records})
}

// LoadWindow restores the record list; an absent blob yields an empty
// window.
func (s *SQLiteStore) LoadWindow() ([]Record, error) {
	var state windowState
	found, err := s.loadBlob(blobWindow, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return state.Records, nil
}

// SaveLimits persists the limit ceilings.
func (s *SQLiteStore) SaveLimits(limits Limits) error {
	return s.saveBlob(blobLimits, limits)
}

// LoadLimits restores the limit ceilings; nil when none were saved.
func (s *SQLiteStore) LoadLimits() (*Limits, error) {
	var limits Limits
	found, err := s.loadBlob(blobLimits, &limits)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &limits, nil
}
