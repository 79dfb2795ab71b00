package history

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded analysis attempt. Score and confidence fields are
// pointers so absent readings stay absent in JSON.
type Entry struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	HomeScore  *int      `json:"home_score,omitempty"`
	AwayScore  *int      `json:"away_score,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Period     string    `json:"period,omitempty"`
	Clock      string    `json:"clock,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	Attempts   int       `json:"attempts"`
	DurationMs int64     `json:"duration_ms"`
}

// Manager stores analysis attempts in the shared SQLite database.
type Manager struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewManager initializes the analysis log schema on the shared connection.
func NewManager(db *sql.DB) (*Manager, error) {
	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize analysis log schema: %w", err)
	}
	log.Printf("📊 Analysis history manager initialized")
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_logs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT,
		home_score INTEGER,
		away_score INTEGER,
		confidence REAL,
		period TEXT,
		clock TEXT,
		media_type TEXT,
		attempts INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_logs_created_at ON analysis_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_analysis_logs_status ON analysis_logs(status);
	`
	_, err := m.db.Exec(schema)
	return err
}

// Record inserts an attempt and fills in its ID and timestamp.
func (m *Manager) Record(e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := m.db.Exec(`
		INSERT INTO analysis_logs
			(id, created_at, status, error_kind, home_score, away_score,
			 confidence, period, clock, media_type, attempts, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC(), e.Status, nullStr(e.ErrorKind),
		e.HomeScore, e.AwayScore, e.Confidence,
		nullStr(e.Period), nullStr(e.Clock), nullStr(e.MediaType),
		e.Attempts, e.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to record analysis attempt: %w", err)
	}
	return nil
}

// List returns the most recent attempts, newest first.
func (m *Manager) List(limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := m.db.Query(`
		SELECT id, created_at, status, error_kind, home_score, away_score,
		       confidence, period, clock, media_type, attempts, duration_ms
		FROM analysis_logs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var errorKind, period, clock, mediaType sql.NullString
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Status, &errorKind,
			&e.HomeScore, &e.AwayScore, &e.Confidence,
			&period, &clock, &mediaType, &e.Attempts, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan analysis log row: %w", err)
		}
		e.ErrorKind = errorKind.String
		e.Period = period.String
		e.Clock = clock.String
		e.MediaType = mediaType.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear deletes all recorded attempts and returns how many were removed.
func (m *Manager) Clear() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.Exec(`DELETE FROM analysis_logs`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear analysis log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("🗑️ Cleared %d analysis log entries", n)
	}
	return n, nil
}

// Count returns the total number of recorded attempts.
func (m *Manager) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM analysis_logs`).Scan(&n)
	return n, err
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
