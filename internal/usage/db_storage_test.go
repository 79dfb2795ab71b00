package usage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hoopscore/scorelens/internal/database"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func TestStoreWindowRoundTrip(t *testing.T) {
	store := newTestStore(t)

	records, err := store.LoadWindow()
	if err != nil {
		t.Fatalf("LoadWindow on empty store: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty window, got %d records", len(records))
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	saved := []Record{{At: now}, {At: now.Add(30 * time.Second)}}
	if err := store.SaveWindow(saved); err != nil {
		t.Fatalf("SaveWindow: %v", err)
	}

	restored, err := store.LoadWindow()
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("expected 2 records, got %d", len(restored))
	}
	if !restored[0].At.Equal(now) || !restored[1].At.Equal(now.Add(30*time.Second)) {
		t.Fatalf("restored timestamps differ: %+v", restored)
	}

	// Saving again replaces, not appends.
	if err := store.SaveWindow(saved[:1]); err != nil {
		t.Fatalf("SaveWindow replace: %v", err)
	}
	restored, err = store.LoadWindow()
	if err != nil {
		t.Fatalf("LoadWindow after replace: %v", err)
	}
	if len(restored) != 1 {
		t.Fatalf("expected 1 record after replace, got %d", len(restored))
	}
}

func TestStoreLimitsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	limits, err := store.LoadLimits()
	if err != nil {
		t.Fatalf("LoadLimits on empty store: %v", err)
	}
	if limits != nil {
		t.Fatalf("expected nil limits on empty store, got %+v", limits)
	}

	want := Limits{PerMinute: 2, PerHour: 10, PerDay: 30}
	if err := store.SaveLimits(want); err != nil {
		t.Fatalf("SaveLimits: %v", err)
	}

	limits, err = store.LoadLimits()
	if err != nil {
		t.Fatalf("LoadLimits: %v", err)
	}
	if limits == nil || *limits != want {
		t.Fatalf("restored limits = %+v, want %+v", limits, want)
	}
}

func TestLimiterRestoresPersistedState(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	if err := store.SaveWindow([]Record{{At: now.Add(-10 * time.Second)}}); err != nil {
		t.Fatalf("SaveWindow: %v", err)
	}
	if err := store.SaveLimits(Limits{PerMinute: 1, PerHour: 5, PerDay: 5}); err != nil {
		t.Fatalf("SaveLimits: %v", err)
	}

	l, err := NewLimiter(store)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	defer l.Stop()

	if l.CanCall() {
		t.Fatalf("restored state should deny: 1 call in the last minute at 1/min")
	}
	if got := l.Limits(); got != (Limits{PerMinute: 1, PerHour: 5, PerDay: 5}) {
		t.Fatalf("restored limits = %+v", got)
	}
}
