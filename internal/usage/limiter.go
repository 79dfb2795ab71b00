package usage

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrLimitExceeded is returned by RecordCall when one of the trailing
// windows is already at its ceiling.
var ErrLimitExceeded = errors.New("usage limit exceeded")

// maintenanceInterval drives the advisory status refresh.
const maintenanceInterval = 10 * time.Second

// Store persists the limiter state as two named blobs.
type Store interface {
	SaveWindow(records []Record) error
	LoadWindow() ([]Record, error)
	SaveLimits(limits Limits) error
	LoadLimits() (*Limits, error)
}

// Limiter admits calls under three independent sliding windows
// (minute/hour/day) and records admitted calls. All mutations are
// serialized behind a single mutex so check-then-record cannot race.
type Limiter struct {
	mu      sync.Mutex
	records []Record
	limits  Limits
	store   Store

	// boost multiplies the ceilings at evaluation time only. The base
	// limits are what persist and what SetLimits replaces; the boost is
	// never written to storage, so it cannot survive into an
	// environment that does not re-enable it.
	boost int

	// advisory state for observers; CanCall never consults it
	exceeded    bool
	nextAllowed *time.Time
	updatedAt   time.Time

	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter, restoring persisted state when a store is
// provided, and starts the background maintenance loop.
func NewLimiter(store Store) (*Limiter, error) {
	return NewLimiterWithClock(store, time.Now)
}

// NewLimiterWithClock is NewLimiter with an injectable time source for
// deterministic window evaluation.
func NewLimiterWithClock(store Store, now func() time.Time) (*Limiter, error) {
	l := &Limiter{
		limits:   DefaultLimits(),
		store:    store,
		now:      now,
		stopChan: make(chan struct{}),
	}

	if store != nil {
		records, err := store.LoadWindow()
		if err != nil {
			return nil, fmt.Errorf("failed to restore usage window: %w", err)
		}
		l.records = records

		limits, err := store.LoadLimits()
		if err != nil {
			return nil, fmt.Errorf("failed to restore usage limits: %w", err)
		}
		if limits != nil {
			l.limits = limits.Normalized()
		}
	}

	l.mu.Lock()
	l.refreshAdvisoryLocked(l.now())
	l.mu.Unlock()

	go l.maintain()
	return l, nil
}

// maintain prunes expired records and refreshes the advisory flag on a
// fixed interval until Stop is called.
func (l *Limiter) maintain() {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			l.pruneLocked(now)
			l.refreshAdvisoryLocked(now)
			l.mu.Unlock()
		case <-l.stopChan:
			return
		}
	}
}

// Stop stops the background maintenance loop.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

// CanCall reports whether a new call is permitted right now. It prunes
// expired records first and recomputes all three window counts.
func (l *Limiter) CanCall() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	return l.admissibleLocked(now)
}

// RecordCall re-checks admission and, if permitted, appends a record for
// the current instant and persists the updated window before returning.
// The append is rolled back if persistence fails, so a successful return
// implies the event is durable.
func (l *Limiter) RecordCall() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if !l.admissibleLocked(now) {
		return ErrLimitExceeded
	}

	l.records = append(l.records, Record{At: now})
	if l.store != nil {
		if err := l.store.SaveWindow(l.records); err != nil {
			l.records = l.records[:len(l.records)-1]
			return fmt.Errorf("failed to persist usage window: %w", err)
		}
	}

	l.refreshAdvisoryLocked(now)
	return nil
}

// SetLimits replaces the limits (normalized to keep the ordering
// invariant), persists them, and re-evaluates the advisory state
// immediately.
func (l *Limiter) SetLimits(limits Limits) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	normalized := limits.Normalized()
	if l.store != nil {
		if err := l.store.SaveLimits(normalized); err != nil {
			return fmt.Errorf("failed to persist usage limits: %w", err)
		}
	}

	l.limits = normalized
	l.refreshAdvisoryLocked(l.now())
	log.Printf("🔄 Usage limits updated: %d/min, %d/hour, %d/day",
		normalized.PerMinute, normalized.PerHour, normalized.PerDay)
	return nil
}

// Limits returns the current base limits, without any boost applied.
func (l *Limiter) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits
}

// SetBoost applies an in-memory multiplier to the ceilings and
// re-evaluates the advisory state. Factors below one clear the boost.
func (l *Limiter) SetBoost(factor int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if factor < 1 {
		factor = 1
	}
	l.boost = factor
	l.refreshAdvisoryLocked(l.now())

	if factor > 1 {
		eff := l.effectiveLimitsLocked()
		log.Printf("🔧 Usage limits boost active (x%d): %d/min, %d/hour, %d/day",
			factor, eff.PerMinute, eff.PerHour, eff.PerDay)
	}
}

// effectiveLimitsLocked returns the ceilings admission checks run
// against: the base limits scaled by any active boost.
func (l *Limiter) effectiveLimitsLocked() Limits {
	if l.boost > 1 {
		return l.limits.Scaled(l.boost)
	}
	return l.limits
}

// Reset clears all recorded events.
func (l *Limiter) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	if l.store != nil {
		if err := l.store.SaveWindow(l.records); err != nil {
			return fmt.Errorf("failed to persist usage window: %w", err)
		}
	}
	l.refreshAdvisoryLocked(l.now())
	return nil
}

// ResetExpired prunes only records past the 24-hour retention horizon.
// A call outside the minute/hour windows but inside the day window still
// counts toward the day limit.
func (l *Limiter) ResetExpired() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	before := len(l.records)
	l.pruneLocked(now)

	if l.store != nil && len(l.records) != before {
		if err := l.store.SaveWindow(l.records); err != nil {
			return fmt.Errorf("failed to persist usage window: %w", err)
		}
	}
	l.refreshAdvisoryLocked(now)
	return nil
}

// Status returns an advisory snapshot for observers.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	l.refreshAdvisoryLocked(now)

	st := Status{
		Counts:    l.countsLocked(now),
		Limits:    l.effectiveLimitsLocked(),
		Exceeded:  l.exceeded,
		UpdatedAt: l.updatedAt,
	}
	if l.nextAllowed != nil {
		t := *l.nextAllowed
		st.NextAllowedAt = &t
	}
	return st
}

// NextAllowedAt returns the soonest instant at which CanCall could return
// true, or nil when a call is already permitted.
func (l *Limiter) NextAllowedAt() *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	return l.nextAllowedLocked(now)
}

// pruneLocked drops records older than the retention horizon.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	kept := l.records[:0]
	for _, r := range l.records {
		if r.At.After(cutoff) {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

// countsLocked recomputes the three trailing-window counts.
func (l *Limiter) countsLocked(now time.Time) WindowCounts {
	minuteCutoff := now.Add(-time.Minute)
	hourCutoff := now.Add(-time.Hour)
	dayCutoff := now.Add(-retention)

	var c WindowCounts
	for _, r := range l.records {
		if r.At.After(dayCutoff) {
			c.LastDay++
		}
		if r.At.After(hourCutoff) {
			c.LastHour++
		}
		if r.At.After(minuteCutoff) {
			c.LastMinute++
		}
	}
	return c
}

// admissibleLocked reports whether all three counts are strictly below
// their ceilings.
func (l *Limiter) admissibleLocked(now time.Time) bool {
	c := l.countsLocked(now)
	lim := l.effectiveLimitsLocked()
	return c.LastMinute < lim.PerMinute &&
		c.LastHour < lim.PerHour &&
		c.LastDay < lim.PerDay
}

// nextAllowedLocked computes when the soonest saturated window frees a
// slot. Returns nil when a call is already permitted.
func (l *Limiter) nextAllowedLocked(now time.Time) *time.Time {
	if l.admissibleLocked(now) {
		return nil
	}

	lim := l.effectiveLimitsLocked()
	windows := []struct {
		span  time.Duration
		limit int
	}{
		{time.Minute, lim.PerMinute},
		{time.Hour, lim.PerHour},
		{retention, lim.PerDay},
	}

	var next time.Time
	for _, w := range windows {
		cutoff := now.Add(-w.span)
		var inWindow []time.Time
		for _, r := range l.records {
			if r.At.After(cutoff) {
				inWindow = append(inWindow, r.At)
			}
		}
		if len(inWindow) < w.limit {
			continue
		}
		// The window admits again once enough of its oldest records have
		// aged out to bring the count strictly below the ceiling.
		sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })
		candidate := inWindow[len(inWindow)-w.limit].Add(w.span)
		if candidate.After(next) {
			next = candidate
		}
	}

	if next.IsZero() {
		return nil
	}
	return &next
}

// refreshAdvisoryLocked updates the observer-facing snapshot fields.
func (l *Limiter) refreshAdvisoryLocked(now time.Time) {
	l.exceeded = !l.admissibleLocked(now)
	l.nextAllowed = l.nextAllowedLocked(now)
	l.updatedAt = now
}
