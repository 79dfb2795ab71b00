// Package usage tracks vision API calls against sliding-window limits.
package usage

import "time"

// Default call ceilings per trailing window.
const (
	DefaultPerMinute = 3
	DefaultPerHour   = 20
	DefaultPerDay    = 40
)

// retention is how long call records are kept; anything older is pruned.
const retention = 24 * time.Hour

// Record is a single timestamped call event.
type Record struct {
	At time.Time `json:"at"`
}

// Limits holds the call ceilings for the three trailing windows.
// Invariant: PerMinute <= PerHour <= PerDay.
type Limits struct {
	PerMinute int `json:"perMinute"`
	PerHour   int `json:"perHour"`
	PerDay    int `json:"perDay"`
}

// DefaultLimits returns the stock limits (3/20/40).
func DefaultLimits() Limits {
	return Limits{PerMinute: DefaultPerMinute, PerHour: DefaultPerHour, PerDay: DefaultPerDay}
}

// Normalized returns a copy with each ceiling clamped so the invariant
// PerMinute <= PerHour <= PerDay holds and all ceilings are positive.
func (l Limits) Normalized() Limits {
	if l.PerMinute < 1 {
		l.PerMinute = 1
	}
	if l.PerHour < l.PerMinute {
		l.PerHour = l.PerMinute
	}
	if l.PerDay < l.PerHour {
		l.PerDay = l.PerHour
	}
	return l
}

// Scaled returns a copy with every ceiling multiplied by factor.
func (l Limits) Scaled(factor int) Limits {
	if factor <= 1 {
		return l
	}
	return Limits{
		PerMinute: l.PerMinute * factor,
		PerHour:   l.PerHour * factor,
		PerDay:    l.PerDay * factor,
	}
}

// WindowCounts holds the derived per-window call counts.
type WindowCounts struct {
	LastMinute int `json:"lastMinute"`
	LastHour   int `json:"lastHour"`
	LastDay    int `json:"lastDay"`
}

// Status is an advisory snapshot of the limiter for observers.
// CanCall always recomputes from scratch; this is UI state only.
type Status struct {
	Counts        WindowCounts `json:"counts"`
	Limits        Limits       `json:"limits"`
	Exceeded      bool         `json:"exceeded"`
	NextAllowedAt *time.Time   `json:"nextAllowedAt,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// windowState is the persisted form of the record list.
type windowState struct {
	Records []Record `json:"records"`
}
