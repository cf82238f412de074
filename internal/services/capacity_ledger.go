package services

import (
	"sync"
)

// CapacityLedger tracks active bookings against the global ceiling.
//
// A booking request first takes a reservation; the reservation becomes an
// active slot once the backend acknowledges the booking, or is cancelled on
// any rejection. Because reservations count against the ceiling, concurrent
// requests can never push the active count above it.
type CapacityLedger struct {
	mu       sync.Mutex
	ceiling  int
	active   int
	reserved int
}

// CapacitySnapshot is a point-in-time view of the ledger
type CapacitySnapshot struct {
	Active   int `json:"active"`
	Reserved int `json:"reserved"`
	Ceiling  int `json:"ceiling"`
}

// NewCapacityLedger creates a ledger with the given ceiling
func NewCapacityLedger(ceiling int) *CapacityLedger {
	return &CapacityLedger{ceiling: ceiling}
}

// Reserve takes a slot for an in-flight request. It returns false when
// active bookings plus pending reservations already reach the ceiling.
func (l *CapacityLedger) Reserve() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active+l.reserved >= l.ceiling {
		return false
	}
	l.reserved++
	return true
}

// Commit turns a reservation into an active booking
func (l *CapacityLedger) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved > 0 {
		l.reserved--
	}
	l.active++
}

// Cancel drops a reservation without touching the active count
func (l *CapacityLedger) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved > 0 {
		l.reserved--
	}
}

// Release frees the slot of a removed booking. The count never drops below zero.
func (l *CapacityLedger) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// Active returns the number of backend-acknowledged bookings
func (l *CapacityLedger) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Ceiling returns the configured maximum
func (l *CapacityLedger) Ceiling() int {
	return l.ceiling
}

// Snapshot returns the current counters
func (l *CapacityLedger) Snapshot() CapacitySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return CapacitySnapshot{Active: l.active, Reserved: l.reserved, Ceiling: l.ceiling}
}
