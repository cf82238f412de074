package database

import (
	"sort"
	"sync"

	"github.com/matcha-bookable/bookable-bot/internal/models"
)

// PlaceholderResult reports the outcome of ReservePlaceholder
type PlaceholderResult int

const (
	PlaceholderReserved   PlaceholderResult = iota // Placeholder inserted, caller owns it
	PlaceholderInProgress                          // Owner already has a placeholder
	PlaceholderBooked                              // Owner already has a backend booking
)

// BookingStore is the process-wide, in-memory map of booking records.
// State is lost when the process exits.
type BookingStore struct {
	mu      sync.Mutex
	records map[models.BookingKey]models.Booking
	changed chan struct{}
}

// NewBookingStore creates an empty booking store
func NewBookingStore() *BookingStore {
	return &BookingStore{
		records: make(map[models.BookingKey]models.Booking),
		changed: make(chan struct{}),
	}
}

// notifyLocked wakes every waiter; must be called with mu held
func (s *BookingStore) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Changed returns a channel that is closed on the next mutation.
// Take the channel before reading state to avoid missing a wake-up.
func (s *BookingStore) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Get returns the record stored under key
func (s *BookingStore) Get(key models.BookingKey) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.records[key]
	return b, ok
}

// Put stores a record under key, replacing any previous one
func (s *BookingStore) Put(key models.BookingKey, booking models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = booking
	s.notifyLocked()
}

// Remove deletes the record under key and returns it
func (s *BookingStore) Remove(key models.BookingKey) (models.Booking, bool) {
	return s.RemoveIf(key, nil)
}

// RemoveIf deletes the record under key only when pred accepts it. A nil
// predicate always accepts. Only the caller that gets ok=true may release
// the capacity held by the record.
func (s *BookingStore) RemoveIf(key models.BookingKey, pred func(models.Booking) bool) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.records[key]
	if !ok {
		return models.Booking{}, false
	}
	if pred != nil && !pred(b) {
		return b, false
	}
	delete(s.records, key)
	s.notifyLocked()
	return b, true
}

// FindByOwner returns the record (placeholder or real) held by owner.
// Linear scan; active booking counts are small.
func (s *BookingStore) FindByOwner(owner models.OwnerID) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByOwnerLocked(owner)
}

func (s *BookingStore) findByOwnerLocked(owner models.OwnerID) (models.Booking, bool) {
	if b, ok := s.records[models.PlaceholderKey(owner)]; ok {
		return b, true
	}
	for _, b := range s.records {
		if b.OwnerID == owner {
			return b, true
		}
	}
	return models.Booking{}, false
}

// ReservePlaceholder inserts a placeholder for owner unless the owner already
// holds a record. The check and the insert happen under one lock, which makes
// the placeholder the serialization point for duplicate requests.
func (s *BookingStore) ReservePlaceholder(owner models.OwnerID) PlaceholderResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findByOwnerLocked(owner); ok {
		if existing.IsPlaceholder() {
			return PlaceholderInProgress
		}
		return PlaceholderBooked
	}

	s.records[models.PlaceholderKey(owner)] = models.NewPlaceholder(owner)
	s.notifyLocked()
	return PlaceholderReserved
}

// Promote replaces the owner's placeholder with the backend-acknowledged
// record in one step, so the owner is never seen with zero or two records.
func (s *BookingStore) Promote(booking models.Booking) error {
	if booking.IsPlaceholder() {
		return models.ErrNoPlaceholder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholder := models.PlaceholderKey(booking.OwnerID)
	if _, ok := s.records[placeholder]; !ok {
		return models.ErrNoPlaceholder
	}
	delete(s.records, placeholder)
	s.records[booking.Key()] = booking
	s.notifyLocked()
	return nil
}

// CompareAndSetStatus moves the record under key from one status to the next.
// Backward transitions are refused.
func (s *BookingStore) CompareAndSetStatus(key models.BookingKey, from, to models.BookingStatus) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.records[key]
	if !ok {
		return models.Booking{}, models.ErrBookingNotFound
	}
	if b.Status != from || !from.CanAdvanceTo(to) {
		return b, models.ErrStatusConflict
	}

	b = b.WithStatus(to)
	s.records[key] = b
	s.notifyLocked()
	return b, nil
}

// Snapshot returns a copy of every record, backend bookings ordered by ID
// and placeholders last
func (s *BookingStore) Snapshot() []models.Booking {
	s.mu.Lock()
	out := make([]models.Booking, 0, len(s.records))
	for _, b := range s.records {
		out = append(out, b)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsPlaceholder() != b.IsPlaceholder() {
			return !a.IsPlaceholder()
		}
		if a.IsPlaceholder() {
			return a.OwnerID < b.OwnerID
		}
		return *a.BookingID < *b.BookingID
	})
	return out
}

// CountActive returns the number of backend-acknowledged records
func (s *BookingStore) CountActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.records {
		if !b.IsPlaceholder() {
			n++
		}
	}
	return n
}
