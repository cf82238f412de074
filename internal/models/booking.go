package models

import (
	"errors"
	"strconv"
)

// ============================================================================
// BOOKING STATUS
// ============================================================================

// BookingStatus represents the lifecycle state of a backend-acknowledged booking
type BookingStatus string

const (
	BookingStatusNone      BookingStatus = ""          // Placeholder, no backend booking yet
	BookingStatusStarting  BookingStatus = "starting"  // Backend accepted, waiting for the started webhook
	BookingStatusStarted   BookingStatus = "started"   // Server is up, details delivered to the owner
	BookingStatusUnbooking BookingStatus = "unbooking" // Owner asked to close, endBooking in flight
)

// rank orders statuses so transitions can only move forward
func (s BookingStatus) rank() int {
	switch s {
	case BookingStatusStarting:
		return 1
	case BookingStatusStarted:
		return 2
	case BookingStatusUnbooking:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo reports whether moving from s to next keeps status monotonic
func (s BookingStatus) CanAdvanceTo(next BookingStatus) bool {
	return next.rank() > s.rank()
}

// ============================================================================
// IDENTIFIERS
// ============================================================================

// OwnerID is the stable chat-platform identifier of the requesting user
type OwnerID string

// BookingID is the identifier assigned by the provisioning backend
type BookingID int64

// String returns the decimal form used in URLs and logs
func (id BookingID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// BookingKey addresses a record in the booking store. Placeholders are keyed
// by the owner's identity, backend-acknowledged bookings by their BookingID.
type BookingKey struct {
	Placeholder bool
	Value       string
}

// PlaceholderKey returns the temporary key used while a request is processed
func PlaceholderKey(owner OwnerID) BookingKey {
	return BookingKey{Placeholder: true, Value: string(owner)}
}

// BackendKey returns the key of a backend-acknowledged booking
func BackendKey(id BookingID) BookingKey {
	return BookingKey{Value: id.String()}
}

func (k BookingKey) String() string {
	if k.Placeholder {
		return "placeholder:" + k.Value
	}
	return "booking:" + k.Value
}

// ============================================================================
// BOOKING RECORD
// ============================================================================

// MessageHandle references the outstanding chat message through which the
// owner is kept informed about a booking.
type MessageHandle struct {
	AppID     string `json:"app_id,omitempty"`
	Token     string `json:"-"`
	MessageID string `json:"message_id,omitempty"`
}

// IsZero reports whether the handle points at nothing
func (h MessageHandle) IsZero() bool {
	return h.Token == "" && h.MessageID == ""
}

// Booking is a value snapshot of one booking record. It is never mutated in
// place; every transition goes through the booking store.
type Booking struct {
	OwnerID   OwnerID       `json:"owner_id"`
	BookingID *BookingID    `json:"booking_id,omitempty"`
	Region    string        `json:"region,omitempty"`
	Status    BookingStatus `json:"status"`
	Handle    MessageHandle `json:"handle"`
}

// NewPlaceholder builds the temporary record inserted before the backend call
func NewPlaceholder(owner OwnerID) Booking {
	return Booking{OwnerID: owner, Status: BookingStatusNone}
}

// NewPendingBooking builds the record stored once the backend acknowledged creation
func NewPendingBooking(owner OwnerID, id BookingID, region string, handle MessageHandle) Booking {
	return Booking{
		OwnerID:   owner,
		BookingID: &id,
		Region:    region,
		Status:    BookingStatusStarting,
		Handle:    handle,
	}
}

// IsPlaceholder reports whether the record is still waiting for a backend ID
func (b Booking) IsPlaceholder() bool {
	return b.BookingID == nil
}

// Key returns the store key the record lives under
func (b Booking) Key() BookingKey {
	if b.BookingID == nil {
		return PlaceholderKey(b.OwnerID)
	}
	return BackendKey(*b.BookingID)
}

// WithStatus returns a copy of the record carrying the new status
func (b Booking) WithStatus(status BookingStatus) Booking {
	b.Status = status
	return b
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	// ErrBookingNotFound is returned when a key has no record in the store
	ErrBookingNotFound = errors.New("booking not found")
	// ErrStatusConflict is returned when a conditional transition finds an unexpected status
	ErrStatusConflict = errors.New("booking status conflict")
	// ErrNoPlaceholder is returned when promoting an owner that holds no placeholder
	ErrNoPlaceholder = errors.New("no placeholder for owner")
)
