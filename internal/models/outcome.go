package models

// ============================================================================
// NOTICES
// ============================================================================

// NoticeKind identifies a user-visible message the coordinator or the
// reconciler asks the notification sink to deliver
type NoticeKind string

const (
	// Booking request flow
	NoticeBookingProcessing      NoticeKind = "booking_processing"
	NoticeRequestInProgress      NoticeKind = "request_in_progress"
	NoticeAlreadyBooked          NoticeKind = "already_booked"
	NoticeDirectMessagesDisabled NoticeKind = "direct_messages_disabled"
	NoticeCapacityReached        NoticeKind = "capacity_reached"
	NoticeBookingAccepted        NoticeKind = "booking_accepted"
	NoticeBackendDuplicate       NoticeKind = "backend_duplicate"
	NoticeRegionFull             NoticeKind = "region_full"
	NoticeServiceUnavailable     NoticeKind = "service_unavailable"
	NoticeInternalError          NoticeKind = "internal_error"
	NoticeTimedOut               NoticeKind = "timed_out"

	// Webhook driven
	NoticeServerReady NoticeKind = "server_ready"
	NoticeDetailsSent NoticeKind = "details_sent"
	NoticeServerEmpty NoticeKind = "server_empty"

	// Unbook flow
	NoticeUnbookProcessing NoticeKind = "unbook_processing"
	NoticeNothingBooked    NoticeKind = "nothing_booked"
	NoticeAlreadyClosing   NoticeKind = "already_closing"
	NoticeStillStarting    NoticeKind = "still_starting"
	NoticeUnbooked         NoticeKind = "unbooked"
	NoticeUnbookFailed     NoticeKind = "unbook_failed"
)

// Notice is the platform-neutral payload handed to the notification sink
type Notice struct {
	Kind        NoticeKind
	Owner       OwnerID
	StatusCode  int            // Backend status surfaced for diagnostics
	Region      string         // Region code
	RegionLabel string         // "Singapore (SGP)"
	Details     *ServerDetails // Only for NoticeServerReady
}

// ============================================================================
// OUTCOMES
// ============================================================================

// OutcomeKind is the terminal result of a booking or unbooking attempt
type OutcomeKind string

const (
	OutcomeStarted  OutcomeKind = "started"   // Started webhook observed
	OutcomeTimedOut OutcomeKind = "timed_out" // Deadline passed while starting
	OutcomeVanished OutcomeKind = "vanished"  // Record removed by the reconciler mid-wait
	OutcomeRejected OutcomeKind = "rejected"  // Refused before or by the backend
	OutcomeUnbooked OutcomeKind = "unbooked"  // Record removed by an unbook request
)

// Outcome reports how a coordinator flow ended. Rejections are values, not errors.
type Outcome struct {
	Kind       OutcomeKind
	Reason     NoticeKind
	StatusCode int
	BookingID  *BookingID
}

// Rejected builds an outcome for a refused request
func Rejected(reason NoticeKind, statusCode int) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, StatusCode: statusCode}
}
