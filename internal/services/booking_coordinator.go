package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/matcha-bookable/bookable-bot/internal/database"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
)

// Provisioner creates and ends bookings on the provisioning backend
type Provisioner interface {
	CreateBooking(ctx context.Context, discordID, region, provider string) (provisioning.CreateBookingResult, error)
	EndBooking(ctx context.Context, bookingID int64) (int, error)
}

// BookingCoordinatorConfig holds configuration for the coordinator
type BookingCoordinatorConfig struct {
	Provider     string        // Provider requested from the backend
	PollInterval time.Duration // Fallback re-check while awaiting start (default 10s)
	StartTimeout time.Duration // Await-start deadline (default 10 min)
}

// DefaultCoordinatorConfig returns default configuration
func DefaultCoordinatorConfig() BookingCoordinatorConfig {
	return BookingCoordinatorConfig{
		PollInterval: 10 * time.Second,
		StartTimeout: 10 * time.Minute,
	}
}

// BookRequest is a request to book a server for an owner
type BookRequest struct {
	Owner  models.OwnerID
	Region string
	Handle models.MessageHandle // "being processed" message to keep updated
}

// UnbookRequest is a request to close the owner's server
type UnbookRequest struct {
	Owner  models.OwnerID
	Handle models.MessageHandle
}

// BookingCoordinator drives booking and unbooking flows against the shared
// booking store and capacity ledger
type BookingCoordinator struct {
	store       *database.BookingStore
	ledger      *CapacityLedger
	provisioner Provisioner
	notifier    Notifier
	catalog     *RegionCatalog
	auditor     Auditor
	config      BookingCoordinatorConfig
	logger      *logrus.Logger
}

// NewBookingCoordinator creates a new coordinator
func NewBookingCoordinator(
	store *database.BookingStore,
	ledger *CapacityLedger,
	provisioner Provisioner,
	notifier Notifier,
	catalog *RegionCatalog,
	auditor Auditor,
	config BookingCoordinatorConfig,
	logger *logrus.Logger,
) *BookingCoordinator {
	defaults := DefaultCoordinatorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = defaults.StartTimeout
	}
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &BookingCoordinator{
		store:       store,
		ledger:      ledger,
		provisioner: provisioner,
		notifier:    notifier,
		catalog:     catalog,
		auditor:     auditor,
		config:      config,
		logger:      logger,
	}
}

// ============================================================================
// BOOK
// ============================================================================

// Book runs a booking request to its terminal outcome. It blocks until the
// server started, the request was rejected, or the start deadline passed.
func (c *BookingCoordinator) Book(ctx context.Context, req BookRequest) models.Outcome {
	log := c.logger.WithFields(logrus.Fields{
		"attempt_id": uuid.New().String(),
		"owner":      req.Owner,
		"region":     req.Region,
	})
	log.Info("Booking requested")
	c.auditor.Record(ctx, AuditEvent{Owner: req.Owner, Action: AuditBookingRequested, Region: req.Region})

	// 1. Insert the placeholder; this is where duplicate requests serialize
	switch c.store.ReservePlaceholder(req.Owner) {
	case database.PlaceholderInProgress:
		return c.reject(ctx, log, req, models.NoticeRequestInProgress, 0)
	case database.PlaceholderBooked:
		return c.reject(ctx, log, req, models.NoticeAlreadyBooked, 0)
	}

	// 2. Take a capacity slot
	if !c.ledger.Reserve() {
		c.store.Remove(models.PlaceholderKey(req.Owner))
		return c.reject(ctx, log, req, models.NoticeCapacityReached, 0)
	}

	// 3. The server details go out by direct message, so make sure they can
	if err := c.notifier.ProbeDirect(ctx, req.Owner); err != nil {
		if errors.Is(err, ErrDirectMessagesForbidden) {
			c.abandon(req.Owner)
			return c.reject(ctx, log, req, models.NoticeDirectMessagesDisabled, 0)
		}
		log.WithError(err).Warn("Direct message probe failed, assuming direct messages are enabled")
	}

	// 4. Ask the backend for a server
	result, err := c.provisioner.CreateBooking(ctx, string(req.Owner), req.Region, c.config.Provider)
	if err != nil {
		log.WithError(err).WithField("status", result.StatusCode).Error("Create booking failed")
	}
	if err != nil || result.StatusCode != provisioning.StatusOK {
		c.abandon(req.Owner)
		reason := reasonForCreateStatus(result.StatusCode)
		if result.StatusCode == provisioning.StatusOK {
			// Acknowledged without a usable bookingID
			reason = models.NoticeInternalError
		}
		return c.reject(ctx, log, req, reason, result.StatusCode)
	}

	// 5. Swap the placeholder for the backend-keyed record. The slot is
	// committed first so a webhook racing the swap releases a counted slot.
	id := models.BookingID(result.BookingID)
	booking := models.NewPendingBooking(req.Owner, id, req.Region, req.Handle)
	c.ledger.Commit()
	if err := c.store.Promote(booking); err != nil {
		c.ledger.Release()
		log.WithError(err).WithField("booking_id", id).Error("Placeholder vanished before promotion, ending backend booking")
		if _, endErr := c.provisioner.EndBooking(ctx, int64(id)); endErr != nil {
			log.WithError(endErr).Warn("Failed to end orphaned booking")
		}
		return c.reject(ctx, log, req, models.NoticeInternalError, result.StatusCode)
	}

	log = log.WithField("booking_id", id)
	log.Info("Booking accepted by backend, awaiting start")
	c.auditor.Record(ctx, AuditEvent{Owner: req.Owner, BookingID: &id, Action: AuditBookingCreated, Region: req.Region, StatusCode: result.StatusCode})
	c.update(ctx, log, req.Handle, models.Notice{Kind: models.NoticeBookingAccepted, Owner: req.Owner, Region: req.Region})

	// 6. Wait for the started webhook
	return c.awaitStart(ctx, log, booking)
}

// awaitStart waits until the record leaves "starting", disappears, or the
// deadline passes. The wait wakes on every store mutation; the poll ticker
// is only a fallback. No lock is held while waiting.
func (c *BookingCoordinator) awaitStart(ctx context.Context, log *logrus.Entry, booking models.Booking) models.Outcome {
	deadline := time.NewTimer(c.config.StartTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		// Take the signal before reading so no mutation slips in between
		changed := c.store.Changed()
		if outcome, done := c.checkStart(log, booking); done {
			return outcome
		}

		select {
		case <-changed:
		case <-ticker.C:
		case <-deadline.C:
			return c.expire(ctx, log, booking)
		case <-ctx.Done():
			log.Warn("Await start cancelled")
			return c.expire(context.WithoutCancel(ctx), log, booking)
		}
	}
}

func (c *BookingCoordinator) checkStart(log *logrus.Entry, booking models.Booking) (models.Outcome, bool) {
	current, ok := c.store.Get(booking.Key())
	if !ok {
		// Removed by the reconciler ("emptied" before "started"); it owns the notice
		log.Info("Booking vanished while awaiting start")
		return models.Outcome{Kind: models.OutcomeVanished, BookingID: booking.BookingID}, true
	}
	if current.Status != models.BookingStatusStarting {
		log.Info("Booking started")
		return models.Outcome{Kind: models.OutcomeStarted, BookingID: booking.BookingID}, true
	}
	return models.Outcome{}, false
}

// expire removes a booking that never started. Only a record still in
// "starting" is removed, and only the remover releases capacity.
func (c *BookingCoordinator) expire(ctx context.Context, log *logrus.Entry, booking models.Booking) models.Outcome {
	_, removed := c.store.RemoveIf(booking.Key(), func(b models.Booking) bool {
		return b.Status == models.BookingStatusStarting
	})
	if !removed {
		// Lost the race against the reconciler
		if outcome, done := c.checkStart(log, booking); done {
			return outcome
		}
		return models.Outcome{Kind: models.OutcomeVanished, BookingID: booking.BookingID}
	}

	c.ledger.Release()
	log.Warn("Booking timed out while starting")
	c.auditor.Record(ctx, AuditEvent{Owner: booking.OwnerID, BookingID: booking.BookingID, Action: AuditBookingTimedOut, Region: booking.Region})
	c.update(ctx, log, booking.Handle, models.Notice{Kind: models.NoticeTimedOut, Owner: booking.OwnerID, Region: booking.Region})
	return models.Outcome{Kind: models.OutcomeTimedOut, Reason: models.NoticeTimedOut, BookingID: booking.BookingID}
}

// abandon drops the owner's placeholder and the capacity reservation
func (c *BookingCoordinator) abandon(owner models.OwnerID) {
	c.store.Remove(models.PlaceholderKey(owner))
	c.ledger.Cancel()
}

func (c *BookingCoordinator) reject(ctx context.Context, log *logrus.Entry, req BookRequest, reason models.NoticeKind, statusCode int) models.Outcome {
	log.WithFields(logrus.Fields{
		"reason": reason,
		"status": statusCode,
	}).Info("Booking rejected")
	c.auditor.Record(ctx, AuditEvent{
		Owner:      req.Owner,
		Action:     AuditBookingRejected,
		Region:     req.Region,
		StatusCode: statusCode,
		Details:    map[string]interface{}{"reason": reason},
	})
	c.update(ctx, log, req.Handle, models.Notice{Kind: reason, Owner: req.Owner, Region: req.Region, StatusCode: statusCode})
	return models.Rejected(reason, statusCode)
}

func (c *BookingCoordinator) update(ctx context.Context, log *logrus.Entry, handle models.MessageHandle, notice models.Notice) {
	if notice.Region != "" && notice.RegionLabel == "" && c.catalog != nil {
		notice.RegionLabel = c.catalog.Label(notice.Region)
	}
	if err := c.notifier.UpdateMessage(ctx, handle, notice); err != nil {
		log.WithError(err).WithField("notice", notice.Kind).Warn("Failed to update owner message")
	}
}

// reasonForCreateStatus maps a non-200 createbooking status to the notice shown to the owner
func reasonForCreateStatus(status int) models.NoticeKind {
	switch status {
	case provisioning.StatusDuplicate:
		return models.NoticeBackendDuplicate
	case provisioning.StatusRegionFull:
		return models.NoticeRegionFull
	case provisioning.StatusUnavailable:
		return models.NoticeServiceUnavailable
	default:
		return models.NoticeInternalError
	}
}

// ============================================================================
// UNBOOK
// ============================================================================

// Unbook closes the owner's started server
func (c *BookingCoordinator) Unbook(ctx context.Context, req UnbookRequest) models.Outcome {
	log := c.logger.WithFields(logrus.Fields{
		"attempt_id": uuid.New().String(),
		"owner":      req.Owner,
	})

	// 1. Look up the owner's record
	booking, ok := c.store.FindByOwner(req.Owner)
	if !ok {
		return c.refuseUnbook(ctx, log, req, models.NoticeNothingBooked)
	}

	// 2. Only a started server can be closed
	switch {
	case booking.IsPlaceholder(), booking.Status == models.BookingStatusStarting:
		return c.refuseUnbook(ctx, log, req, models.NoticeStillStarting)
	case booking.Status == models.BookingStatusUnbooking:
		return c.refuseUnbook(ctx, log, req, models.NoticeAlreadyClosing)
	}

	key := booking.Key()
	if _, err := c.store.CompareAndSetStatus(key, models.BookingStatusStarted, models.BookingStatusUnbooking); err != nil {
		// Another unbook or an "emptied" webhook got there first
		if errors.Is(err, models.ErrBookingNotFound) {
			return c.refuseUnbook(ctx, log, req, models.NoticeNothingBooked)
		}
		return c.refuseUnbook(ctx, log, req, models.NoticeAlreadyClosing)
	}

	id := *booking.BookingID
	log = log.WithField("booking_id", id)

	// 3. End the backend booking
	status, err := c.provisioner.EndBooking(ctx, int64(id))
	if err != nil {
		log.WithError(err).Error("End booking failed")
	}

	// 4. The local record goes away whatever the backend answered
	if _, removed := c.store.RemoveIf(key, nil); removed {
		c.ledger.Release()
	}

	notice := models.Notice{Kind: models.NoticeUnbooked, Owner: req.Owner, Region: booking.Region, StatusCode: status}
	action := AuditBookingUnbooked
	if status != provisioning.StatusOK {
		notice.Kind = models.NoticeUnbookFailed
		action = AuditUnbookFailed
		log.WithField("status", status).Warn("Backend did not confirm unbook, record removed anyway")
	} else {
		log.Info("Booking unbooked")
	}

	c.auditor.Record(ctx, AuditEvent{Owner: req.Owner, BookingID: &id, Action: action, Region: booking.Region, StatusCode: status})
	c.update(ctx, log, req.Handle, notice)
	return models.Outcome{Kind: models.OutcomeUnbooked, Reason: notice.Kind, StatusCode: status, BookingID: &id}
}

func (c *BookingCoordinator) refuseUnbook(ctx context.Context, log *logrus.Entry, req UnbookRequest, reason models.NoticeKind) models.Outcome {
	log.WithField("reason", reason).Info("Unbook refused")
	c.update(ctx, log, req.Handle, models.Notice{Kind: reason, Owner: req.Owner})
	return models.Rejected(reason, 0)
}
