package services

import (
	"context"
	"errors"

	"github.com/matcha-bookable/bookable-bot/internal/database"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// ReconcileResult describes what an inbound webhook event did
type ReconcileResult string

const (
	ReconcileStarted        ReconcileResult = "started"         // Booking moved to started
	ReconcileEmptied        ReconcileResult = "emptied"         // Booking removed, capacity released
	ReconcileUnknownBooking ReconcileResult = "unknown_booking" // No local record for the bookingID
	ReconcileNotStarting    ReconcileResult = "not_starting"    // "started" for a record past starting
)

// IsAnomaly reports whether the event was discarded
func (r ReconcileResult) IsAnomaly() bool {
	return r == ReconcileUnknownBooking || r == ReconcileNotStarting
}

// WebhookMeta carries information about the webhook sender
type WebhookMeta struct {
	SenderIP  string
	UserAgent string
}

// WebhookReconciler applies provisioning backend events to the booking store.
// Each transition is a single conditional store operation, which makes
// redelivered events harmless.
type WebhookReconciler struct {
	store    *database.BookingStore
	ledger   *CapacityLedger
	notifier Notifier
	catalog  *RegionCatalog
	auditor  Auditor
	logger   *logrus.Logger
}

// NewWebhookReconciler creates a new reconciler
func NewWebhookReconciler(
	store *database.BookingStore,
	ledger *CapacityLedger,
	notifier Notifier,
	catalog *RegionCatalog,
	auditor Auditor,
	logger *logrus.Logger,
) *WebhookReconciler {
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &WebhookReconciler{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		catalog:  catalog,
		auditor:  auditor,
		logger:   logger,
	}
}

// Reconcile applies one event. Anomalies are logged and reported through
// the result; they are never errors.
func (r *WebhookReconciler) Reconcile(ctx context.Context, event models.WebhookEvent, meta WebhookMeta) ReconcileResult {
	id := event.BookingID
	log := r.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"status":     event.Status,
		"sender_ip":  meta.SenderIP,
	})

	booking, ok := r.store.Get(models.BackendKey(id))
	if !ok {
		return r.anomaly(ctx, log, event, meta, models.Booking{}, ReconcileUnknownBooking)
	}
	log = log.WithField("owner", booking.OwnerID)

	if event.IsStarted() {
		return r.started(ctx, log, event, meta, booking)
	}
	return r.emptied(ctx, log, event, meta, booking)
}

// started marks the booking started, then hands the connection details to
// the owner. The status flip comes first so a concurrent timeout and a
// redelivered event both lose against it.
func (r *WebhookReconciler) started(ctx context.Context, log *logrus.Entry, event models.WebhookEvent, meta WebhookMeta, booking models.Booking) ReconcileResult {
	if _, err := r.store.CompareAndSetStatus(booking.Key(), models.BookingStatusStarting, models.BookingStatusStarted); err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			return r.anomaly(ctx, log, event, meta, booking, ReconcileUnknownBooking)
		}
		return r.anomaly(ctx, log, event, meta, booking, ReconcileNotStarting)
	}

	details := event.ServerDetails()
	label := r.label(booking.Region)

	notice := models.Notice{
		Kind:        models.NoticeServerReady,
		Owner:       booking.OwnerID,
		Region:      booking.Region,
		RegionLabel: label,
		Details:     &details,
	}
	if err := r.notifier.SendDirect(ctx, booking.OwnerID, notice); err != nil {
		log.WithError(err).Error("Failed to deliver server details to owner")
	}

	confirm := models.Notice{
		Kind:        models.NoticeDetailsSent,
		Owner:       booking.OwnerID,
		Region:      booking.Region,
		RegionLabel: label,
	}
	if err := r.notifier.UpdateMessage(ctx, booking.Handle, confirm); err != nil {
		log.WithError(err).Warn("Failed to update owner message")
	}

	log.WithField("instance", details.Instance).Info("Server started")
	r.auditor.Record(ctx, AuditEvent{
		Owner:     booking.OwnerID,
		BookingID: booking.BookingID,
		Action:    AuditServerStarted,
		Region:    booking.Region,
		UserAgent: meta.UserAgent,
		Details:   map[string]interface{}{"instance": details.Instance, "sender_ip": meta.SenderIP},
	})
	return ReconcileStarted
}

// emptied removes the booking whatever its status, including "starting".
// Only the caller that actually removed the record releases capacity.
func (r *WebhookReconciler) emptied(ctx context.Context, log *logrus.Entry, event models.WebhookEvent, meta WebhookMeta, booking models.Booking) ReconcileResult {
	removed, ok := r.store.RemoveIf(booking.Key(), nil)
	if !ok {
		return r.anomaly(ctx, log, event, meta, booking, ReconcileUnknownBooking)
	}
	r.ledger.Release()

	if removed.Status == models.BookingStatusStarting {
		log.Warn("Booking emptied before it was reported started")
	}

	notice := models.Notice{
		Kind:        models.NoticeServerEmpty,
		Owner:       removed.OwnerID,
		Region:      removed.Region,
		RegionLabel: r.label(removed.Region),
	}
	if err := r.notifier.SendToChannel(ctx, notice); err != nil {
		log.WithError(err).Warn("Failed to announce emptied server")
	}

	log.Info("Server emptied, booking removed")
	r.auditor.Record(ctx, AuditEvent{
		Owner:     removed.OwnerID,
		BookingID: removed.BookingID,
		Action:    AuditServerEmptied,
		Region:    removed.Region,
		UserAgent: meta.UserAgent,
		Details:   map[string]interface{}{"event_status": event.Status, "previous_status": removed.Status, "sender_ip": meta.SenderIP},
	})
	return ReconcileEmptied
}

func (r *WebhookReconciler) anomaly(ctx context.Context, log *logrus.Entry, event models.WebhookEvent, meta WebhookMeta, booking models.Booking, result ReconcileResult) ReconcileResult {
	log.WithFields(logrus.Fields{
		"anomaly":        result,
		"current_status": booking.Status,
	}).Warn("Webhook event discarded")

	id := event.BookingID
	r.auditor.Record(ctx, AuditEvent{
		Owner:     booking.OwnerID,
		BookingID: &id,
		Action:    AuditWebhookAnomaly,
		Region:    booking.Region,
		UserAgent: meta.UserAgent,
		Details:   map[string]interface{}{"anomaly": result, "event_status": event.Status, "sender_ip": meta.SenderIP},
	})
	return result
}

func (r *WebhookReconciler) label(region string) string {
	if r.catalog == nil {
		return region
	}
	return r.catalog.Label(region)
}
