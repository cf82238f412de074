package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/matcha-bookable/bookable-bot/internal/database"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/utils"
	"github.com/sirupsen/logrus"
)

// AuditAction names a lifecycle event written to the audit trail
type AuditAction string

const (
	AuditBookingRequested AuditAction = "booking_requested"
	AuditBookingRejected  AuditAction = "booking_rejected"
	AuditBookingCreated   AuditAction = "booking_created"
	AuditBookingTimedOut  AuditAction = "booking_timed_out"
	AuditServerStarted    AuditAction = "server_started"
	AuditServerEmptied    AuditAction = "server_emptied"
	AuditBookingUnbooked  AuditAction = "booking_unbooked"
	AuditUnbookFailed     AuditAction = "unbook_failed"
	AuditWebhookAnomaly   AuditAction = "webhook_anomaly"
)

// AuditEvent represents a lifecycle event to be recorded
type AuditEvent struct {
	Owner      models.OwnerID
	BookingID  *models.BookingID
	Action     AuditAction
	Region     string
	StatusCode int
	UserAgent  string // Only set for events triggered by a webhook
	Details    map[string]interface{}
}

// Auditor records lifecycle events. Implementations must never fail the
// caller: the booking flow does not depend on the audit trail.
type Auditor interface {
	Record(ctx context.Context, event AuditEvent)
}

// NopAuditor discards events. Used when no database is configured.
type NopAuditor struct{}

// Record implements Auditor
func (NopAuditor) Record(ctx context.Context, event AuditEvent) {}

// AuditService writes lifecycle events to booking_audit_logs. The trail is a
// write-only history; booking state is never rebuilt from it.
type AuditService struct {
	repo   *database.BookingAuditRepository
	logger *logrus.Logger
	now    func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(repo *database.BookingAuditRepository, logger *logrus.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Record implements Auditor. Failures are logged and swallowed.
func (s *AuditService) Record(ctx context.Context, event AuditEvent) {
	if err := s.insert(ctx, event); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": event.Action,
			"owner":  event.Owner,
			"error":  err.Error(),
		}).Warn("Failed to record audit event")
	}
}

func (s *AuditService) insert(ctx context.Context, event AuditEvent) error {
	details := event.Details
	if event.UserAgent != "" {
		if details == nil {
			details = make(map[string]interface{})
		}
		details["client_info"] = utils.ParseClientAgent(event.UserAgent)
	}

	entry := database.AuditEntry{
		ID:        uuid.New(),
		OwnerID:   string(event.Owner),
		Action:    string(event.Action),
		CreatedAt: s.now().UTC(),
	}
	if event.BookingID != nil {
		id := int64(*event.BookingID)
		entry.BookingID = &id
	}
	if event.Region != "" {
		region := event.Region
		entry.Region = &region
	}
	if event.StatusCode != 0 {
		code := event.StatusCode
		entry.StatusCode = &code
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		entry.Details = types.JSONText(raw)
	}

	return s.repo.Insert(ctx, entry)
}

// History returns the most recent events of an owner, newest first
func (s *AuditService) History(ctx context.Context, owner models.OwnerID, limit int) ([]database.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByOwner(ctx, string(owner), limit)
}

// Purge removes events older than the retention window
func (s *AuditService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
}
