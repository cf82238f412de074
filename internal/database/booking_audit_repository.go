package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// AuditEntry is one row of the booking audit trail
type AuditEntry struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	OwnerID    string         `db:"owner_id" json:"owner_id"`
	BookingID  *int64         `db:"booking_id" json:"booking_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	Region     *string        `db:"region" json:"region,omitempty"`
	StatusCode *int           `db:"status_code" json:"status_code,omitempty"`
	Details    types.JSONText `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// BookingAuditRepository writes and reads booking_audit_logs
type BookingAuditRepository struct {
	db DB
}

// NewBookingAuditRepository creates a new audit repository
func NewBookingAuditRepository(db DB) *BookingAuditRepository {
	return &BookingAuditRepository{db: db}
}

// Insert appends an entry to the audit trail
func (r *BookingAuditRepository) Insert(ctx context.Context, entry AuditEntry) error {
	query := `
		INSERT INTO booking_audit_logs (id, owner_id, booking_id, action, region, status_code, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if len(entry.Details) == 0 {
		entry.Details = types.JSONText("{}")
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.BookingID,
		entry.Action,
		entry.Region,
		entry.StatusCode,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByOwner returns the most recent entries of an owner, newest first
func (r *BookingAuditRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]AuditEntry, error) {
	query := `
		SELECT id, owner_id, booking_id, action, region, status_code, details, created_at
		FROM booking_audit_logs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	entries := []AuditEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, ownerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan purges entries created before cutoff
func (r *BookingAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM booking_audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
