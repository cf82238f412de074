package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matcha-bookable/bookable-bot/internal/database"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingLister exposes the current bookings
type BookingLister interface {
	Snapshot() []models.Booking
	CountActive() int
}

// CapacityReporter exposes the capacity ledger
type CapacityReporter interface {
	Snapshot() services.CapacitySnapshot
}

// AvailabilityReporter exposes live region availability
type AvailabilityReporter interface {
	Availability(ctx context.Context, region string) ([]services.RegionAvailability, error)
	RefreshedAt() time.Time
}

// AuditHistory exposes the audit trail of an owner
type AuditHistory interface {
	History(ctx context.Context, owner models.OwnerID, limit int) ([]database.AuditEntry, error)
}

// AdminHandler serves read-only operator endpoints
type AdminHandler struct {
	bookings BookingLister
	capacity CapacityReporter
	regions  AvailabilityReporter
	audit    AuditHistory // nil when the audit trail is disabled
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	bookings BookingLister,
	capacity CapacityReporter,
	regions AvailabilityReporter,
	audit AuditHistory,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		bookings: bookings,
		capacity: capacity,
		regions:  regions,
		audit:    audit,
		logger:   logger,
	}
}

// bookingView is the JSON form of a booking
type bookingView struct {
	Key       string               `json:"key"`
	Owner     models.OwnerID       `json:"owner"`
	BookingID *models.BookingID    `json:"booking_id,omitempty"`
	Region    string               `json:"region,omitempty"`
	Status    models.BookingStatus `json:"status"`
}

// ListBookings handles GET /api/v1/admin/bookings
func (h *AdminHandler) ListBookings(c *gin.Context) {
	snapshot := h.bookings.Snapshot()
	views := make([]bookingView, 0, len(snapshot))
	for _, b := range snapshot {
		views = append(views, bookingView{
			Key:       b.Key().String(),
			Owner:     b.OwnerID,
			BookingID: b.BookingID,
			Region:    b.Region,
			Status:    b.Status,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": views,
		"total":    len(views),
	})
}

// GetCapacity handles GET /api/v1/admin/capacity
func (h *AdminHandler) GetCapacity(c *gin.Context) {
	snapshot := h.capacity.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"active":   snapshot.Active,
		"reserved": snapshot.Reserved,
		"ceiling":  snapshot.Ceiling,
		"records":  h.bookings.CountActive(),
	})
}

// GetAvailability handles GET /api/v1/admin/regions/availability?region=
func (h *AdminHandler) GetAvailability(c *gin.Context) {
	region := c.Query("region")

	availability, err := h.regions.Availability(c.Request.Context(), region)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch region availability")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_error",
			"message": "Failed to fetch availability from the provisioning backend",
		})
		return
	}

	response := gin.H{
		"regions": availability,
		"total":   len(availability),
	}
	if refreshed := h.regions.RefreshedAt(); !refreshed.IsZero() {
		response["catalog_refreshed_at"] = refreshed.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, response)
}

// GetAuditHistory handles GET /api/v1/admin/audit/:owner?limit=
func (h *AdminHandler) GetAuditHistory(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "audit_disabled",
			"message": "Audit trail is not configured",
		})
		return
	}

	owner := models.OwnerID(c.Param("owner"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be a number",
			})
			return
		}
		limit = parsed
	}

	entries, err := h.audit.History(c.Request.Context(), owner, limit)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"owner": owner,
			"error": err.Error(),
		}).Error("Failed to load audit history")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load audit history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":   owner,
		"entries": entries,
		"total":   len(entries),
	})
}
