package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matcha-bookable/bookable-bot/internal/models"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/matcha-bookable/bookable-bot/internal/utils"
	"github.com/sirupsen/logrus"
)

// Reconciler applies provisioning callbacks to the booking registry
type Reconciler interface {
	Reconcile(ctx context.Context, event models.WebhookEvent, meta services.WebhookMeta) services.ReconcileResult
}

// WebhookHandler handles callbacks from the provisioning backend
type WebhookHandler struct {
	reconciler Reconciler
	logger     *logrus.Logger
	startedAt  time.Time
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler Reconciler, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// HandleWebhook handles POST /webhook
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	meta := services.WebhookMeta{
		SenderIP:  utils.SenderIP(c),
		UserAgent: utils.UserAgent(c),
	}

	var event models.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.logger.WithFields(logrus.Fields{
			"ip":    meta.SenderIP,
			"error": err.Error(),
		}).Warn("Malformed webhook body")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid webhook body",
		})
		return
	}

	if err := event.Validate(); err != nil {
		h.logger.WithFields(logrus.Fields{
			"ip":    meta.SenderIP,
			"error": err.Error(),
		}).Warn("Webhook missing required fields")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "bookingID and status are required",
		})
		return
	}

	result := h.reconciler.Reconcile(c.Request.Context(), event, meta)

	// Anomalies are acknowledged too; the backend does not retry on them
	c.JSON(http.StatusOK, gin.H{
		"message": "Webhook received",
		"result":  result,
	})
}

// HealthCheck handles GET /health
func (h *WebhookHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().Unix(),
	})
}
