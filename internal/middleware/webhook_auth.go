package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matcha-bookable/bookable-bot/internal/utils"
	"github.com/sirupsen/logrus"
)

// WebhookBearer checks the bearer token the provisioning backend echoes back
// on callbacks. An empty secret disables the check.
func WebhookBearer(secret string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			logger.WithFields(logrus.Fields{
				"ip":         utils.SenderIP(c),
				"user_agent": utils.UserAgent(c),
			}).Warn("Rejected webhook with invalid bearer")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid webhook bearer",
				"code":    "INVALID_WEBHOOK_BEARER",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
