package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-funnel-bot/internal/payments"
	"github.com/imrishuroy/go-funnel-bot/internal/validation"
)

// RegisterPaymentRoutes registers the YooKassa notification endpoint. The body only names the
// payment; its status is always re-read from the processor.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.Logger.WithName("payment_webhook")

	r.POST("/webhooks/yookassa", func(c *gin.Context) {
		var n validation.PaymentNotification
		if err := validation.BindAndValidate(c, &n, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		err := cfg.Notifier.HandlePaymentNotification(c.Request.Context(), n.Object.ID)
		switch {
		case errors.Is(err, payments.ErrUnknownReference):
			// Retrying cannot resolve a reference we never issued.
			log.Info("notification for unknown payment", "reference", n.Object.ID, "event", n.Event)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		case err != nil:
			log.Error(err, "notification failed", "reference", n.Object.ID, "event", n.Event)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "notification_failed"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	})
}
