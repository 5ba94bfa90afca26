package handlers

import (
	"crypto/subtle"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
)

// SecretTokenHeader carries the secret configured with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// RegisterTelegramRoutes registers the Telegram webhook endpoint.
func RegisterTelegramRoutes(r *gin.Engine, cfg HandlerConfig) {
	log := cfg.Logger.WithName("telegram_webhook")

	r.POST("/telegram/webhook", func(c *gin.Context) {
		if cfg.WebhookSecret != "" {
			got := c.GetHeader(SecretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.WebhookSecret)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_secret_token"})
				return
			}
		}

		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_update", "msg": err.Error()})
			return
		}

		// Handled synchronously: a Lambda is frozen once the response is written.
		handled := cfg.Dispatcher.Dispatch(c.Request.Context(), update)
		log.V(1).Info("update processed", "update_id", update.UpdateID, "handled", handled)

		// Telegram redelivers on anything but 2xx, so every decodable update is acknowledged.
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}
