package handlers

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
)

// UpdateDispatcher hands a Telegram update to the funnel.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, u tgbotapi.Update) bool
}

// PaymentNotifier settles a payment reported by the processor.
type PaymentNotifier interface {
	HandlePaymentNotification(ctx context.Context, ref string) error
}

// HandlerConfig groups dependencies for the HTTP routes.
type HandlerConfig struct {
	Dispatcher    UpdateDispatcher
	Notifier      PaymentNotifier
	WebhookSecret string
	Logger        logr.Logger
}

// SetupRouter builds the gin engine with every route registered.
func SetupRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterTelegramRoutes(r, cfg)
	RegisterPaymentRoutes(r, cfg)

	return r
}
