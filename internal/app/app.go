// Package app wires the funnel's components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/catalog"
	"github.com/imrishuroy/go-funnel-bot/internal/config"
	"github.com/imrishuroy/go-funnel-bot/internal/funnel"
	"github.com/imrishuroy/go-funnel-bot/internal/gate"
	"github.com/imrishuroy/go-funnel-bot/internal/handlers"
	"github.com/imrishuroy/go-funnel-bot/internal/logutil"
	"github.com/imrishuroy/go-funnel-bot/internal/payments"
	"github.com/imrishuroy/go-funnel-bot/internal/reminder"
	"github.com/imrishuroy/go-funnel-bot/internal/sessions"
	"github.com/imrishuroy/go-funnel-bot/internal/telegram"
	"github.com/imrishuroy/go-funnel-bot/internal/yookassa"
)

// App is the assembled bot.
type App struct {
	Controller *funnel.Controller
	Dispatcher *telegram.Dispatcher
	// Queue is set when reminders go through SQS; the worker uses it to defer early messages.
	Queue *reminder.QueueScheduler

	cfg     config.Config
	log     logr.Logger
	infra   *Infra
	timers  *reminder.TimerScheduler
	updates telegram.UpdateSource
}

// New connects to Telegram and the configured backends and wires every component.
func New(ctx context.Context, cfg config.Config, log logr.Logger) (*App, error) {
	bot, err := telegram.NewBot(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	inf, err := setupInfra(ctx, cfg, log)
	if err != nil {
		return nil, logutil.LogAndWrapErr(log, "setup infra", err)
	}
	a, err := build(cfg, log, bot, inf)
	if err != nil {
		_ = inf.Close()
		return nil, err
	}
	a.updates = bot
	return a, nil
}

func build(cfg config.Config, log logr.Logger, bot telegram.BotAPI, inf *Infra) (*App, error) {
	cat, err := catalog.Load(cfg.CatalogFile, cfg.DefaultProduct, catalog.Product{
		Title:     "📘 Гайд",
		Price:     49000,
		UnlockURL: cfg.UnlockURL,
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	tg := telegram.NewClient(bot)
	store := sessions.NewStore(inf.sessionRepository(cfg), cat)

	if !cfg.PaymentsConfigured() {
		log.Info("payment processor credentials missing, offers will use the fallback link")
	}
	orch := payments.NewOrchestrator(
		yookassa.NewClient(cfg.ShopID, cfg.SecretKey, cfg.APIURL),
		store,
		inf.paymentLedger(cfg),
		cat,
		payments.Options{Currency: cfg.Currency, ReturnURL: cfg.ReturnURL},
		log,
	)

	ctrl := funnel.New(funnel.Deps{
		Messenger: tg,
		Sessions:  store,
		Gate:      gate.New(tg, cfg.ChannelID, log),
		Payments:  orch,
		Catalog:   cat,
		Metrics:   inf.recorder(cfg, log),
	}, funnel.Options{
		FallbackURL:   cfg.FallbackURL,
		ReminderDelay: cfg.ReminderDelay,
		PollAttempts:  cfg.PollAttempts,
		PollInterval:  cfg.PollInterval,
	}, log)

	a := &App{
		Controller: ctrl,
		Dispatcher: telegram.NewDispatcher(tg, ctrl, log),
		Queue:      inf.queue(cfg),
		cfg:        cfg,
		log:        log,
		infra:      inf,
	}
	if a.Queue != nil {
		ctrl.SetReminders(a.Queue)
	} else {
		if !cfg.RunLocal {
			log.Info("WARNING: REMINDER_QUEUE_URL not set, reminders are in-process timers and are lost when the process is frozen or restarted")
		}
		a.timers = reminder.NewTimerScheduler(ctrl.Remind, log)
		ctrl.SetReminders(a.timers)
	}
	return a, nil
}

// Router returns the HTTP surface.
func (a *App) Router() *gin.Engine {
	return handlers.SetupRouter(handlers.HandlerConfig{
		Dispatcher:    a.Dispatcher,
		Notifier:      a.Controller,
		WebhookSecret: a.cfg.WebhookSecret,
		Logger:        a.log,
	})
}

// Poller returns a long-polling loop over the bot connection.
func (a *App) Poller() *telegram.Poller {
	return telegram.NewPoller(a.updates, a.Dispatcher)
}

// Close stops pending in-process reminders and releases backend connections.
func (a *App) Close() error {
	if a.timers != nil {
		a.timers.Stop()
	}
	return a.infra.Close()
}
