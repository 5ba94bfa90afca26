package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/funnel"
)

// Translate converts an update into a funnel event. callbackID is set for button presses.
// ok is false for updates the funnel does not handle.
func Translate(u tgbotapi.Update) (ev funnel.Event, callbackID string, ok bool) {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		cq := u.CallbackQuery
		ev = funnel.Event{UserID: cq.From.ID}
		if cq.Message != nil {
			ev.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				ev.ChatID = cq.Message.Chat.ID
			}
		}
		ev.Action, ev.Payload = funnel.ParseCallback(cq.Data)
		return ev, cq.ID, true

	case u.Message != nil && u.Message.From != nil && u.Message.Text != "":
		m := u.Message
		ev = funnel.Event{UserID: m.From.ID}
		if m.Chat != nil {
			ev.ChatID = m.Chat.ID
		}
		ev.Action, ev.Payload = funnel.ParseText(m.Text)
		return ev, "", true
	}
	return funnel.Event{}, "", false
}

// EventHandler consumes funnel events.
type EventHandler interface {
	Handle(ctx context.Context, ev funnel.Event)
}

// Dispatcher translates updates and hands them to the funnel.
type Dispatcher struct {
	client  *Client
	handler EventHandler
	log     logr.Logger
}

func NewDispatcher(client *Client, handler EventHandler, log logr.Logger) *Dispatcher {
	return &Dispatcher{client: client, handler: handler, log: log.WithName("telegram")}
}

// Dispatch handles one update synchronously and reports whether it was relevant.
func (d *Dispatcher) Dispatch(ctx context.Context, u tgbotapi.Update) bool {
	ev, callbackID, ok := Translate(u)
	if !ok {
		d.log.V(1).Info("ignoring update", "update_id", u.UpdateID)
		return false
	}
	if callbackID != "" {
		if err := d.client.AnswerCallback(ctx, callbackID); err != nil {
			d.log.V(1).Info("answer callback failed", "error", err.Error())
		}
	}
	d.handler.Handle(ctx, ev)
	return true
}

// UpdateSource streams updates via long polling.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller runs the long-polling loop, one goroutine per update.
type Poller struct {
	source     UpdateSource
	dispatcher *Dispatcher
	timeout    int
}

func NewPoller(source UpdateSource, dispatcher *Dispatcher) *Poller {
	return &Poller{source: source, dispatcher: dispatcher, timeout: 60}
}

// Run polls until ctx is done, then waits for in-flight updates.
func (p *Poller) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	updates := p.source.GetUpdatesChan(cfg)
	// In-flight updates finish after shutdown starts.
	handleCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			p.source.StopReceivingUpdates()
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.dispatcher.Dispatch(handleCtx, u)
			}()
		}
	}
}
