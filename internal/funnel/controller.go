// Package funnel drives the conversation: welcome, subscription gate, payment offer,
// payment confirmation and unlock.
package funnel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/catalog"
	"github.com/imrishuroy/go-funnel-bot/internal/logutil"
	"github.com/imrishuroy/go-funnel-bot/internal/metrics"
	"github.com/imrishuroy/go-funnel-bot/internal/payments"
	"github.com/imrishuroy/go-funnel-bot/internal/reminder"
	"github.com/imrishuroy/go-funnel-bot/internal/sessions"
)

// SessionStore is the session service the controller reads and mutates.
type SessionStore interface {
	GetOrCreate(ctx context.Context, userID int64) (sessions.Session, error)
	SetChat(ctx context.Context, userID, chatID int64) (sessions.Session, error)
	SetProduct(ctx context.Context, userID int64, key string) (sessions.Session, error)
	SetState(ctx context.Context, userID int64, st sessions.State) error
	SetReminderDue(ctx context.Context, userID int64, dueAt time.Time) error
	MarkPurchased(ctx context.Context, userID int64, productKey string) (bool, error)
}

// Gate checks channel membership.
type Gate interface {
	IsSubscribed(ctx context.Context, userID int64) bool
	Channel() string
}

// Payments creates and confirms payment intents.
type Payments interface {
	CreateIntent(ctx context.Context, userID int64, productKey string) (string, error)
	PollUntilSettled(ctx context.Context, userID int64, maxAttempts int, interval time.Duration) (string, bool)
	Settle(ctx context.Context, ref string) (payments.Settlement, error)
}

// Catalog resolves products.
type Catalog interface {
	Resolve(key string) catalog.Product
	Products() []catalog.Product
}

// Deps are the controller's collaborators.
type Deps struct {
	Messenger Messenger
	Sessions  SessionStore
	Gate      Gate
	Payments  Payments
	Catalog   Catalog
	Reminders reminder.Scheduler
	Metrics   metrics.Recorder
}

// Options tune the purchase flow.
type Options struct {
	FallbackURL   string
	ReminderDelay time.Duration
	PollAttempts  int
	PollInterval  time.Duration
}

// Controller reacts to inbound events. Each event produces exactly one outbound message.
// Events for the same user are admitted one at a time; a second event while one is in
// flight is answered with a "busy" message.
type Controller struct {
	deps    Deps
	opts    Options
	log     logr.Logger
	nowFunc func() time.Time

	mu       sync.Mutex
	inflight map[int64]Action
}

func New(deps Deps, opts Options, log logr.Logger) *Controller {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Controller{
		deps:     deps,
		opts:     opts,
		log:      log.WithName("funnel"),
		nowFunc:  time.Now,
		inflight: make(map[int64]Action),
	}
}

// SetReminders replaces the reminder scheduler. Schedulers that fire back into the
// controller are constructed after it.
func (c *Controller) SetReminders(s reminder.Scheduler) { c.deps.Reminders = s }

func (c *Controller) acquire(userID int64, a Action) (Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pending, busy := c.inflight[userID]; busy {
		return pending, false
	}
	c.inflight[userID] = a
	return "", true
}

func (c *Controller) release(userID int64) {
	c.mu.Lock()
	delete(c.inflight, userID)
	c.mu.Unlock()
}

// Handle processes one inbound event.
func (c *Controller) Handle(ctx context.Context, ev Event) {
	if ev.ChatID == 0 {
		ev.ChatID = ev.UserID
	}
	log := c.log.WithValues("user_id", ev.UserID, "action", ev.Action)

	pending, ok := c.acquire(ev.UserID, ev.Action)
	if !ok {
		log.V(1).Info("user busy", "pending", pending)
		c.respond(ctx, ev, busyMessage(pending))
		return
	}
	defer c.release(ev.UserID)

	msg, err := c.dispatch(ctx, ev)
	if err != nil {
		log.Error(err, "event failed")
		msg = failureMessage()
	}
	c.respond(ctx, ev, msg)
}

func (c *Controller) dispatch(ctx context.Context, ev Event) (Message, error) {
	switch ev.Action {
	case ActionBegin:
		return c.begin(ctx, ev)
	case ActionInterested:
		return c.interested(ctx, ev)
	case ActionCheckSubscription:
		return c.checkSubscription(ctx, ev)
	case ActionMenu:
		return menuMessage(c.deps.Catalog.Products()), nil
	case ActionSelectProduct:
		return c.selectProduct(ctx, ev)
	case ActionPaid:
		return c.paid(ctx, ev)
	case ActionRecover:
		return c.recoverAccess(ctx, ev)
	default:
		return hintMessage(), nil
	}
}

// begin selects the product named by the deep-link payload. A purchaser keeps the product
// they paid for.
func (c *Controller) begin(ctx context.Context, ev Event) (Message, error) {
	sess, err := c.deps.Sessions.SetChat(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		return Message{}, err
	}
	if sess.Purchased {
		product := c.unlockedProduct(sess)
		c.deps.Metrics.Incr(ctx, metrics.Start, product.Key)
		return welcomeMessage(product, true), nil
	}

	if sess, err = c.deps.Sessions.SetProduct(ctx, ev.UserID, ev.Payload); err != nil {
		return Message{}, err
	}
	if err := c.deps.Sessions.SetState(ctx, ev.UserID, sessions.StateAwaitingInterest); err != nil {
		return Message{}, err
	}
	c.deps.Metrics.Incr(ctx, metrics.Start, sess.ProductKey)
	return welcomeMessage(c.deps.Catalog.Resolve(sess.ProductKey), false), nil
}

func (c *Controller) interested(ctx context.Context, ev Event) (Message, error) {
	sess, err := c.deps.Sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return Message{}, err
	}
	if !sess.Purchased {
		if err := c.deps.Sessions.SetState(ctx, ev.UserID, sessions.StateAwaitingSubscription); err != nil {
			return Message{}, err
		}
	}
	c.deps.Metrics.Incr(ctx, metrics.Interested, sess.ProductKey)
	return subscribeMessage(c.deps.Gate.Channel(), false), nil
}

func (c *Controller) selectProduct(ctx context.Context, ev Event) (Message, error) {
	sess, err := c.deps.Sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return Message{}, err
	}
	if !sess.Purchased {
		if _, err := c.deps.Sessions.SetProduct(ctx, ev.UserID, ev.Payload); err != nil {
			return Message{}, err
		}
	}
	return c.checkSubscription(ctx, ev)
}

func (c *Controller) checkSubscription(ctx context.Context, ev Event) (Message, error) {
	sess, err := c.deps.Sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return Message{}, err
	}
	if sess.Purchased {
		return unlockMessage(c.unlockedProduct(sess)), nil
	}
	product := c.deps.Catalog.Resolve(sess.ProductKey)

	if !c.deps.Gate.IsSubscribed(ctx, ev.UserID) {
		c.deps.Metrics.Incr(ctx, metrics.NotSubscribed, product.Key)
		if err := c.deps.Sessions.SetState(ctx, ev.UserID, sessions.StateAwaitingSubscription); err != nil {
			return Message{}, err
		}
		return subscribeMessage(c.deps.Gate.Channel(), true), nil
	}
	c.deps.Metrics.Incr(ctx, metrics.Subscribed, product.Key)

	payURL, err := c.payLink(ctx, ev.UserID, product)
	if errors.Is(err, payments.ErrAlreadyPaid) {
		return c.fulfil(ctx, ev.UserID, c.paidProduct(payments.PaidProductKey(err), sess))
	}

	if err := c.deps.Sessions.SetState(ctx, ev.UserID, sessions.StateAwaitingPayment); err != nil {
		return Message{}, err
	}
	if err := c.scheduleReminder(ctx, ev.UserID, product.Key); err != nil {
		c.log.Error(err, "schedule reminder failed", "user_id", ev.UserID)
	}
	return offerMessage(product, payURL), nil
}

// scheduleReminder records the reminder's due time on the session before arming it, so
// reminders armed earlier are recognised as superseded when they fire.
func (c *Controller) scheduleReminder(ctx context.Context, userID int64, productKey string) error {
	if c.deps.Reminders == nil {
		return nil
	}
	dueAt := c.nowFunc().Add(c.opts.ReminderDelay).UTC()
	if err := c.deps.Sessions.SetReminderDue(ctx, userID, dueAt); err != nil {
		return err
	}
	return c.deps.Reminders.Schedule(ctx, userID, productKey, dueAt)
}

// payLink returns a confirmation URL for product, or the static fallback link when no
// intent could be created. The only error it returns is payments.ErrAlreadyPaid.
func (c *Controller) payLink(ctx context.Context, userID int64, product catalog.Product) (string, error) {
	url, err := c.deps.Payments.CreateIntent(ctx, userID, product.Key)
	if err == nil {
		c.deps.Metrics.Incr(ctx, metrics.IntentCreated, product.Key)
		return url, nil
	}
	if errors.Is(err, payments.ErrAlreadyPaid) {
		return "", err
	}
	c.log.Error(err, "payment intent unavailable, using fallback link", "user_id", userID, "product", product.Key)
	c.deps.Metrics.Incr(ctx, metrics.IntentFallback, product.Key)
	return c.opts.FallbackURL, nil
}

func (c *Controller) paid(ctx context.Context, ev Event) (Message, error) {
	sess, err := c.deps.Sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return Message{}, err
	}
	if sess.Purchased {
		return unlockMessage(c.unlockedProduct(sess)), nil
	}

	if key, ok := c.deps.Payments.PollUntilSettled(ctx, ev.UserID, c.opts.PollAttempts, c.opts.PollInterval); ok {
		return c.fulfil(ctx, ev.UserID, c.paidProduct(key, sess))
	}

	product := c.deps.Catalog.Resolve(sess.ProductKey)
	payURL, err := c.payLink(ctx, ev.UserID, product)
	if errors.Is(err, payments.ErrAlreadyPaid) {
		return c.fulfil(ctx, ev.UserID, c.paidProduct(payments.PaidProductKey(err), sess))
	}
	return payFirstMessage(product, payURL), nil
}

// paidProduct resolves the product a succeeded payment was for. The session's selection
// stands in when the payment does not name one.
func (c *Controller) paidProduct(key string, sess sessions.Session) catalog.Product {
	if key == "" {
		key = sess.ProductKey
	}
	return c.deps.Catalog.Resolve(key)
}

// unlockedProduct is the product a purchaser has access to.
func (c *Controller) unlockedProduct(sess sessions.Session) catalog.Product {
	return c.paidProduct(sess.PurchasedKey, sess)
}

// fulfil marks the user purchased for product and returns its unlock content. When the
// user was already marked purchased, the recorded product is unlocked instead.
func (c *Controller) fulfil(ctx context.Context, userID int64, product catalog.Product) (Message, error) {
	changed, err := c.markPurchased(ctx, userID, product)
	if err != nil {
		return Message{}, err
	}
	if !changed {
		sess, err := c.deps.Sessions.GetOrCreate(ctx, userID)
		if err != nil {
			return Message{}, err
		}
		product = c.unlockedProduct(sess)
	}
	return unlockMessage(product), nil
}

// markPurchased flips the purchased flag, cancelling the reminder on the first flip.
func (c *Controller) markPurchased(ctx context.Context, userID int64, product catalog.Product) (bool, error) {
	changed, err := c.deps.Sessions.MarkPurchased(ctx, userID, product.Key)
	if err != nil {
		return false, err
	}
	if changed {
		if c.deps.Reminders != nil {
			c.deps.Reminders.Cancel(userID)
		}
		c.deps.Metrics.Incr(ctx, metrics.Purchased, product.Key)
		c.log.Info("purchase fulfilled", "user_id", userID, "product", product.Key)
	}
	return changed, nil
}

func (c *Controller) recoverAccess(ctx context.Context, ev Event) (Message, error) {
	sess, err := c.deps.Sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return Message{}, err
	}
	if !sess.Purchased {
		return notPurchasedMessage(), nil
	}
	return unlockMessage(c.unlockedProduct(sess)), nil
}

// respond replaces the pressed message for button events and sends a new one otherwise.
// A failed edit falls back to sending and removing the stale message.
func (c *Controller) respond(ctx context.Context, ev Event, msg Message) {
	if ev.IsCallback() {
		err := c.deps.Messenger.Edit(ctx, ev.ChatID, ev.MessageID, msg)
		if err == nil {
			return
		}
		c.log.V(1).Info("edit failed, sending new message", "user_id", ev.UserID, "error", err.Error())
		if _, err := c.deps.Messenger.Send(ctx, ev.ChatID, msg); err != nil {
			c.log.Error(err, "deliver response failed", "user_id", ev.UserID)
			return
		}
		if err := c.deps.Messenger.Delete(ctx, ev.ChatID, ev.MessageID); err != nil {
			c.log.V(1).Info("delete stale message failed", "user_id", ev.UserID, "error", err.Error())
		}
		return
	}
	if _, err := c.deps.Messenger.Send(ctx, ev.ChatID, msg); err != nil {
		c.log.Error(err, "deliver response failed", "user_id", ev.UserID)
	}
}

// Remind sends the reminder due at dueAt unless the user purchased in the meantime or a
// later reminder replaced it.
func (c *Controller) Remind(ctx context.Context, userID int64, productKey string, dueAt time.Time) {
	log := c.log.WithValues("user_id", userID, "product", productKey, "due_at", dueAt)

	sess, err := c.deps.Sessions.GetOrCreate(ctx, userID)
	if err != nil {
		log.Error(err, "load session for reminder failed")
		return
	}
	if sess.Purchased {
		log.V(1).Info("reminder suppressed, already purchased")
		return
	}
	if !sess.ReminderDueAt.IsZero() && !sess.ReminderDueAt.Equal(dueAt) {
		log.V(1).Info("reminder superseded", "latest_due_at", sess.ReminderDueAt)
		return
	}

	product := c.deps.Catalog.Resolve(productKey)
	payURL, err := c.payLink(ctx, userID, product)
	if errors.Is(err, payments.ErrAlreadyPaid) {
		log.V(1).Info("reminder suppressed, payment already succeeded")
		return
	}

	if _, err := c.deps.Messenger.Send(ctx, chatFor(sess), reminderMessage(product, payURL)); err != nil {
		log.Error(err, "deliver reminder failed")
		return
	}
	c.deps.Metrics.Incr(ctx, metrics.ReminderSent, product.Key)
	log.Info("reminder sent")
}

// HandlePaymentNotification settles ref at the processor and, when it succeeded, delivers the
// unlock content. Content is pushed only on the call that actually flips the purchased flag.
func (c *Controller) HandlePaymentNotification(ctx context.Context, ref string) error {
	st, err := c.deps.Payments.Settle(ctx, ref)
	if err != nil {
		return logutil.DebugAndWrapErr(c.log, "settle payment", err, "reference", ref)
	}
	if st.Status != payments.StatusSucceeded {
		c.log.V(1).Info("payment notification without success", "reference", ref, "status", st.Status)
		return nil
	}

	sess, err := c.deps.Sessions.GetOrCreate(ctx, st.UserID)
	if err != nil {
		return err
	}
	product := c.paidProduct(st.ProductKey, sess)
	changed, err := c.markPurchased(ctx, st.UserID, product)
	if err != nil || !changed {
		return err
	}
	if _, err := c.deps.Messenger.Send(ctx, chatFor(sess), unlockMessage(product)); err != nil {
		c.log.Error(err, "deliver unlock failed", "user_id", st.UserID)
	}
	return nil
}

// chatFor returns the chat to push unprompted messages to. Private chats share the user's id.
func chatFor(s sessions.Session) int64 {
	if s.ChatID != 0 {
		return s.ChatID
	}
	return s.UserID
}
