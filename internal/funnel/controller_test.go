package funnel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/imrishuroy/go-funnel-bot/internal/metrics"
	"github.com/imrishuroy/go-funnel-bot/internal/payments"
	"github.com/imrishuroy/go-funnel-bot/internal/sessions"
)

const unlockMarker = "Благодарю за доверие"

func TestBegin_PayloadSelectsProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(1, "VIDEO"))
	if got := h.session(t, 1).ProductKey; got != "VIDEO" {
		t.Fatalf("expected VIDEO, got %q", got)
	}

	h.ctrl.Handle(ctx, begin(1, "KLYUCH"))
	sess := h.session(t, 1)
	if sess.ProductKey != "KLYUCH" || sess.State != sessions.StateAwaitingInterest || sess.ChatID != 1 {
		t.Fatalf("unexpected session %+v", sess)
	}

	h.ctrl.Handle(ctx, begin(2, "UNKNOWN"))
	if got := h.session(t, 2).ProductKey; got != "KLYUCH" {
		t.Fatalf("expected default KLYUCH, got %q", got)
	}

	out := h.messenger.last(t)
	if out.kind != "send" || !strings.Contains(out.msg.Text, "Добро пожаловать") {
		t.Fatalf("expected welcome send, got %+v", out)
	}
	if out.msg.Buttons[0][0].Data != string(ActionInterested) {
		t.Fatalf("expected interested button, got %+v", out.msg.Buttons)
	}
	if h.metrics.counts[metrics.Start] != 3 {
		t.Fatalf("expected 3 start counts, got %d", h.metrics.counts[metrics.Start])
	}
}

func TestPurchaseScenario_UnlockDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(7, "KLYUCH"))
	h.ctrl.Handle(ctx, press(7, ActionInterested, ""))
	if got := h.session(t, 7).State; got != sessions.StateAwaitingSubscription {
		t.Fatalf("expected awaiting subscription, got %q", got)
	}
	sub := h.messenger.last(t)
	if sub.msg.Buttons[0][0].URL != "https://t.me/awaiking" {
		t.Fatalf("unexpected subscribe url %+v", sub.msg.Buttons[0][0])
	}

	h.ctrl.Handle(ctx, press(7, ActionCheckSubscription, ""))
	offer := h.messenger.last(t)
	if offer.kind != "edit" || payURL(offer.msg) != "https://pay.example/pay_1" {
		t.Fatalf("expected offer with pay_1 link, got %+v", offer)
	}
	if !strings.Contains(offer.msg.Text, "490₽") {
		t.Fatalf("expected price in offer: %q", offer.msg.Text)
	}
	if got := h.session(t, 7); got.State != sessions.StateAwaitingPayment || got.PaymentReference != "pay_1" {
		t.Fatalf("unexpected session after offer %+v", got)
	}
	if len(h.reminders.scheduled) != 1 || h.reminders.scheduled[0] != (scheduled{7, "KLYUCH", testNow.Add(30 * time.Minute)}) {
		t.Fatalf("unexpected reminders %+v", h.reminders.scheduled)
	}

	h.processor.finds = 0
	h.processor.findScript = []payments.Status{
		payments.StatusPending, payments.StatusPending, payments.StatusPending,
		payments.StatusPending, payments.StatusPending, payments.StatusSucceeded,
	}
	h.ctrl.Handle(ctx, press(7, ActionPaid, ""))

	if h.processor.finds != 6 {
		t.Fatalf("expected 6 status queries, got %d", h.processor.finds)
	}
	if n := h.messenger.count(unlockMarker); n != 1 {
		t.Fatalf("expected unlock exactly once, got %d", n)
	}
	if !strings.Contains(h.messenger.last(t).msg.Text, "https://docs.google.com/klyuch") {
		t.Fatalf("expected unlock url, got %q", h.messenger.last(t).msg.Text)
	}
	sess := h.session(t, 7)
	if !sess.Purchased || sess.State != sessions.StateFulfilled {
		t.Fatalf("expected fulfilled session, got %+v", sess)
	}
	if len(h.reminders.cancelled) != 1 || h.reminders.cancelled[0] != 7 {
		t.Fatalf("expected reminder cancelled, got %+v", h.reminders.cancelled)
	}
	if h.processor.creates != 1 {
		t.Fatalf("expected one intent, got %d", h.processor.creates)
	}
}

func TestPaid_PendingRepromptsWithSameLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, press(7, ActionCheckSubscription, ""))
	h.ctrl.Handle(ctx, press(7, ActionPaid, ""))

	out := h.messenger.last(t)
	if !strings.Contains(out.msg.Text, "пока не поступила") {
		t.Fatalf("expected pay-first prompt, got %q", out.msg.Text)
	}
	if payURL(out.msg) != "https://pay.example/pay_1" {
		t.Fatalf("expected reused link, got %q", payURL(out.msg))
	}
	if h.processor.creates != 1 {
		t.Fatalf("expected the pending intent to be reused, got %d creates", h.processor.creates)
	}
	if h.session(t, 7).Purchased {
		t.Fatal("user must not be marked purchased")
	}
}

func TestPaid_CanceledMintsFreshIntent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, press(7, ActionCheckSubscription, ""))
	h.processor.findScript = []payments.Status{payments.StatusCanceled, payments.StatusCanceled}
	h.ctrl.Handle(ctx, press(7, ActionPaid, ""))

	if got := payURL(h.messenger.last(t).msg); got != "https://pay.example/pay_2" {
		t.Fatalf("expected a fresh link, got %q", got)
	}
}

func TestRecover_IdempotentForPurchaser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.store.MarkPurchased(ctx, 9, "VIDEO"); err != nil {
		t.Fatalf("MarkPurchased: %v", err)
	}

	h.ctrl.Handle(ctx, Event{UserID: 9, ChatID: 9, Action: ActionRecover})
	first := h.messenger.last(t).msg
	h.ctrl.Handle(ctx, press(9, ActionRecover, ""))
	second := h.messenger.last(t).msg
	h.ctrl.Handle(ctx, Event{UserID: 9, ChatID: 9, Action: ActionRecover})
	third := h.messenger.last(t).msg

	if first.Text != second.Text || second.Text != third.Text {
		t.Fatalf("recover content differs:\n%q\n%q\n%q", first.Text, second.Text, third.Text)
	}
	if !strings.Contains(first.Text, "https://docs.google.com/video") {
		t.Fatalf("expected VIDEO unlock url, got %q", first.Text)
	}
	if h.processor.creates != 0 || h.processor.finds != 0 {
		t.Fatalf("processor must not be called, got %d creates %d finds", h.processor.creates, h.processor.finds)
	}
}

func TestRecover_NotPurchased(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Handle(context.Background(), Event{UserID: 3, Action: ActionRecover})

	out := h.messenger.last(t)
	if out.chatID != 3 || !strings.Contains(out.msg.Text, "не найдена") {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestCheckSubscription_NotSubscribed(t *testing.T) {
	h := newHarness(t)
	h.gate.subscribed = false

	h.ctrl.Handle(context.Background(), press(4, ActionCheckSubscription, ""))

	out := h.messenger.last(t)
	if !strings.Contains(out.msg.Text, "подписки пока нет") {
		t.Fatalf("expected subscription instructions, got %q", out.msg.Text)
	}
	if h.processor.creates != 0 || len(h.reminders.scheduled) != 0 {
		t.Fatal("no intent or reminder expected without subscription")
	}
	if got := h.session(t, 4).State; got != sessions.StateAwaitingSubscription {
		t.Fatalf("unexpected state %q", got)
	}
	if h.metrics.counts[metrics.NotSubscribed] != 1 {
		t.Fatalf("expected not_subscribed count, got %+v", h.metrics.counts)
	}
}

func TestCheckSubscription_CreationFailureUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.processor.createErr = payments.ErrNotConfigured

	h.ctrl.Handle(context.Background(), press(4, ActionCheckSubscription, ""))

	out := h.messenger.last(t)
	if payURL(out.msg) != fallbackURL {
		t.Fatalf("expected fallback link, got %q", payURL(out.msg))
	}
	if h.metrics.counts[metrics.IntentFallback] != 1 {
		t.Fatalf("expected fallback count, got %+v", h.metrics.counts)
	}
	if len(h.reminders.scheduled) != 1 {
		t.Fatal("reminder should still be scheduled")
	}
}

func TestSelectProduct_GatesAndOffersChosenProduct(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Handle(context.Background(), press(4, ActionSelectProduct, "VIDEO"))

	out := h.messenger.last(t)
	if !strings.Contains(out.msg.Text, "990₽") || h.gate.calls != 1 {
		t.Fatalf("expected gated VIDEO offer, got %q (gate calls %d)", out.msg.Text, h.gate.calls)
	}
	if h.session(t, 4).ProductKey != "VIDEO" {
		t.Fatal("expected VIDEO selected")
	}
}

func TestMenu_ListsProducts(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Handle(context.Background(), press(4, ActionMenu, ""))

	out := h.messenger.last(t)
	if len(out.msg.Buttons) != 2 || out.msg.Buttons[1][0].Data != "buy:VIDEO" {
		t.Fatalf("unexpected menu %+v", out.msg.Buttons)
	}
}

func TestUnknownText_GetsHint(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Handle(context.Background(), Event{UserID: 4, ChatID: 4, Action: ActionUnknown, Payload: "hello"})

	if n := len(h.messenger.out); n != 1 {
		t.Fatalf("expected exactly one response, got %d", n)
	}
	if !strings.Contains(h.messenger.last(t).msg.Text, "доступ") {
		t.Fatalf("expected hint, got %q", h.messenger.last(t).msg.Text)
	}
}

func TestBusyUser_GetsStillChecking(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.ctrl.acquire(5, ActionPaid); !ok {
		t.Fatal("acquire failed")
	}

	h.ctrl.Handle(context.Background(), press(5, ActionPaid, ""))

	out := h.messenger.last(t)
	if !strings.Contains(out.msg.Text, "проверяю оплату") {
		t.Fatalf("expected busy message, got %q", out.msg.Text)
	}
	if h.processor.finds != 0 {
		t.Fatal("busy event must not poll")
	}

	h.ctrl.release(5)
	h.ctrl.Handle(context.Background(), press(5, ActionMenu, ""))
	if !strings.Contains(h.messenger.last(t).msg.Text, "Выбери продукт") {
		t.Fatal("expected normal handling after release")
	}
}

func TestRespond_EditFailureFallsBackToSend(t *testing.T) {
	h := newHarness(t)
	h.messenger.editErr = errors.New("message is not modified")

	h.ctrl.Handle(context.Background(), press(5, ActionMenu, ""))

	if len(h.messenger.out) != 2 {
		t.Fatalf("expected send and delete, got %+v", h.messenger.out)
	}
	if h.messenger.out[0].kind != "send" || h.messenger.out[1].kind != "delete" || h.messenger.out[1].messageID != 100 {
		t.Fatalf("unexpected outbound sequence %+v", h.messenger.out)
	}
}

func TestRemind_SuppressedAfterPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, press(8, ActionCheckSubscription, ""))
	sent := len(h.messenger.out)
	if _, err := h.store.MarkPurchased(ctx, 8, "KLYUCH"); err != nil {
		t.Fatalf("MarkPurchased: %v", err)
	}

	h.ctrl.Remind(ctx, 8, "KLYUCH", h.reminders.scheduled[0].dueAt)

	if len(h.messenger.out) != sent {
		t.Fatalf("reminder must not be sent after purchase, got %+v", h.messenger.out[sent:])
	}
	if h.metrics.counts[metrics.ReminderSent] != 0 {
		t.Fatal("no reminder should be counted")
	}
}

func TestRemind_SendsPayLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(8, "VIDEO"))
	h.ctrl.Remind(ctx, 8, "VIDEO", testNow.Add(30*time.Minute))

	out := h.messenger.last(t)
	if out.kind != "send" || out.chatID != 8 || !strings.Contains(out.msg.Text, "Напоминание") {
		t.Fatalf("unexpected reminder %+v", out)
	}
	if payURL(out.msg) != "https://pay.example/pay_1" {
		t.Fatalf("expected pay link, got %q", payURL(out.msg))
	}
	if h.metrics.counts[metrics.ReminderSent] != 1 {
		t.Fatal("expected reminder count")
	}
}

func TestRemind_DeliveryFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.messenger.sendErr = errors.New("bot was blocked by the user")

	h.ctrl.Remind(context.Background(), 8, "KLYUCH", testNow.Add(30*time.Minute))

	if h.metrics.counts[metrics.ReminderSent] != 0 {
		t.Fatal("failed reminder must not be counted")
	}
}

func TestHandlePaymentNotification_FulfilsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(12, "KLYUCH"))
	h.ctrl.Handle(ctx, press(12, ActionCheckSubscription, ""))

	h.processor.findScript = []payments.Status{payments.StatusSucceeded, payments.StatusSucceeded}
	if err := h.ctrl.HandlePaymentNotification(ctx, "pay_1"); err != nil {
		t.Fatalf("first notification: %v", err)
	}
	if err := h.ctrl.HandlePaymentNotification(ctx, "pay_1"); err != nil {
		t.Fatalf("second notification: %v", err)
	}

	if n := h.messenger.count(unlockMarker); n != 1 {
		t.Fatalf("expected unlock exactly once, got %d", n)
	}
	if !h.session(t, 12).Purchased {
		t.Fatal("expected purchased")
	}
}

func TestHandlePaymentNotification_PendingIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, press(12, ActionCheckSubscription, ""))
	if err := h.ctrl.HandlePaymentNotification(ctx, "pay_1"); err != nil {
		t.Fatalf("notification: %v", err)
	}
	if h.session(t, 12).Purchased {
		t.Fatal("pending payment must not fulfil")
	}
	if err := h.ctrl.HandlePaymentNotification(ctx, "pay_404"); !errors.Is(err, payments.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func TestPaid_UnlocksProductThatWasPaidFor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(9, "KLYUCH"))
	h.ctrl.Handle(ctx, press(9, ActionCheckSubscription, ""))
	h.ctrl.Handle(ctx, begin(9, "VIDEO"))

	h.processor.findScript = []payments.Status{payments.StatusSucceeded}
	h.ctrl.Handle(ctx, press(9, ActionPaid, ""))

	text := h.messenger.last(t).msg.Text
	if !strings.Contains(text, "https://docs.google.com/klyuch") || strings.Contains(text, "https://docs.google.com/video") {
		t.Fatalf("expected KLYUCH unlock only, got %q", text)
	}
	if sess := h.session(t, 9); sess.PurchasedKey != "KLYUCH" {
		t.Fatalf("expected KLYUCH recorded as purchased, got %+v", sess)
	}
	if h.processor.creates != 1 {
		t.Fatalf("expected one intent, got %d", h.processor.creates)
	}
}

func TestPaid_BareStartDoesNotDowngradePaidProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(9, "VIDEO"))
	h.ctrl.Handle(ctx, press(9, ActionCheckSubscription, ""))
	h.ctrl.Handle(ctx, begin(9, ""))

	h.processor.findScript = []payments.Status{payments.StatusSucceeded}
	h.ctrl.Handle(ctx, press(9, ActionPaid, ""))

	if text := h.messenger.last(t).msg.Text; !strings.Contains(text, "https://docs.google.com/video") {
		t.Fatalf("expected VIDEO unlock, got %q", text)
	}
}

func TestPurchaser_DeepLinkDoesNotGrantOtherProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.store.MarkPurchased(ctx, 9, "KLYUCH"); err != nil {
		t.Fatalf("MarkPurchased: %v", err)
	}

	h.ctrl.Handle(ctx, begin(9, "VIDEO"))
	if got := h.session(t, 9).ProductKey; got != "KLYUCH" {
		t.Fatalf("purchaser product must not change, got %q", got)
	}

	h.ctrl.Handle(ctx, Event{UserID: 9, ChatID: 9, Action: ActionRecover})
	if text := h.messenger.last(t).msg.Text; strings.Contains(text, "https://docs.google.com/video") || !strings.Contains(text, "https://docs.google.com/klyuch") {
		t.Fatalf("expected KLYUCH unlock only, got %q", text)
	}

	h.ctrl.Handle(ctx, press(9, ActionSelectProduct, "VIDEO"))
	if text := h.messenger.last(t).msg.Text; strings.Contains(text, "https://docs.google.com/video") {
		t.Fatalf("menu purchase must not unlock VIDEO, got %q", text)
	}
	if h.processor.creates != 0 {
		t.Fatalf("no intent expected for a purchaser, got %d", h.processor.creates)
	}
}

func TestHandlePaymentNotification_UnlocksProductThatWasPaidFor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, begin(12, "KLYUCH"))
	h.ctrl.Handle(ctx, press(12, ActionCheckSubscription, ""))
	h.ctrl.Handle(ctx, begin(12, "VIDEO"))

	h.processor.findScript = []payments.Status{payments.StatusSucceeded}
	if err := h.ctrl.HandlePaymentNotification(ctx, "pay_1"); err != nil {
		t.Fatalf("notification: %v", err)
	}

	if text := h.messenger.last(t).msg.Text; !strings.Contains(text, "https://docs.google.com/klyuch") {
		t.Fatalf("expected KLYUCH unlock, got %q", text)
	}
}

func TestRemind_SupersededReminderDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Handle(ctx, press(8, ActionCheckSubscription, ""))
	h.ctrl.nowFunc = func() time.Time { return testNow.Add(2 * time.Minute) }
	h.ctrl.Handle(ctx, press(8, ActionCheckSubscription, ""))
	if len(h.reminders.scheduled) != 2 {
		t.Fatalf("expected two schedules, got %+v", h.reminders.scheduled)
	}

	h.ctrl.Remind(ctx, 8, "KLYUCH", h.reminders.scheduled[0].dueAt)
	if n := h.messenger.count("Напоминание"); n != 0 {
		t.Fatalf("superseded reminder was sent")
	}

	h.ctrl.Remind(ctx, 8, "KLYUCH", h.reminders.scheduled[1].dueAt)
	if n := h.messenger.count("Напоминание"); n != 1 {
		t.Fatalf("expected the latest reminder once, got %d", n)
	}
	if h.metrics.counts[metrics.ReminderSent] != 1 {
		t.Fatalf("expected one reminder counted, got %+v", h.metrics.counts)
	}
}
