package funnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/catalog"
	"github.com/imrishuroy/go-funnel-bot/internal/ledger"
	"github.com/imrishuroy/go-funnel-bot/internal/payments"
	"github.com/imrishuroy/go-funnel-bot/internal/sessions"
)

type outbound struct {
	kind      string // send | edit | delete
	chatID    int64
	messageID int
	msg       Message
}

type fakeMessenger struct {
	mu      sync.Mutex
	out     []outbound
	editErr error
	sendErr error
	nextID  int
}

func (f *fakeMessenger) Send(ctx context.Context, chatID int64, msg Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.out = append(f.out, outbound{kind: "send", chatID: chatID, messageID: f.nextID, msg: msg})
	return f.nextID, nil
}

func (f *fakeMessenger) Edit(ctx context.Context, chatID int64, messageID int, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.out = append(f.out, outbound{kind: "edit", chatID: chatID, messageID: messageID, msg: msg})
	return nil
}

func (f *fakeMessenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, outbound{kind: "delete", chatID: chatID, messageID: messageID})
	return nil
}

func (f *fakeMessenger) last(t *testing.T) outbound {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		t.Fatal("no outbound messages")
	}
	return f.out[len(f.out)-1]
}

func (f *fakeMessenger) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.out {
		if o.kind != "delete" && strings.Contains(o.msg.Text, substr) {
			n++
		}
	}
	return n
}

type fakeGate struct {
	subscribed bool
	calls      int
}

func (g *fakeGate) IsSubscribed(ctx context.Context, userID int64) bool {
	g.calls++
	return g.subscribed
}

func (g *fakeGate) Channel() string { return "@awaiking" }

type fakeProcessor struct {
	mu         sync.Mutex
	createErr  error
	creates    int
	finds      int
	findScript []payments.Status
	byRef      map[string]*payments.Intent
}

func (f *fakeProcessor) Create(ctx context.Context, req payments.CreateRequest) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	ref := fmt.Sprintf("pay_%d", f.creates)
	intent := &payments.Intent{
		Reference:       ref,
		Status:          payments.StatusPending,
		ConfirmationURL: "https://pay.example/" + ref,
		Metadata:        req.Metadata,
	}
	if f.byRef == nil {
		f.byRef = make(map[string]*payments.Intent)
	}
	f.byRef[ref] = intent
	return intent, nil
}

func (f *fakeProcessor) Find(ctx context.Context, ref string) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	known, ok := f.byRef[ref]
	if !ok {
		return nil, errors.New("payment not found")
	}
	cp := *known
	if len(f.findScript) > 0 {
		cp.Status = f.findScript[0]
		f.findScript = f.findScript[1:]
	}
	return &cp, nil
}

type scheduled struct {
	userID     int64
	productKey string
	dueAt      time.Time
}

type fakeScheduler struct {
	scheduled []scheduled
	cancelled []int64
}

func (s *fakeScheduler) Schedule(ctx context.Context, userID int64, productKey string, dueAt time.Time) error {
	s.scheduled = append(s.scheduled, scheduled{userID, productKey, dueAt})
	return nil
}

func (s *fakeScheduler) Cancel(userID int64) { s.cancelled = append(s.cancelled, userID) }

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *fakeMetrics) Incr(ctx context.Context, name, product string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name]++
}

type harness struct {
	ctrl      *Controller
	messenger *fakeMessenger
	gate      *fakeGate
	processor *fakeProcessor
	store     *sessions.Store
	reminders *fakeScheduler
	metrics   *fakeMetrics
}

const fallbackURL = "https://yookassa.ru/"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := catalog.New([]catalog.Product{
		{Key: "KLYUCH", Title: "📘 Гайд «Ключ»", Price: 49000, UnlockURL: "https://docs.google.com/klyuch"},
		{Key: "VIDEO", Title: "🎥 Видео+Гайд", Price: 99000, UnlockURL: "https://docs.google.com/video"},
	}, "KLYUCH")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	h := &harness{
		messenger: &fakeMessenger{},
		gate:      &fakeGate{subscribed: true},
		processor: &fakeProcessor{},
		store:     sessions.NewStore(sessions.NewMemoryRepository(), cat),
		reminders: &fakeScheduler{},
		metrics:   &fakeMetrics{},
	}
	orch := payments.NewOrchestrator(h.processor, h.store, ledger.NewMemoryStore(), cat,
		payments.Options{Currency: "RUB", ReturnURL: "https://t.me/awaiking_bot"}, logr.Discard())
	h.ctrl = New(Deps{
		Messenger: h.messenger,
		Sessions:  h.store,
		Gate:      h.gate,
		Payments:  orch,
		Catalog:   cat,
		Reminders: h.reminders,
		Metrics:   h.metrics,
	}, Options{
		FallbackURL:   fallbackURL,
		ReminderDelay: 30 * time.Minute,
		PollAttempts:  6,
		PollInterval:  0,
	}, logr.Discard())
	h.ctrl.nowFunc = func() time.Time { return testNow }
	return h
}

func (h *harness) session(t *testing.T, userID int64) sessions.Session {
	t.Helper()
	sess, err := h.store.GetOrCreate(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	return sess
}

func begin(userID int64, payload string) Event {
	return Event{UserID: userID, ChatID: userID, Action: ActionBegin, Payload: payload}
}

func press(userID int64, action Action, payload string) Event {
	return Event{UserID: userID, ChatID: userID, MessageID: 100, Action: action, Payload: payload}
}

func payURL(msg Message) string {
	for _, row := range msg.Buttons {
		for _, b := range row {
			if b.Text == labelPay {
				return b.URL
			}
		}
	}
	return ""
}
