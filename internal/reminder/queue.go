package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// deferThreshold is how early a queued reminder may arrive and still be delivered.
const deferThreshold = time.Second

// Message is the queued reminder payload.
type Message struct {
	UserID     int64     `json:"user_id"`
	ProductKey string    `json:"product_key"`
	DueAt      time.Time `json:"due_at"`
}

// Publisher enqueues a message with a delivery delay.
type Publisher interface {
	SendDelayed(ctx context.Context, messageBody string, delay time.Duration, attributes map[string]string) error
}

// QueueScheduler publishes reminders to a delay queue consumed by the worker.
// The queue caps per-message delay, so longer reminders are re-enqueued by Defer until due.
type QueueScheduler struct {
	pub     Publisher
	nowFunc func() time.Time
}

func NewQueueScheduler(pub Publisher) *QueueScheduler {
	return &QueueScheduler{pub: pub, nowFunc: time.Now}
}

func (q *QueueScheduler) Schedule(ctx context.Context, userID int64, productKey string, dueAt time.Time) error {
	return q.send(ctx, Message{
		UserID:     userID,
		ProductKey: productKey,
		DueAt:      dueAt.UTC(),
	})
}

// Cancel is a no-op: queued messages cannot be recalled. The fire-time checks drop reminders
// for purchasers and reminders superseded by a later Schedule.
func (q *QueueScheduler) Cancel(userID int64) {}

// Defer re-enqueues msg when it arrived before its due time and reports whether it did.
func (q *QueueScheduler) Defer(ctx context.Context, msg Message) (bool, error) {
	if msg.DueAt.Sub(q.nowFunc()) <= deferThreshold {
		return false, nil
	}
	if err := q.send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (q *QueueScheduler) send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}
	attrs := map[string]string{
		"type":    "reminder",
		"user_id": strconv.FormatInt(msg.UserID, 10),
	}
	if err := q.pub.SendDelayed(ctx, string(body), msg.DueAt.Sub(q.nowFunc()), attrs); err != nil {
		return fmt.Errorf("enqueue reminder for user %d: %w", msg.UserID, err)
	}
	return nil
}

// ParseMessage decodes a queued reminder body.
func ParseMessage(body string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return Message{}, fmt.Errorf("invalid reminder body: %w", err)
	}
	if msg.UserID == 0 {
		return Message{}, errors.New("invalid reminder body: missing user_id")
	}
	return msg, nil
}
