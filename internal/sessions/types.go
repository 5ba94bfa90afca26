package sessions

import (
	"context"
	"time"
)

// State is the conversation step a user is at.
type State string

const (
	StateStart                State = "start"
	StateAwaitingInterest     State = "awaiting_interest"
	StateAwaitingSubscription State = "awaiting_subscription"
	StateAwaitingPayment      State = "awaiting_payment"
	StateFulfilled            State = "fulfilled"
)

// Session is the per-user conversational and purchase state.
type Session struct {
	UserID           int64     `json:"user_id" dynamodbav:"user_id"` // PK
	ChatID           int64     `json:"chat_id,omitempty" dynamodbav:"chat_id,omitempty"`
	ProductKey       string    `json:"product_key" dynamodbav:"product_key"`
	Purchased        bool      `json:"purchased" dynamodbav:"purchased"`
	PurchasedKey     string    `json:"purchased_key,omitempty" dynamodbav:"purchased_key,omitempty"` // product the user paid for
	State            State     `json:"state" dynamodbav:"state"`
	PaymentReference string    `json:"payment_reference,omitempty" dynamodbav:"payment_reference,omitempty"`
	ReminderDueAt    time.Time `json:"reminder_due_at" dynamodbav:"reminder_due_at"` // latest scheduled reminder
	UpdatedAt        time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Repository persists sessions by user id. Get returns (nil, nil) when no session exists.
// Implementations need not serialize concurrent writers; Store does that per user.
type Repository interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s Session) error
}

// ProductResolver maps a requested product key to a catalog key, applying the default fallback.
type ProductResolver interface {
	ResolveKey(key string) string
}
