package ledger

import (
	"context"
	"errors"
	"time"
)

// Payment statuses, mirrored from the processor.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
)

var (
	// ErrConditionFailed indicates a record with the same reference already exists.
	ErrConditionFailed = errors.New("conditional check failed")
	// ErrStatusMismatch indicates the stored status differs from the expected one.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Record is one payment intent as last seen at the processor.
type Record struct {
	Reference       string    `dynamodbav:"payment_reference"` // PK
	UserID          int64     `dynamodbav:"user_id"`
	ProductKey      string    `dynamodbav:"product_key,omitempty"`
	Status          string    `dynamodbav:"status"` // pending | succeeded | canceled
	ConfirmationURL string    `dynamodbav:"confirmation_url,omitempty"`
	Amount          string    `dynamodbav:"amount,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
	ExpiresAt       int64     `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds
}

// Terminal reports whether the status can no longer change.
func (r Record) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusCanceled
}

// Ledger stores payment records by reference. Get returns (nil, nil) when absent.
type Ledger interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, reference string) (*Record, error)
	UpdateStatus(ctx context.Context, reference, expectedStatus, newStatus string) error
}
