package payments

import "context"

// Status is a payment intent's lifecycle state at the processor.
type Status string

const (
	StatusPending           Status = "pending"
	StatusWaitingForCapture Status = "waiting_for_capture"
	StatusSucceeded         Status = "succeeded"
	StatusCanceled          Status = "canceled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusCanceled
}

// Intent is the processor's view of a payment.
type Intent struct {
	Reference       string
	Status          Status
	ConfirmationURL string
	Metadata        map[string]string
}

// CreateRequest describes a charge to create.
type CreateRequest struct {
	Amount         string // decimal, two places, e.g. "490.00"
	Currency       string
	Capture        bool
	Description    string
	Metadata       map[string]string
	ReturnURL      string
	IdempotenceKey string
}

// Processor is the payment processor collaborator.
type Processor interface {
	Create(ctx context.Context, req CreateRequest) (*Intent, error)
	Find(ctx context.Context, reference string) (*Intent, error)
}
