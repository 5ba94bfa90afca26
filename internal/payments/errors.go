package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when processor credentials are missing.
	ErrNotConfigured = errors.New("payment processor not configured")
	// ErrAlreadyPaid rejects creating an intent for a user whose payment already succeeded.
	ErrAlreadyPaid = errors.New("payment already succeeded")
	// ErrUnknownReference is returned when a reference is not in the ledger.
	ErrUnknownReference = errors.New("unknown payment reference")
)

// PaymentCreationError reports that no payment intent could be created. Callers fall back
// to the static payment link.
type PaymentCreationError struct {
	UserID     int64
	ProductKey string
	Err        error
}

func (e *PaymentCreationError) Error() string {
	return fmt.Sprintf("create payment for user %d product %s: %v", e.UserID, e.ProductKey, e.Err)
}

func (e *PaymentCreationError) Unwrap() error { return e.Err }

// AlreadyPaidError is ErrAlreadyPaid carrying the product the succeeded payment was for.
// ProductKey is empty when it is not known.
type AlreadyPaidError struct {
	ProductKey string
}

func (e *AlreadyPaidError) Error() string {
	if e.ProductKey == "" {
		return ErrAlreadyPaid.Error()
	}
	return fmt.Sprintf("%v: product %s", ErrAlreadyPaid, e.ProductKey)
}

func (e *AlreadyPaidError) Is(target error) bool { return target == ErrAlreadyPaid }

// PaidProductKey returns the product carried by an *AlreadyPaidError in err's chain.
func PaidProductKey(err error) string {
	var e *AlreadyPaidError
	if errors.As(err, &e) {
		return e.ProductKey
	}
	return ""
}
