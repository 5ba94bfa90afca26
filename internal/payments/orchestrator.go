package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-funnel-bot/internal/catalog"
	"github.com/imrishuroy/go-funnel-bot/internal/ledger"
	"github.com/imrishuroy/go-funnel-bot/internal/sessions"
)

// maxDescriptionRunes is the processor's limit on payment descriptions.
const maxDescriptionRunes = 128

// SessionStore is the part of the session service the orchestrator uses.
type SessionStore interface {
	GetOrCreate(ctx context.Context, userID int64) (sessions.Session, error)
	RecordPayment(ctx context.Context, userID int64, ref string) error
	PaymentReference(ctx context.Context, userID int64) (string, bool, error)
}

// ProductResolver resolves product keys with the catalog default fallback.
type ProductResolver interface {
	Resolve(key string) catalog.Product
}

// Options are the static parameters of every payment request.
type Options struct {
	Currency  string
	ReturnURL string
}

// Orchestrator creates payment intents and polls them to a terminal status.
// The processor is always authoritative; the ledger mirrors what it reports.
type Orchestrator struct {
	processor Processor
	sessions  SessionStore
	ledger    ledger.Ledger
	products  ProductResolver
	opts      Options
	log       logr.Logger

	newKey func() string
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(processor Processor, store SessionStore, l ledger.Ledger, products ProductResolver, opts Options, log logr.Logger) *Orchestrator {
	return &Orchestrator{
		processor: processor,
		sessions:  store,
		ledger:    l,
		products:  products,
		opts:      opts,
		log:       log.WithName("payments"),
		newKey:    uuid.NewString,
		sleep:     sleepContext,
	}
}

// CreateIntent returns a confirmation URL for userID to pay for productKey. A still-pending
// intent for the same product is reused; otherwise a new one is created and its reference
// recorded on the session. A user who already paid gets an *AlreadyPaidError naming the paid
// product; other failures are *PaymentCreationError.
func (o *Orchestrator) CreateIntent(ctx context.Context, userID int64, productKey string) (string, error) {
	product := o.products.Resolve(productKey)
	fail := func(err error) (string, error) {
		return "", &PaymentCreationError{UserID: userID, ProductKey: product.Key, Err: err}
	}

	if o.processor == nil {
		return fail(ErrNotConfigured)
	}

	sess, err := o.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return fail(err)
	}
	if sess.Purchased {
		return "", &AlreadyPaidError{ProductKey: sess.PurchasedKey}
	}

	if sess.PaymentReference != "" {
		url, reused, err := o.reuse(ctx, sess.PaymentReference, product.Key)
		if err != nil {
			return "", err
		}
		if reused {
			return url, nil
		}
	}

	req := CreateRequest{
		Amount:      product.Price.String(),
		Currency:    o.opts.Currency,
		Capture:     true,
		Description: truncateRunes(product.Title, maxDescriptionRunes),
		Metadata: map[string]string{
			"user_id":     strconv.FormatInt(userID, 10),
			"product_key": product.Key,
		},
		ReturnURL:      o.opts.ReturnURL,
		IdempotenceKey: o.newKey(),
	}
	intent, err := o.processor.Create(ctx, req)
	if err != nil {
		return fail(err)
	}
	if intent.Reference == "" || intent.ConfirmationURL == "" {
		return fail(fmt.Errorf("processor returned incomplete intent %q", intent.Reference))
	}

	if err := o.sessions.RecordPayment(ctx, userID, intent.Reference); err != nil {
		return fail(err)
	}
	rec := ledger.Record{
		Reference:       intent.Reference,
		UserID:          userID,
		ProductKey:      product.Key,
		Status:          ledger.StatusPending,
		ConfirmationURL: intent.ConfirmationURL,
		Amount:          req.Amount,
	}
	if err := o.ledger.Put(ctx, rec); err != nil {
		o.log.Error(err, "ledger put failed", "user_id", userID, "reference", intent.Reference)
	}

	o.log.Info("payment intent created", "user_id", userID, "product", product.Key, "reference", intent.Reference)
	return intent.ConfirmationURL, nil
}

// reuse re-queries ref and returns its confirmation URL when it is still pending for the
// same product. A succeeded intent yields an *AlreadyPaidError for the product it was paid for.
func (o *Orchestrator) reuse(ctx context.Context, ref, productKey string) (string, bool, error) {
	intent, err := o.processor.Find(ctx, ref)
	if err != nil {
		o.log.Error(err, "lookup of previous intent failed, creating a new one", "reference", ref)
		return "", false, nil
	}

	owner := o.productOf(ctx, ref, intent)

	switch intent.Status {
	case StatusSucceeded:
		o.mirror(ctx, ref, intent.Status)
		return "", false, &AlreadyPaidError{ProductKey: owner}
	case StatusCanceled:
		o.mirror(ctx, ref, intent.Status)
		return "", false, nil
	}
	if owner != productKey || intent.ConfirmationURL == "" {
		return "", false, nil
	}
	o.log.V(1).Info("reusing pending intent", "reference", ref, "product", productKey)
	return intent.ConfirmationURL, true, nil
}

// PollUntilSettled queries the user's current payment up to maxAttempts times, sleeping
// interval between attempts. Once the processor reports succeeded it returns the key of the
// product that payment was for and true. It returns false on canceled, on an exhausted budget,
// when the user has no payment, or when ctx ends. Query errors are logged and count as not
// yet succeeded.
func (o *Orchestrator) PollUntilSettled(ctx context.Context, userID int64, maxAttempts int, interval time.Duration) (string, bool) {
	if o.processor == nil {
		return "", false
	}
	ref, ok, err := o.sessions.PaymentReference(ctx, userID)
	if err != nil {
		o.log.Error(err, "load payment reference failed", "user_id", userID)
		return "", false
	}
	if !ok {
		return "", false
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		intent, err := o.processor.Find(ctx, ref)
		switch {
		case err != nil:
			o.log.Error(err, "payment status query failed", "user_id", userID, "reference", ref, "attempt", attempt)
		case intent.Status == StatusSucceeded:
			o.mirror(ctx, ref, intent.Status)
			productKey := o.productOf(ctx, ref, intent)
			o.log.Info("payment succeeded", "user_id", userID, "reference", ref, "product", productKey, "attempt", attempt)
			return productKey, true
		case intent.Status == StatusCanceled:
			o.mirror(ctx, ref, intent.Status)
			o.log.Info("payment canceled", "user_id", userID, "reference", ref, "attempt", attempt)
			return "", false
		default:
			o.log.V(1).Info("payment still pending", "user_id", userID, "reference", ref, "attempt", attempt, "status", intent.Status)
		}

		if attempt == maxAttempts {
			break
		}
		if err := o.sleep(ctx, interval); err != nil {
			return "", false
		}
	}
	return "", false
}

// productOf returns the product ref was created for: the processor's metadata first, then
// the ledger. It is empty when neither knows.
func (o *Orchestrator) productOf(ctx context.Context, ref string, intent *Intent) string {
	if key := intent.Metadata["product_key"]; key != "" {
		return key
	}
	rec, err := o.ledger.Get(ctx, ref)
	if err != nil || rec == nil {
		return ""
	}
	return rec.ProductKey
}

// Settlement is what the processor reports for a payment, attributed to its user and product.
type Settlement struct {
	Reference  string
	UserID     int64
	ProductKey string
	Status     Status
}

// Settle re-queries ref at the processor, mirrors a terminal status into the ledger and
// returns the user and product the payment belongs to.
func (o *Orchestrator) Settle(ctx context.Context, ref string) (Settlement, error) {
	if o.processor == nil {
		return Settlement{}, ErrNotConfigured
	}
	rec, err := o.ledger.Get(ctx, ref)
	if err != nil {
		return Settlement{}, fmt.Errorf("ledger get: %w", err)
	}
	if rec == nil {
		return Settlement{}, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	intent, err := o.processor.Find(ctx, ref)
	if err != nil {
		return Settlement{}, fmt.Errorf("find payment: %w", err)
	}
	if intent.Status.Terminal() {
		o.mirror(ctx, ref, intent.Status)
	}
	productKey := rec.ProductKey
	if productKey == "" {
		productKey = intent.Metadata["product_key"]
	}
	return Settlement{
		Reference:  ref,
		UserID:     rec.UserID,
		ProductKey: productKey,
		Status:     intent.Status,
	}, nil
}

func (o *Orchestrator) mirror(ctx context.Context, ref string, status Status) {
	err := o.ledger.UpdateStatus(ctx, ref, ledger.StatusPending, string(status))
	switch {
	case errors.Is(err, ledger.ErrStatusMismatch):
		o.log.V(1).Info("ledger already settled or missing", "reference", ref, "status", status)
	case err != nil:
		o.log.Error(err, "ledger status update failed", "reference", ref, "status", status)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
