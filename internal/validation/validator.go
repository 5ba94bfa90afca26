package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the event name must agree with the embedded payment status, e.g.
	// payment.succeeded carries status succeeded.
	v.RegisterStructValidation(notificationStructValidation, PaymentNotification{})

	return v
}

func notificationStructValidation(sl validatorv10.StructLevel) {
	n := sl.Current().Interface().(PaymentNotification)

	want := strings.TrimPrefix(n.Event, "payment.")
	if n.Object.Status != "" && want != "" && n.Object.Status != want {
		sl.ReportError(n.Event, "event", "Event", "event_match_status", n.Object.Status)
	}
}
