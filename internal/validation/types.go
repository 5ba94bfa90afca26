package validation

// PaymentObject is the payment snapshot carried by a processor notification.
type PaymentObject struct {
	ID       string            `json:"id" validate:"required"`
	Status   string            `json:"status" validate:"required,oneof=pending waiting_for_capture succeeded canceled"`
	Paid     bool              `json:"paid"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PaymentNotification is the payload for POST /webhooks/yookassa.
type PaymentNotification struct {
	Type   string        `json:"type" validate:"required,eq=notification"`
	Event  string        `json:"event" validate:"required,oneof=payment.succeeded payment.canceled payment.waiting_for_capture"`
	Object PaymentObject `json:"object"`
}
