package funnel

import "context"

// Button is an inline action button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Message is an outbound text with optional button rows.
type Message struct {
	Text    string
	Buttons [][]Button
}

// Messenger delivers outbound messages on the chat platform.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}
