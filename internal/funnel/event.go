package funnel

import (
	"regexp"
	"strings"
)

// Action is what the user asked for.
type Action string

const (
	ActionBegin             Action = "begin"
	ActionInterested        Action = "interested"
	ActionCheckSubscription Action = "check_sub"
	ActionMenu              Action = "menu"
	ActionSelectProduct     Action = "buy"
	ActionPaid              Action = "paid"
	ActionRecover           Action = "recover"
	ActionUnknown           Action = "unknown"
)

// Event is one inbound user action. MessageID is set for button presses and identifies
// the bot message carrying the button, which the response replaces.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Action    Action
	Payload   string
}

// IsCallback reports whether the event came from a button press.
func (e Event) IsCallback() bool { return e.MessageID != 0 }

var recoverPattern = regexp.MustCompile(`(?i)^/?(access|доступ)$`)

// ParseCallback maps button data to an action. "buy:<key>" carries the product key.
func ParseCallback(data string) (Action, string) {
	if key, ok := strings.CutPrefix(data, string(ActionSelectProduct)+":"); ok {
		return ActionSelectProduct, key
	}
	switch a := Action(data); a {
	case ActionInterested, ActionCheckSubscription, ActionMenu, ActionPaid, ActionRecover:
		return a, ""
	}
	return ActionUnknown, data
}

// ParseText maps a text message to an action. "/start <payload>" begins the funnel and
// the access command recovers a purchase.
func ParseText(text string) (Action, string) {
	text = strings.TrimSpace(text)
	cmd, payload, _ := strings.Cut(text, " ")
	// Commands may be addressed as /start@BotName.
	cmd, _, _ = strings.Cut(cmd, "@")
	switch {
	case strings.EqualFold(cmd, "/start"):
		return ActionBegin, strings.TrimSpace(payload)
	case recoverPattern.MatchString(text):
		return ActionRecover, ""
	}
	return ActionUnknown, text
}
