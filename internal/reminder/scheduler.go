// Package reminder delivers the delayed "you haven't paid yet" nudge.
package reminder

import (
	"context"
	"time"
)

// FireFunc is invoked when a reminder is due. It must re-check whether the user purchased
// and whether dueAt is still the user's latest reminder.
type FireFunc func(ctx context.Context, userID int64, productKey string, dueAt time.Time)

// Scheduler schedules one pending reminder per user.
type Scheduler interface {
	// Schedule arms a reminder for userID at dueAt, replacing any pending one where the
	// backend can.
	Schedule(ctx context.Context, userID int64, productKey string, dueAt time.Time) error
	// Cancel drops the user's pending reminder, if the backend supports it.
	Cancel(userID int64)
}
