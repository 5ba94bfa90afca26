package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/logutil"
	"github.com/imrishuroy/go-funnel-bot/internal/reminder"
)

// Reminder delivers a due reminder.
type Reminder interface {
	Remind(ctx context.Context, userID int64, productKey string, dueAt time.Time)
}

// Deferrer re-enqueues reminders that arrived before they were due.
type Deferrer interface {
	Defer(ctx context.Context, msg reminder.Message) (bool, error)
}

// Processor handles SQS batches of queued reminders.
type Processor struct {
	reminder Reminder
	deferrer Deferrer
	log      logr.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(r Reminder, d Deferrer, log logr.Logger) *Processor {
	return &Processor{reminder: r, deferrer: d, log: log.WithName("worker")}
}

// Handle receives an SQS batch event and processes each message. Failed messages are
// reported individually so SQS redelivers only those and eventually dead-letters them.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	p.log.V(1).Info("received batch", "records", len(ev.Records))
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error(err, "reminder failed", "message_id", rec.MessageId)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	msg, err := reminder.ParseMessage(rec.Body)
	if err != nil {
		return err
	}

	deferred, err := p.deferrer.Defer(ctx, msg)
	if err != nil {
		return logutil.DebugAndWrapErr(p.log, "defer reminder", err, "user_id", msg.UserID)
	}
	if deferred {
		p.log.V(1).Info("reminder not yet due, re-enqueued", "user_id", msg.UserID, "due_at", msg.DueAt)
		return nil
	}

	// Remind never fails the batch: delivery problems are logged and dropped.
	p.reminder.Remind(ctx, msg.UserID, msg.ProductKey, msg.DueAt)
	return nil
}
