package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-funnel-bot/internal/app"
	"github.com/imrishuroy/go-funnel-bot/internal/config"
	"github.com/imrishuroy/go-funnel-bot/internal/logutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logutil.New("info").Error(err, "invalid configuration")
		os.Exit(1)
	}
	log := logutil.New(cfg.LogLevel).WithName("worker")

	if cfg.ReminderQueueURL == "" {
		log.Error(nil, "REMINDER_QUEUE_URL is required for the worker")
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error(err, "failed to build app")
		os.Exit(1)
	}
	defer a.Close()

	p := NewProcessor(a.Controller, a.Queue, log)

	// If RUN_LOCAL=true, process a single reminder body for local testing.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Error(nil, "LOCAL_SQS_BODY is required when RUN_LOCAL=true")
			os.Exit(1)
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local", Body: body}}}
		resp, err := p.Handle(ctx, event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Error(err, "local handler error", "failures", len(resp.BatchItemFailures))
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
