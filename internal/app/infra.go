package app

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-funnel-bot/internal/aws"
	"github.com/imrishuroy/go-funnel-bot/internal/config"
	"github.com/imrishuroy/go-funnel-bot/internal/ledger"
	"github.com/imrishuroy/go-funnel-bot/internal/metrics"
	"github.com/imrishuroy/go-funnel-bot/internal/reminder"
	"github.com/imrishuroy/go-funnel-bot/internal/sessions"
)

// Infra holds the external clients the configuration asks for.
type Infra struct {
	AWS   *aws.AWSClients // nil unless a DynamoDB, SQS or CloudWatch feature is enabled
	Redis *redis.Client   // nil unless sessions live in Redis
}

func needsAWS(cfg config.Config) bool {
	return cfg.SessionBackend == config.BackendDynamoDB ||
		cfg.PaymentsTable != "" ||
		cfg.ReminderQueueURL != "" ||
		cfg.MetricsNamespace != ""
}

func setupInfra(ctx context.Context, cfg config.Config, log logr.Logger) (*Infra, error) {
	inf := &Infra{}

	if needsAWS(cfg) {
		clients, err := aws.NewAWSClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		inf.AWS = clients
		log.Info("aws clients ready", "region", clients.Region)
	}

	if cfg.SessionBackend == config.BackendRedis {
		client, err := sessions.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		inf.Redis = client
		log.Info("redis ready", "addr", cfg.RedisAddr)
	}

	return inf, nil
}

func (i *Infra) Close() error {
	if i.Redis != nil {
		return i.Redis.Close()
	}
	return nil
}

func (i *Infra) sessionRepository(cfg config.Config) sessions.Repository {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		return sessions.NewRedisRepository(i.Redis, 0)
	case config.BackendDynamoDB:
		return sessions.NewDynamoRepository(i.AWS.DynamoDB, cfg.SessionsTable)
	default:
		return sessions.NewMemoryRepository()
	}
}

func (i *Infra) paymentLedger(cfg config.Config) ledger.Ledger {
	if cfg.PaymentsTable != "" {
		return ledger.NewStore(i.AWS.DynamoDB, cfg.PaymentsTable, cfg.PaymentsTTL)
	}
	return ledger.NewMemoryStore()
}

func (i *Infra) recorder(cfg config.Config, log logr.Logger) metrics.Recorder {
	if cfg.MetricsNamespace != "" {
		return metrics.NewCloudWatchRecorder(i.AWS.CloudWatch, cfg.MetricsNamespace, log)
	}
	return metrics.Nop{}
}

// queue returns the SQS-backed scheduler, or nil when reminders stay in process.
func (i *Infra) queue(cfg config.Config) *reminder.QueueScheduler {
	if cfg.ReminderQueueURL == "" {
		return nil
	}
	return reminder.NewQueueScheduler(aws.NewPublisher(i.AWS.SQS, cfg.ReminderQueueURL))
}
