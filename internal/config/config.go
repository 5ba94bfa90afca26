package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Session backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
)

// Config is the process configuration, sourced from the environment.
type Config struct {
	BotToken      string `validate:"required"`
	ChannelID     string `validate:"required"`
	WebhookSecret string

	ShopID      string
	SecretKey   string
	APIURL      string `validate:"required,url"`
	ReturnURL   string `validate:"omitempty,url"`
	Currency    string `validate:"required,len=3"`
	FallbackURL string `validate:"required,url"`

	UnlockURL      string `validate:"required,url"`
	CatalogFile    string
	DefaultProduct string `validate:"required"`

	ReminderDelay time.Duration `validate:"gt=0"`
	PollAttempts  int           `validate:"min=1"`
	PollInterval  time.Duration `validate:"gte=0"`

	SessionBackend string `validate:"oneof=memory redis dynamodb"`
	RedisAddr      string `validate:"required_if=SessionBackend redis"`
	RedisPassword  string
	SessionsTable  string `validate:"required_if=SessionBackend dynamodb"`
	PaymentsTable  string
	PaymentsTTL    time.Duration

	ReminderQueueURL string `validate:"omitempty,url"`
	MetricsNamespace string

	HTTPAddr string `validate:"required"`
	RunLocal bool
	LogLevel string
}

// PaymentsConfigured reports whether processor credentials are present.
func (c Config) PaymentsConfigured() bool {
	return c.ShopID != "" && c.SecretKey != ""
}

// Load reads .env (if present) and the environment, applies defaults and validates.
// A missing required credential is returned as an error; callers abort startup on it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		BotToken:      p.str("TELEGRAM_BOT_TOKEN", ""),
		ChannelID:     p.str("TELEGRAM_CHANNEL_ID", ""),
		WebhookSecret: p.str("TELEGRAM_WEBHOOK_SECRET", ""),

		ShopID:      p.str("YOOKASSA_SHOP_ID", ""),
		SecretKey:   p.str("YOOKASSA_SECRET_KEY", ""),
		APIURL:      p.str("YOOKASSA_API_URL", "https://api.yookassa.ru/v3"),
		ReturnURL:   p.str("YOOKASSA_RETURN_URL", ""),
		Currency:    strings.ToUpper(p.str("PAYMENT_CURRENCY", "RUB")),
		FallbackURL: p.str("PAYMENT_FALLBACK_URL", "https://yookassa.ru/"),

		UnlockURL:      p.str("UNLOCK_URL", "https://docs.google.com/"),
		CatalogFile:    p.str("CATALOG_FILE", ""),
		DefaultProduct: p.str("DEFAULT_PRODUCT", "KLYUCH"),

		ReminderDelay: p.duration("REMINDER_DELAY", 30*time.Minute),
		PollAttempts:  p.integer("POLL_ATTEMPTS", 6),
		PollInterval:  p.duration("POLL_INTERVAL", 5*time.Second),

		SessionBackend: strings.ToLower(p.str("SESSION_BACKEND", BackendMemory)),
		RedisAddr:      p.str("REDIS_ADDR", ""),
		RedisPassword:  p.str("REDIS_PASSWORD", ""),
		SessionsTable:  p.str("SESSIONS_TABLE", ""),
		PaymentsTable:  p.str("PAYMENTS_TABLE", ""),
		PaymentsTTL:    p.duration("PAYMENTS_TTL", 30*24*time.Hour),

		ReminderQueueURL: p.str("REMINDER_QUEUE_URL", ""),
		MetricsNamespace: p.str("METRICS_NAMESPACE", ""),

		HTTPAddr: p.str("HTTP_ADDR", ":8080"),
		RunLocal: p.boolean("RUN_LOCAL", false),
		LogLevel: p.str("LOG_LEVEL", "info"),
	}
	if p.err != nil {
		return Config{}, p.err
	}

	if err := validatorv10.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}
