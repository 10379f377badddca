package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the process configuration read from environment variables
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	BasePath string `env:"BASE_PATH" envDefault:"/green-outreach-api"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SentryDSN string `env:"SENTRY_DSN"`

	// JWTSecret verifies the bearer tokens that carry the acting tenant
	JWTSecret string `env:"JWT_SECRET" envDefault:"default-secret-key-change-in-production"`
	// TriggerKeyHash is the bcrypt hash of the key the external scheduler presents on /internal routes
	TriggerKeyHash string `env:"TRIGGER_KEY_HASH"`

	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Scheduler SchedulerConfig
	Provider  ProviderConfig
	AI        AIConfig
	Credit    CreditConfig

	// Lead statuses that cancel every open enrollment of the lead
	DisqualifyingStatuses []string `env:"DISQUALIFYING_STATUSES" envSeparator:"," envDefault:"do_not_contact,unsubscribed,opted_out"`
	LogRetentionDays      int      `env:"LOG_RETENTION_DAYS" envDefault:"30"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `env:"DB_HOST"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DSN builds the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RabbitMQConfig holds broker settings. An empty host disables the broker.
type RabbitMQConfig struct {
	Host            string `env:"RABBITMQ_HOST"`
	Port            string `env:"RABBITMQ_PORT" envDefault:"5672"`
	User            string `env:"RABBITMQ_USER" envDefault:"guest"`
	Pass            string `env:"RABBITMQ_PASS" envDefault:"guest"`
	LeadEventsQueue string `env:"RABBITMQ_LEAD_EVENTS_QUEUE" envDefault:"lead_events"`
	MessageQueue    string `env:"RABBITMQ_MESSAGE_EVENTS_QUEUE" envDefault:"message_events"`
}

// URL builds the amqp connection URL
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Pass, c.Host, c.Port)
}

// SchedulerConfig tunes the sweeps
type SchedulerConfig struct {
	// TickInterval drives the in-process ticker; zero leaves sweeping to POST /internal/sweep
	TickInterval           time.Duration `env:"SCHEDULER_TICK_INTERVAL" envDefault:"1m"`
	BatchSize              int           `env:"SWEEP_BATCH_SIZE" envDefault:"200"`
	Concurrency            int           `env:"SWEEP_CONCURRENCY" envDefault:"8"`
	DispatchTimeout        time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"15s"`
	RetryInterval          time.Duration `env:"RETRY_INTERVAL" envDefault:"30m"`
	MaxConsecutiveFailures int           `env:"MAX_CONSECUTIVE_FAILURES" envDefault:"3"`
	// ClaimLease is how long a claimed scheduled message stays reserved for one sweep
	ClaimLease time.Duration `env:"CLAIM_LEASE" envDefault:"5m"`
}

// ProviderConfig selects the outbound messaging provider
type ProviderConfig struct {
	URL      string `env:"MESSAGING_PROVIDER_URL"`
	APIKey   string `env:"MESSAGING_PROVIDER_API_KEY"`
	SenderID string `env:"MESSAGING_SENDER_ID" envDefault:"GREEN"`
}

// AIConfig configures the completion service
type AIConfig struct {
	URL     string        `env:"AI_COMPLETION_URL"`
	APIKey  string        `env:"AI_COMPLETION_API_KEY"`
	Timeout time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
}

// CreditConfig holds the flat parts of the cost model
type CreditConfig struct {
	MediaSurcharge int64 `env:"CREDIT_MEDIA_SURCHARGE" envDefault:"2"`
}

// Load parses the environment into a Config
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Scheduler.MaxConsecutiveFailures < 1 {
		cfg.Scheduler.MaxConsecutiveFailures = 3
	}
	if cfg.Scheduler.Concurrency < 1 {
		cfg.Scheduler.Concurrency = 1
	}
	return cfg, nil
}
