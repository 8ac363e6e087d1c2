// Package config loads process configuration from an optional .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	QueueDriverAsynq  = "asynq"
	QueueDriverMemory = "memory"

	RegistryModeHTTP = "http"
	RegistryModeMock = "mock"

	AuditSinkPostgres = "postgres"
	AuditSinkKafka    = "kafka"
	AuditSinkMemory   = "memory"
)

// Config holds all settings for the verification worker.
type Config struct {
	OpsAddr     string `mapstructure:"OPS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	QueueDriver      string `mapstructure:"QUEUE_DRIVER"`
	QueueName        string `mapstructure:"QUEUE_NAME"`
	QueueConcurrency int    `mapstructure:"QUEUE_CONCURRENCY"`

	VerificationMaxAttempts int           `mapstructure:"VERIFICATION_MAX_ATTEMPTS"`
	VerificationBackoffBase time.Duration `mapstructure:"VERIFICATION_BACKOFF_BASE"`
	VerificationBackoffMax  time.Duration `mapstructure:"VERIFICATION_BACKOFF_MAX"`
	VerificationJobTimeout  time.Duration `mapstructure:"VERIFICATION_JOB_TIMEOUT"`

	RegistryMode    string        `mapstructure:"REGISTRY_MODE"`
	RegistryBaseURL string        `mapstructure:"REGISTRY_BASE_URL"`
	RegistryAPIKey  string        `mapstructure:"REGISTRY_API_KEY"`
	RegistryTimeout time.Duration `mapstructure:"REGISTRY_TIMEOUT"`

	AuditSink       string `mapstructure:"AUDIT_SINK"`
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaAuditTopic string `mapstructure:"KAFKA_AUDIT_TOPIC"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	MailExchange   string `mapstructure:"MAIL_EXCHANGE"`
	MailRoutingKey string `mapstructure:"MAIL_ROUTING_KEY"`

	SideEffectTimeout time.Duration `mapstructure:"SIDE_EFFECT_TIMEOUT"`

	ReconcileInterval   time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileStaleAfter time.Duration `mapstructure:"RECONCILE_STALE_AFTER"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"OPS_ADDR", "DATABASE_URL", "REDIS_URL",
	"QUEUE_DRIVER", "QUEUE_NAME", "QUEUE_CONCURRENCY",
	"VERIFICATION_MAX_ATTEMPTS", "VERIFICATION_BACKOFF_BASE", "VERIFICATION_BACKOFF_MAX", "VERIFICATION_JOB_TIMEOUT",
	"REGISTRY_MODE", "REGISTRY_BASE_URL", "REGISTRY_API_KEY", "REGISTRY_TIMEOUT",
	"AUDIT_SINK", "KAFKA_BROKERS", "KAFKA_AUDIT_TOPIC",
	"RABBITMQ_URL", "MAIL_EXCHANGE", "MAIL_ROUTING_KEY",
	"SIDE_EFFECT_TIMEOUT", "RECONCILE_INTERVAL", "RECONCILE_STALE_AFTER",
	"LOG_LEVEL", "LOG_FORMAT",
}

// Load reads path/.env when present, then the environment. Environment
// variables always win over the file.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("OPS_ADDR", ":9090")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("QUEUE_DRIVER", QueueDriverAsynq)
	v.SetDefault("QUEUE_NAME", "verification")
	v.SetDefault("QUEUE_CONCURRENCY", 10)
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 3)
	v.SetDefault("VERIFICATION_BACKOFF_BASE", time.Second)
	v.SetDefault("VERIFICATION_BACKOFF_MAX", time.Minute)
	v.SetDefault("VERIFICATION_JOB_TIMEOUT", 60*time.Second)
	v.SetDefault("REGISTRY_MODE", RegistryModeHTTP)
	v.SetDefault("REGISTRY_TIMEOUT", 10*time.Second)
	v.SetDefault("AUDIT_SINK", AuditSinkPostgres)
	v.SetDefault("KAFKA_AUDIT_TOPIC", "company.audit")
	v.SetDefault("MAIL_EXCHANGE", "mail")
	v.SetDefault("MAIL_ROUTING_KEY", "email.send")
	v.SetDefault("SIDE_EFFECT_TIMEOUT", 5*time.Second)
	v.SetDefault("RECONCILE_INTERVAL", time.Minute)
	v.SetDefault("RECONCILE_STALE_AFTER", 5*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.VerificationMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("VERIFICATION_MAX_ATTEMPTS must be at least 1"))
	}
	if c.VerificationBackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("VERIFICATION_BACKOFF_BASE must be positive"))
	}
	if c.VerificationBackoffMax < c.VerificationBackoffBase {
		errs = append(errs, fmt.Errorf("VERIFICATION_BACKOFF_MAX must not be below VERIFICATION_BACKOFF_BASE"))
	}
	if c.RegistryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REGISTRY_TIMEOUT must be positive"))
	}
	if c.VerificationJobTimeout <= c.RegistryTimeout {
		errs = append(errs, fmt.Errorf("VERIFICATION_JOB_TIMEOUT (%s) must be longer than REGISTRY_TIMEOUT (%s)",
			c.VerificationJobTimeout, c.RegistryTimeout))
	}
	if c.QueueConcurrency < 1 {
		errs = append(errs, fmt.Errorf("QUEUE_CONCURRENCY must be at least 1"))
	}
	switch c.QueueDriver {
	case QueueDriverAsynq, QueueDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_DRIVER %q", c.QueueDriver))
	}
	switch c.RegistryMode {
	case RegistryModeHTTP, RegistryModeMock:
	default:
		errs = append(errs, fmt.Errorf("unknown REGISTRY_MODE %q", c.RegistryMode))
	}
	switch c.AuditSink {
	case AuditSinkPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the postgres audit sink"))
		}
	case AuditSinkKafka:
		if c.KafkaBrokers == "" {
			errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required for the kafka audit sink"))
		}
	case AuditSinkMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIT_SINK %q", c.AuditSink))
	}
	if c.SideEffectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SIDE_EFFECT_TIMEOUT must be positive"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_INTERVAL must be positive"))
	}
	if c.ReconcileStaleAfter <= c.VerificationJobTimeout {
		errs = append(errs, fmt.Errorf("RECONCILE_STALE_AFTER (%s) must be longer than VERIFICATION_JOB_TIMEOUT (%s)",
			c.ReconcileStaleAfter, c.VerificationJobTimeout))
	}
	return errors.Join(errs...)
}

// Brokers splits KAFKA_BROKERS on commas.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
