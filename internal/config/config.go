package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/voxleads/lead-relay/pkg/logger"
)

var config *Config

// Config holds every env-sourced setting of the relay. Only this struct may
// be used to read configuration; no direct env access elsewhere.
type Config struct {
	AppEnv  string `env:"APP_ENV" default:"dev"`
	AppName string `env:"APP_NAME" default:"lead_relay"`
	AppDebug bool  `env:"APP_DEBUG" default:"1"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisUsername  string `env:"REDIS_USER"`
	RedisPassword  string `env:"REDIS_PASS"`
	RedisDatabase  int    `env:"REDIS_DATABASE"`
	RedisKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace   string `env:"PROM_NAMESPACE" default:"lead_relay"`
	MetricsAddr     string `env:"METRICS_ADDR" default:":9100"`

	QueueName              string        `env:"QUEUE_NAME" default:"delivery:jobs"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP" default:"delivery-workers"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME" default:"worker"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" default:"30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL" default:"1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE" default:"10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`

	// Delivery retry policy. Attempts are bounded; delay grows as
	// base * 2^(attempt-1).
	DeliveryMaxAttempts   int           `env:"DELIVERY_MAX_ATTEMPTS" default:"5"`
	DeliveryBackoffBase   time.Duration `env:"DELIVERY_BACKOFF_BASE" default:"10s"`
	DeliveryConcurrency   int           `env:"DELIVERY_CONCURRENCY" default:"5"`
	DeliveryAdapterTimeout time.Duration `env:"DELIVERY_ADAPTER_TIMEOUT" default:"15s"`

	MailRelayURL string `env:"MAIL_RELAY_URL"`
	MailFrom     string `env:"MAIL_FROM" default:"leads@voxleads.io"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS"`
	KafkaAuditTopic string   `env:"KAFKA_AUDIT_TOPIC" default:"lead-relay.audit"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrap(err, "failed to load configuration file "+path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration. Tests use it to inject settings
// without touching the environment.
func Set(c *Config) {
	config = c
}
