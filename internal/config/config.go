package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/claim-validation/internal/queue"
)

type Config struct {
	DatabaseDSN  string `env:"DATABASE_DSN,required=true"`
	RedisURL     string `env:"REDIS_URL"`
	RabbitMQURL  string `env:"RABBITMQ_URL"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID,default=claim-validation-workers"`
	QueueBackend string `env:"QUEUE_BACKEND,default=rabbitmq"`
	RecordQueue  string `env:"RECORD_QUEUE,default=claim.validation.records"`
	APIPort      int    `env:"API_PORT,default=8080"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	AutoMigrate  bool   `env:"AUTO_MIGRATE,default=false"`

	ValidatorURL     string `env:"VALIDATOR_URL"`
	ValidatorTimeout string `env:"VALIDATOR_TIMEOUT,default=10s"`

	PollInterval            string `env:"POLL_INTERVAL,default=2s"`
	IdleTimeout             string `env:"IDLE_TIMEOUT,default=5m"`
	OrchestratorInterval    string `env:"ORCHESTRATOR_INTERVAL,default=5s"`
	OrchestratorBatchLimit  int    `env:"ORCHESTRATOR_BATCH_LIMIT,default=10"`
	OrchestratorConcurrency int    `env:"ORCHESTRATOR_CONCURRENCY,default=4"`
	MaxStalledRuns          int    `env:"MAX_STALLED_RUNS,default=3"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=8"`
	ClientRateLimit   int `env:"CLIENT_RATE_LIMIT,default=20"`

	// Resolved by Load.
	Backend   queue.Backend
	Durations Durations
}

// Durations holds the parsed duration settings.
type Durations struct {
	ValidatorTimeout     time.Duration
	PollInterval         time.Duration
	IdleTimeout          time.Duration
	OrchestratorInterval time.Duration
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. An empty path means
// ".env", which may be absent.
func LoadDotEnv(path string) error {
	optional := path == ""
	if optional {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// QueueName is the queue or topic that carries pending records. KAFKA_TOPIC
// overrides RECORD_QUEUE on the kafka backend.
func (c *Config) QueueName() string {
	if c.Backend == queue.BackendKafka && strings.TrimSpace(c.KafkaTopic) != "" {
		return strings.TrimSpace(c.KafkaTopic)
	}
	return c.RecordQueue
}

func (c *Config) resolve() error {
	var result *multierror.Error

	backend, err := queue.ParseBackend(c.QueueBackend)
	if err != nil {
		result = multierror.Append(result, err)
	}
	c.Backend = backend

	switch backend {
	case queue.BackendRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			result = multierror.Append(result, fmt.Errorf("RABBITMQ_URL is required for the rabbitmq backend"))
		}
	case queue.BackendKafka:
		if len(c.Brokers()) == 0 {
			result = multierror.Append(result, fmt.Errorf("KAFKA_BROKERS is required for the kafka backend"))
		}
	}

	durations := []struct {
		key   string
		raw   string
		dst   *time.Duration
		allow func(time.Duration) bool
	}{
		{"VALIDATOR_TIMEOUT", c.ValidatorTimeout, &c.Durations.ValidatorTimeout, positive},
		{"POLL_INTERVAL", c.PollInterval, &c.Durations.PollInterval, nonNegative},
		{"IDLE_TIMEOUT", c.IdleTimeout, &c.Durations.IdleTimeout, positive},
		{"ORCHESTRATOR_INTERVAL", c.OrchestratorInterval, &c.Durations.OrchestratorInterval, positive},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", d.key, err))
			continue
		}
		if !d.allow(parsed) {
			result = multierror.Append(result, fmt.Errorf("%s: %s is out of range", d.key, d.raw))
			continue
		}
		*d.dst = parsed
	}

	if c.MaxStalledRuns < 0 {
		result = multierror.Append(result, fmt.Errorf("MAX_STALLED_RUNS must not be negative"))
	}
	if c.ClientRateLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("CLIENT_RATE_LIMIT must be positive"))
	}

	return result.ErrorOrNil()
}

func positive(d time.Duration) bool    { return d > 0 }
func nonNegative(d time.Duration) bool { return d >= 0 }
