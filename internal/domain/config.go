package domain

import "time"

// Config holds the complete fraudgen configuration.
type Config struct {
	// Generation parameters
	Generation GenerationConfig `json:"generation" envPrefix:"GEN_"`

	// Where the dataset goes
	Output OutputConfig `json:"output" envPrefix:"OUTPUT_"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" envPrefix:"DB_"`
	Cache      CacheConfig      `json:"cache" envPrefix:"CACHE_"`
	EventBus   EventBusConfig   `json:"eventBus" envPrefix:"BUS_"`
	Kafka      KafkaConfig      `json:"kafka" envPrefix:"KAFKA_"`

	// HTTP server (serve command)
	Server ServerConfig `json:"server" envPrefix:"SERVER_"`

	Logging LoggingConfig `json:"logging" envPrefix:"LOG_"`
}

// GenerationConfig controls one generation run.
type GenerationConfig struct {
	Seed         int64 `json:"seed" env:"SEED"`
	Users        int   `json:"users" env:"USERS"`
	Merchants    int   `json:"merchants" env:"MERCHANTS"`
	Transactions int   `json:"transactions" env:"TRANSACTIONS"`

	// Start and End bound transaction timestamps (RFC3339 or YYYY-MM-DD).
	// Empty values mean the last 90 days through now.
	Start string `json:"start" env:"START"`
	End   string `json:"end" env:"END"`

	// AttemptMultiplier sets the attempt budget as a multiple of the target count.
	AttemptMultiplier int `json:"attemptMultiplier" env:"ATTEMPT_MULTIPLIER"`

	// Workers > 1 enables sharded parallel generation (not reproducible).
	Workers int `json:"workers" env:"WORKERS"`

	// BackfillPoints emits a points record for users without transactions.
	BackfillPoints bool `json:"backfillPoints" env:"BACKFILL_POINTS"`

	// Chronological re-sorts each card's transactions by time and
	// recomputes gaps, so no gap is negative.
	Chronological bool `json:"chronological" env:"CHRONOLOGICAL"`

	// RiskTablePath optionally replaces the built-in risk table.
	RiskTablePath string `json:"riskTablePath" env:"RISK_TABLE"`

	// Checks runs the CEL quality checks over the finished stream.
	Checks bool `json:"checks" env:"CHECKS"`
}

// OutputConfig selects the sinks a dataset is written to.
type OutputConfig struct {
	Dir   string   `json:"dir" env:"DIR"`
	Sinks []string `json:"sinks" env:"SINKS" envSeparator:","`
}

// Sink names
const (
	SinkCSV   = "csv"
	SinkSQL   = "sql"
	SinkBus   = "bus"
	SinkKafka = "kafka"
	SinkCache = "cache"
)

// KafkaConfig holds the Kafka sink settings.
type KafkaConfig struct {
	Brokers          []string `json:"brokers" env:"BROKERS" envSeparator:","`
	TransactionTopic string   `json:"transactionTopic" env:"TRANSACTION_TOPIC"`
	AlertTopic       string   `json:"alertTopic" env:"ALERT_TOPIC"`

	RetryMaxAttempts int           `json:"retryMaxAttempts" env:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelay   time.Duration `json:"retryBaseDelay" env:"RETRY_BASE_DELAY"`
	RetryMaxDelay    time.Duration `json:"retryMaxDelay" env:"RETRY_MAX_DELAY"`
	RetryJitter      bool          `json:"retryJitter" env:"RETRY_JITTER"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" env:"HOST"`
	Port         int    `json:"port" env:"PORT"`
	ReadTimeout  int    `json:"readTimeout" env:"READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"writeTimeout" env:"WRITE_TIMEOUT"` // seconds

	// Limits on POST /datasets requests. Zero takes the default.
	MaxTransactions      int `json:"maxTransactions" env:"MAX_TRANSACTIONS"`
	MaxUsers             int `json:"maxUsers" env:"MAX_USERS"`
	MaxMerchants         int `json:"maxMerchants" env:"MAX_MERCHANTS"`
	MaxAttemptMultiplier int `json:"maxAttemptMultiplier" env:"MAX_ATTEMPT_MULTIPLIER"`
	MaxWorkers           int `json:"maxWorkers" env:"MAX_WORKERS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"FORMAT"` // json, text
}

// DefaultConfig returns the default configuration: a reproducible run
// written to CSV files in ./sample-data.
func DefaultConfig() *Config {
	return &Config{
		Generation: GenerationConfig{
			Seed:              42,
			Users:             1000,
			Merchants:         500,
			Transactions:      50000,
			AttemptMultiplier: 3,
			Workers:           1,
		},
		Output: OutputConfig{
			Dir:   "sample-data",
			Sinks: []string{SinkCSV},
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudgen.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SignalsTTL:   24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Kafka: KafkaConfig{
			Brokers:          []string{"localhost:9092"},
			TransactionTopic: "fraudgen.transactions",
			AlertTopic:       "fraudgen.alerts",
			RetryMaxAttempts: 5,
			RetryBaseDelay:   100 * time.Millisecond,
			RetryMaxDelay:    10 * time.Second,
			RetryJitter:      true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    120,
			MaxTransactions:      100000,
			MaxUsers:             100000,
			MaxMerchants:         50000,
			MaxAttemptMultiplier: 10,
			MaxWorkers:           16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
