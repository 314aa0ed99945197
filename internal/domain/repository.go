package domain

import (
	"context"
	"time"
)

// Repository defines the interface for dataset persistence.
// Every read is scoped by runID so datasets from different runs never mix.
type Repository interface {
	// SaveDataset stores a whole run atomically.
	SaveDataset(ctx context.Context, ds *Dataset) error

	// Run operations
	GetRun(ctx context.Context, runID string) (*Dataset, error)
	ListRuns(ctx context.Context) ([]*Dataset, error)

	// Transaction operations
	GetTransaction(ctx context.Context, runID string, txID string) (*Transaction, error)
	ListTransactionsByCard(ctx context.Context, runID string, cardID string) ([]*Transaction, error)

	// Derived records
	ListAlerts(ctx context.Context, runID string, level RiskLevel) ([]*Alert, error)
	GetPoints(ctx context.Context, runID string, userID string) (*PointsRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" env:"DRIVER"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" env:"SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" env:"POSTGRES_HOST"`
	PostgresPort     int    `json:"postgresPort" env:"POSTGRES_PORT"`
	PostgresUser     string `json:"postgresUser" env:"POSTGRES_USER"`
	PostgresPassword string `json:"-" env:"POSTGRES_PASSWORD"`
	PostgresDB       string `json:"postgresDb" env:"POSTGRES_DB"`
	PostgresSSLMode  string `json:"postgresSslMode" env:"POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"maxIdleConns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" env:"CONN_MAX_LIFETIME"`
}
