// Package domain defines the core interfaces and types for triage.
package domain

import (
	"context"
	"time"
)

// DetectionStore is the append-only log of detection batches.
// Every connectivity or driver failure is reported as ErrStoreUnavailable.
type DetectionStore interface {
	// AppendBatch atomically stores records as one batch and returns its ID.
	AppendBatch(ctx context.Context, records []DetectionRecord) (string, error)

	// ReadAll returns every batch in insertion order.
	// An empty store yields an empty slice and a nil error.
	ReadAll(ctx context.Context) ([]Batch, error)

	// QueryByField returns records whose field equals value.
	// Supported fields: "disease", "medicationAdvice", "doctorAdvice".
	QueryByField(ctx context.Context, field, value string) ([]DetectionRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific. PostgresURL, when set, overrides the other fields.
	PostgresURL      string `mapstructure:"postgres_url"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
