// Package config provides configuration structures and validation for the
// settlement engine. It handles environment-based configuration for all major
// components including server settings, database connections, the e-invoicing
// gateway, message queues, and operational parameters.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Rapifac     RapifacConfig
	Settlement  SettlementConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// RapifacConfig contains the e-invoicing gateway configuration. AuthURL,
// SalesURL, ClientID, Username and Password are mandatory; a missing value
// fails startup rather than the first emission.
type RapifacConfig struct {
	AuthURL        string
	SalesURL       string
	ClientID       string
	Username       string
	Password       string
	BranchID       string        // Optional branch-id query parameter on submissions
	RequestTimeout time.Duration // Bound on every gateway HTTP call
	TokenLifetime  time.Duration // Provider-declared credential lifetime
	TokenRefresh   time.Duration // Conservative refresh window within the lifetime
}

// RescheduleMode selects how a failed cash-out re-enters SCHEDULED
type RescheduleMode string

const (
	// RescheduleInPlace mutates the failed record back to SCHEDULED
	RescheduleInPlace RescheduleMode = "in_place"
	// RescheduleNewRecord creates a fresh payout referencing the failed one
	RescheduleNewRecord RescheduleMode = "new_record"
)

// SettlementConfig contains marketplace settlement parameters
type SettlementConfig struct {
	CommissionRate float64 // Marketplace commission as a fraction, e.g. 0.05
	RescheduleMode RescheduleMode
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	SettlementTopic   string
	NumPartitions     int // Number of partitions for topics
	ReplicationFactor int // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Topic for Dead Letter Queue
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // Maximum number of retry attempts for outbox messages
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Rapifac gateway config; missing credentials fail startup,
	// not the first emission
	if c.Rapifac.AuthURL == "" {
		validationErrors = append(validationErrors, "RAPIFAC_AUTH_URL is required")
	}
	if c.Rapifac.SalesURL == "" {
		validationErrors = append(validationErrors, "RAPIFAC_SALES_URL is required")
	}
	if c.Rapifac.ClientID == "" {
		validationErrors = append(validationErrors, "RAPIFAC_CLIENT_ID is required")
	}
	if c.Rapifac.Username == "" {
		validationErrors = append(validationErrors, "RAPIFAC_USERNAME is required")
	}
	if c.Rapifac.Password == "" {
		validationErrors = append(validationErrors, "RAPIFAC_PASSWORD is required")
	}
	if c.Rapifac.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, "RAPIFAC_REQUEST_TIMEOUT must be greater than 0")
	}
	if c.Rapifac.TokenLifetime <= 0 {
		validationErrors = append(validationErrors, "RAPIFAC_TOKEN_LIFETIME must be greater than 0")
	}
	if c.Rapifac.TokenRefresh <= 0 || c.Rapifac.TokenRefresh >= c.Rapifac.TokenLifetime {
		validationErrors = append(validationErrors, "RAPIFAC_TOKEN_REFRESH must be greater than 0 and less than RAPIFAC_TOKEN_LIFETIME")
	}

	// Validate Settlement config
	if c.Settlement.CommissionRate < 0 || c.Settlement.CommissionRate >= 1 {
		validationErrors = append(validationErrors, "SETTLEMENT_COMMISSION_RATE must be in [0, 1)")
	}
	if c.Settlement.RescheduleMode != RescheduleInPlace && c.Settlement.RescheduleMode != RescheduleNewRecord {
		validationErrors = append(validationErrors, "CASHOUT_RESCHEDULE_MODE must be 'in_place' or 'new_record'")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.SettlementTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SETTLEMENT_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
