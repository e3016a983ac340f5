package sqlstore

import (
	"github.com/getpup/pupstreams/es"
)

// StoreConfig contains configuration for the event store engine.
// Configuration is immutable after construction.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// MessageFactory turns stored rows into events.
	// If nil, es.JSONMessageFactory is used.
	MessageFactory es.MessageFactory

	// EventStreamsTable is the name of the stream registry table
	EventStreamsTable string

	// LoadBatchSize is the maximum number of rows fetched per read round-trip
	LoadBatchSize int

	// DisableTransactionHandling stops the engine from opening, committing or
	// rolling back transactions. Callers pass their own through WithTx.
	DisableTransactionHandling bool
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		EventStreamsTable: "event_streams",
		LoadBatchSize:     10000,
		Logger:            nil, // No logging by default
	}
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreConfig)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) StoreOption {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

// WithMessageFactory sets the factory used to rebuild events from rows.
func WithMessageFactory(factory es.MessageFactory) StoreOption {
	return func(c *StoreConfig) {
		c.MessageFactory = factory
	}
}

// WithEventStreamsTable sets a custom stream registry table name.
func WithEventStreamsTable(tableName string) StoreOption {
	return func(c *StoreConfig) {
		c.EventStreamsTable = tableName
	}
}

// WithLoadBatchSize sets how many rows a single read round-trip fetches.
func WithLoadBatchSize(size int) StoreOption {
	return func(c *StoreConfig) {
		c.LoadBatchSize = size
	}
}

// WithDisableTransactionHandling turns engine-managed transactions off.
func WithDisableTransactionHandling(disable bool) StoreOption {
	return func(c *StoreConfig) {
		c.DisableTransactionHandling = disable
	}
}

// NewStoreConfig creates a new store configuration with functional options.
// It starts with the default configuration and applies the given options.
//
// Example:
//
//	config := sqlstore.NewStoreConfig(
//	    sqlstore.WithLogger(myLogger),
//	    sqlstore.WithLoadBatchSize(500),
//	)
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}
