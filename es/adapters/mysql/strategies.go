package mysql

import (
	"fmt"

	"github.com/getpup/pupstreams/es/strategy"
)

const tableOptions = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin"

// SimpleStreamStrategy stores each stream in its own table with sequential rows.
type SimpleStreamStrategy struct {
	strategy.SimpleStream
}

// Schema implements sqlstore.PersistenceStrategy.
func (SimpleStreamStrategy) Schema(tableName string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE %s (
    no BIGINT NOT NULL AUTO_INCREMENT,
    event_id CHAR(36) NOT NULL,
    event_name VARCHAR(100) NOT NULL,
    payload JSON NOT NULL,
    metadata JSON NOT NULL,
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (no),
    UNIQUE KEY ix_event_id (event_id)
) %s`, Dialect{}.QuoteIdentifier(tableName), tableOptions)}
}

// SingleStreamStrategy stores all aggregates of one type in a shared table.
// Events must carry _aggregate_version, _aggregate_id and _aggregate_type.
type SingleStreamStrategy struct {
	strategy.SingleStream
}

// Schema implements sqlstore.PersistenceStrategy.
func (SingleStreamStrategy) Schema(tableName string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE %s (
    no BIGINT NOT NULL AUTO_INCREMENT,
    event_id CHAR(36) NOT NULL,
    event_name VARCHAR(100) NOT NULL,
    payload JSON NOT NULL,
    metadata JSON NOT NULL,
    created_at DATETIME(6) NOT NULL,
    aggregate_version BIGINT UNSIGNED NOT NULL,
    aggregate_id VARCHAR(150) NOT NULL,
    aggregate_type VARCHAR(150) NOT NULL,
    PRIMARY KEY (no),
    UNIQUE KEY ix_event_id (event_id),
    UNIQUE KEY ix_unique_event (aggregate_type, aggregate_id, aggregate_version),
    UNIQUE KEY %s (aggregate_type, aggregate_id, no)
) %s`, Dialect{}.QuoteIdentifier(tableName), strategy.QueryAggregateIndex, tableOptions)}
}

// AggregateStreamStrategy stores each aggregate instance in its own table.
// Row numbers equal aggregate versions.
type AggregateStreamStrategy struct {
	strategy.AggregateStream
}

// Schema implements sqlstore.PersistenceStrategy.
func (AggregateStreamStrategy) Schema(tableName string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE %s (
    no BIGINT NOT NULL,
    event_id CHAR(36) NOT NULL,
    event_name VARCHAR(100) NOT NULL,
    payload JSON NOT NULL,
    metadata JSON NOT NULL,
    created_at DATETIME(6) NOT NULL,
    aggregate_version BIGINT UNSIGNED NOT NULL,
    PRIMARY KEY (no),
    UNIQUE KEY ix_event_id (event_id),
    UNIQUE KEY ix_unique_event (aggregate_version)
) %s`, Dialect{}.QuoteIdentifier(tableName), tableOptions)}
}
