package sqlite

import (
	"fmt"

	"github.com/getpup/pupstreams/es/strategy"
)

// SimpleStreamStrategy stores each stream in its own table with sequential rows.
type SimpleStreamStrategy struct {
	strategy.SimpleStream
}

// Schema implements sqlstore.PersistenceStrategy.
func (SimpleStreamStrategy) Schema(tableName string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE %s (
    "no" INTEGER PRIMARY KEY AUTOINCREMENT,
    "event_id" CHAR(36) NOT NULL UNIQUE,
    "event_name" VARCHAR(100) NOT NULL,
    "payload" JSON NOT NULL,
    "metadata" JSON NOT NULL,
    "created_at" DATETIME(6) NOT NULL
)`, Dialect{}.QuoteIdentifier(tableName))}
}

// SingleStreamStrategy stores all aggregates of one type in a shared table.
// Events must carry _aggregate_version, _aggregate_id and _aggregate_type.
type SingleStreamStrategy struct {
	strategy.SingleStream
}

// Schema implements sqlstore.PersistenceStrategy.
func (s SingleStreamStrategy) Schema(tableName string) []string {
	d := Dialect{}
	table := d.QuoteIdentifier(tableName)
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
    "no" INTEGER PRIMARY KEY AUTOINCREMENT,
    "event_id" CHAR(36) NOT NULL UNIQUE,
    "event_name" VARCHAR(100) NOT NULL,
    "payload" JSON NOT NULL,
    "metadata" JSON NOT NULL,
    "created_at" DATETIME(6) NOT NULL,
    "aggregate_version" INTEGER NOT NULL,
    "aggregate_id" VARCHAR(150) NOT NULL,
    "aggregate_type" VARCHAR(150) NOT NULL,
    UNIQUE ("aggregate_type", "aggregate_id", "aggregate_version")
)`, table),
		fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s ("aggregate_type", "aggregate_id", "no")`,
			d.QuoteIdentifier(s.IndexName(tableName)), table),
	}
}

// IndexName implements sqlstore.IndexHinter.
// SQLite index names are global to the database, so they are prefixed by the table.
func (SingleStreamStrategy) IndexName(tableName string) string {
	return tableName + "_" + strategy.QueryAggregateIndex
}

// AggregateStreamStrategy stores each aggregate instance in its own table.
// Row numbers equal aggregate versions.
type AggregateStreamStrategy struct {
	strategy.AggregateStream
}

// Schema implements sqlstore.PersistenceStrategy.
func (AggregateStreamStrategy) Schema(tableName string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE %s (
    "no" INTEGER PRIMARY KEY AUTOINCREMENT,
    "event_id" CHAR(36) NOT NULL UNIQUE,
    "event_name" VARCHAR(100) NOT NULL,
    "payload" JSON NOT NULL,
    "metadata" JSON NOT NULL,
    "created_at" DATETIME(6) NOT NULL,
    "aggregate_version" INTEGER NOT NULL UNIQUE
)`, Dialect{}.QuoteIdentifier(tableName))}
}
