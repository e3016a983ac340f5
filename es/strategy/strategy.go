// Package strategy holds the dialect-independent half of the persistence strategies:
// table name derivation, column lists and row flattening.
// Adapter packages embed these types and add the DDL for their backend.
package strategy

import (
	"crypto/sha1" //nolint:gosec // table names only need a stable, fixed-width digest
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
)

// Column names shared by every stream table.
const (
	ColumnNo               = "no"
	ColumnEventID          = "event_id"
	ColumnEventName        = "event_name"
	ColumnPayload          = "payload"
	ColumnMetadata         = "metadata"
	ColumnCreatedAt        = "created_at"
	ColumnAggregateVersion = "aggregate_version"
	ColumnAggregateID      = "aggregate_id"
	ColumnAggregateType    = "aggregate_type"
)

// QueryAggregateIndex is the index over (aggregate_type, aggregate_id, no)
// used for per-aggregate range scans.
const QueryAggregateIndex = "ix_query_aggregate"

// TableName derives the physical table name: "_" followed by the hex SHA-1 of the stream name.
// The result is pure and stable for a given name.
func TableName(name es.StreamName) string {
	sum := sha1.Sum([]byte(name))
	return "_" + hex.EncodeToString(sum[:])
}

// SimpleStream lays out one table per stream with sequential rows.
type SimpleStream struct{}

// TableName implements sqlstore.PersistenceStrategy.
func (SimpleStream) TableName(name es.StreamName) string {
	return TableName(name)
}

// Columns implements sqlstore.PersistenceStrategy.
func (SimpleStream) Columns() []string {
	return []string{ColumnEventID, ColumnEventName, ColumnPayload, ColumnMetadata, ColumnCreatedAt}
}

// Flatten implements sqlstore.PersistenceStrategy.
func (SimpleStream) Flatten(events []es.Event) ([]interface{}, error) {
	data := make([]interface{}, 0, len(events)*5)
	for i := range events {
		common, err := commonValues(&events[i])
		if err != nil {
			return nil, err
		}
		data = append(data, common...)
	}
	return data, nil
}

// SingleStream lays out one shared table per aggregate type; uniqueness of
// (aggregate_type, aggregate_id, aggregate_version) is the concurrency gate.
type SingleStream struct{}

// TableName implements sqlstore.PersistenceStrategy.
func (SingleStream) TableName(name es.StreamName) string {
	return TableName(name)
}

// Columns implements sqlstore.PersistenceStrategy.
func (SingleStream) Columns() []string {
	return []string{
		ColumnEventID, ColumnEventName, ColumnPayload, ColumnMetadata, ColumnCreatedAt,
		ColumnAggregateVersion, ColumnAggregateID, ColumnAggregateType,
	}
}

// Flatten implements sqlstore.PersistenceStrategy.
// Every event needs _aggregate_version, _aggregate_id and _aggregate_type metadata.
func (SingleStream) Flatten(events []es.Event) ([]interface{}, error) {
	data := make([]interface{}, 0, len(events)*8)
	for i := range events {
		e := &events[i]
		version, err := requireVersion(e)
		if err != nil {
			return nil, err
		}
		aggregateID, err := requireString(e, es.MetadataAggregateID)
		if err != nil {
			return nil, err
		}
		aggregateType, err := requireString(e, es.MetadataAggregateType)
		if err != nil {
			return nil, err
		}
		common, err := commonValues(e)
		if err != nil {
			return nil, err
		}
		data = append(data, common...)
		data = append(data, version, aggregateID, aggregateType)
	}
	return data, nil
}

// IndexName returns the per-aggregate range scan index.
func (SingleStream) IndexName(_ string) string {
	return QueryAggregateIndex
}

// AggregateStream lays out one table per aggregate instance.
// The row number is the aggregate version, so positions equal versions and a
// duplicate version collides on the primary key.
type AggregateStream struct{}

// TableName implements sqlstore.PersistenceStrategy.
func (AggregateStream) TableName(name es.StreamName) string {
	return TableName(name)
}

// Columns implements sqlstore.PersistenceStrategy.
func (AggregateStream) Columns() []string {
	return []string{
		ColumnNo, ColumnEventID, ColumnEventName, ColumnPayload, ColumnMetadata, ColumnCreatedAt,
		ColumnAggregateVersion,
	}
}

// Flatten implements sqlstore.PersistenceStrategy.
// Every event needs _aggregate_version metadata.
func (AggregateStream) Flatten(events []es.Event) ([]interface{}, error) {
	data := make([]interface{}, 0, len(events)*7)
	for i := range events {
		e := &events[i]
		version, err := requireVersion(e)
		if err != nil {
			return nil, err
		}
		common, err := commonValues(e)
		if err != nil {
			return nil, err
		}
		data = append(data, version)
		data = append(data, common...)
		data = append(data, version)
	}
	return data, nil
}

// commonValues returns event_id, event_name, payload, metadata and created_at.
func commonValues(e *es.Event) ([]interface{}, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of event %s: %w", e.UUID, err)
	}

	md := e.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata of event %s: %w", e.UUID, err)
	}

	return []interface{}{
		e.UUID.String(),
		e.Name,
		string(payloadJSON),
		string(metadataJSON),
		e.CreatedAt.UTC().Format(es.TimestampFormat),
	}, nil
}

func requireVersion(e *es.Event) (int64, error) {
	if _, ok := e.Metadata[es.MetadataAggregateVersion]; !ok {
		return 0, fmt.Errorf("%w: %s is missing in metadata of event %s", store.ErrConfiguration, es.MetadataAggregateVersion, e.UUID)
	}
	version, ok := e.AggregateVersion()
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer in metadata of event %s", store.ErrConfiguration, es.MetadataAggregateVersion, e.UUID)
	}
	return version, nil
}

func requireString(e *es.Event, key string) (string, error) {
	v, ok := e.Metadata[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s is missing in metadata of event %s", store.ErrConfiguration, key, e.UUID)
	}
	return fmt.Sprint(v), nil
}
