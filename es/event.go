// Package es provides core event sourcing interfaces and types.
package es

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reserved metadata keys.
const (
	// MetadataAggregateVersion is the monotonic per-aggregate sequence.
	// Required by version-aware persistence strategies.
	MetadataAggregateVersion = "_aggregate_version"

	// MetadataAggregateID identifies the aggregate instance.
	MetadataAggregateID = "_aggregate_id"

	// MetadataAggregateType identifies the aggregate type.
	MetadataAggregateType = "_aggregate_type"

	// MetadataPosition is added to loaded events and holds the stored row number.
	MetadataPosition = "_position"
)

// TimestampFormat is the fixed microsecond-precision layout used for created_at.
const TimestampFormat = "2006-01-02T15:04:05.000000"

// Event represents an immutable domain event.
// Events are value objects: the With* methods return modified copies.
type Event struct {
	// CreatedAt is when the event was created
	CreatedAt time.Time

	// Payload is the structured event document
	Payload map[string]interface{}

	// Metadata is a flat map of string keys to scalar or array values
	Metadata map[string]interface{}

	// Name identifies the type of event
	Name string

	// UUID is a globally unique identifier for this event
	UUID uuid.UUID
}

// NewEvent creates an event with a fresh UUID, the current UTC time and empty metadata.
func NewEvent(name string, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		UUID:      uuid.New(),
		Name:      name,
		Payload:   payload,
		Metadata:  map[string]interface{}{},
		CreatedAt: time.Now().UTC(),
	}
}

// WithAddedMetadata returns a copy of the event with key set to value.
func (e Event) WithAddedMetadata(key string, value interface{}) Event {
	md := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// WithMetadata returns a copy of the event with its metadata replaced.
func (e Event) WithMetadata(metadata map[string]interface{}) Event {
	md := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	e.Metadata = md
	return e
}

// AggregateVersion returns the _aggregate_version metadata value as an integer.
func (e Event) AggregateVersion() (int64, bool) {
	v, ok := e.Metadata[MetadataAggregateVersion]
	if !ok || v == nil {
		return 0, false
	}
	return ToInt64(v)
}

// Position returns the stored row number of a loaded event.
func (e Event) Position() (int64, bool) {
	v, ok := e.Metadata[MetadataPosition]
	if !ok || v == nil {
		return 0, false
	}
	return ToInt64(v)
}

// ToInt64 converts numeric metadata values, including those decoded from JSON, to int64.
func ToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), float32(int64(n)) == n
	case float64:
		return int64(n), float64(int64(n)) == n
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// StreamName is the human-readable identity of a stream, e.g. "Order-completed".
type StreamName string

// String returns the stream name.
func (n StreamName) String() string {
	return string(n)
}

// Category returns the substring before the first "-".
// A name without "-" or starting with "-" has no category.
func (n StreamName) Category() (string, bool) {
	pos := strings.Index(string(n), "-")
	if pos <= 0 {
		return "", false
	}
	return string(n)[:pos], true
}

// Stream is a named stream together with its metadata and initial events.
type Stream struct {
	// Metadata is stored in the stream registry
	Metadata map[string]interface{}

	// Name is the stream identity
	Name StreamName

	// Events are appended when the stream is created (may be empty)
	Events []Event
}

// NewStream creates a stream with empty metadata.
func NewStream(name StreamName, events ...Event) Stream {
	return Stream{
		Name:     name,
		Metadata: map[string]interface{}{},
		Events:   events,
	}
}
