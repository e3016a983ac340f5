// Package store provides event store abstractions and the error taxonomy.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/metadata"
)

var (
	// ErrStreamNotFound indicates a read, update, append or delete against a missing stream.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamExistsAlready indicates a create for a stream name that is already registered.
	ErrStreamExistsAlready = errors.New("stream exists already")

	// ErrOptimisticConcurrency indicates a uniqueness violation during append.
	// Reload the aggregate and retry.
	ErrOptimisticConcurrency = errors.New("optimistic concurrency conflict")

	// ErrInvalidPredicate indicates a matcher or regex filter that was rejected.
	ErrInvalidPredicate = errors.New("invalid predicate")

	// ErrConfiguration indicates events that lack data the persistence strategy requires.
	ErrConfiguration = errors.New("configuration error")
)

// PersistenceError is any other non-success backend result.
// It carries the backend error code for diagnostics.
type PersistenceError struct {
	Err  error
	Op   string
	Code string
}

func (e *PersistenceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: error %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StreamIterator is a lazy, one-shot sequence of stored events.
// Usage mirrors sql.Rows:
//
//	defer it.Close()
//	for it.Next(ctx) {
//	    e := it.Event()
//	}
//	if err := it.Err(); err != nil { ... }
type StreamIterator interface {
	// Next advances to the next event, fetching a new batch when needed.
	Next(ctx context.Context) bool

	// Event returns the current event.
	Event() es.Event

	// No returns the row number of the current event.
	No() int64

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases the iterator. Further calls to Next return false.
	Close() error
}

// ReadOnlyEventStore defines the read side of an event store.
type ReadOnlyEventStore interface {
	// Load returns events with no >= fromNumber in ascending order.
	// count <= 0 means no limit; a zero matcher matches everything.
	Load(ctx context.Context, name es.StreamName, fromNumber int64, count int, matcher metadata.Matcher) (StreamIterator, error)

	// LoadReverse returns events with no <= fromNumber in descending order.
	// fromNumber <= 0 starts at the last event.
	LoadReverse(ctx context.Context, name es.StreamName, fromNumber int64, count int, matcher metadata.Matcher) (StreamIterator, error)

	HasStream(ctx context.Context, name es.StreamName) (bool, error)
	FetchStreamMetadata(ctx context.Context, name es.StreamName) (map[string]interface{}, error)

	// FetchStreamNames lists registered streams. An empty filter matches all names.
	FetchStreamNames(ctx context.Context, filter string, matcher metadata.Matcher, limit, offset int) ([]es.StreamName, error)
	FetchStreamNamesRegex(ctx context.Context, pattern string, matcher metadata.Matcher, limit, offset int) ([]es.StreamName, error)

	// FetchCategoryNames lists distinct non-null categories. An empty filter matches all.
	FetchCategoryNames(ctx context.Context, filter string, limit, offset int) ([]string, error)
	FetchCategoryNamesRegex(ctx context.Context, pattern string, limit, offset int) ([]string, error)
}

// EventStore defines a read-write event store.
type EventStore interface {
	ReadOnlyEventStore

	// Create registers the stream, creates its table and appends its initial events.
	// Returns ErrStreamExistsAlready if the name is already registered.
	Create(ctx context.Context, stream es.Stream) error

	// AppendTo appends events in a single insert.
	// Returns ErrStreamNotFound, ErrOptimisticConcurrency, ErrConfiguration or a *PersistenceError.
	AppendTo(ctx context.Context, name es.StreamName, events []es.Event) error

	// Delete removes the registry entry and drops the stream table.
	Delete(ctx context.Context, name es.StreamName) error

	UpdateStreamMetadata(ctx context.Context, name es.StreamName, md map[string]interface{}) error
}

// Collect drains it into a slice and closes it.
func Collect(ctx context.Context, it StreamIterator) ([]es.Event, error) {
	defer it.Close()

	var events []es.Event
	for it.Next(ctx) {
		events = append(events, it.Event())
	}
	if err := it.Err(); err != nil {
		return events, err
	}
	return events, nil
}
