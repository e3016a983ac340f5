package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
)

// fetchFunc reads at most limit rows starting at from (inclusive) in the
// iterator's direction. The rows are fully read and closed before it returns.
type fetchFunc func(ctx context.Context, from int64, limit int) ([]es.RawEvent, error)

// StreamIterator walks a stream in batches. Each batch is a separate bounded
// query, so no result set stays open between calls to Next.
type StreamIterator struct {
	fetch   fetchFunc
	factory es.MessageFactory
	err     error
	batch   []es.RawEvent
	current es.Event

	currentNo int64
	batchSize int
	count     int
	yielded   int
	lastLimit int
	pos       int
	forward   bool
	done      bool
	closed    bool
}

var _ store.StreamIterator = (*StreamIterator)(nil)

func newStreamIterator(fetch fetchFunc, factory es.MessageFactory, batchSize, count int, forward bool) *StreamIterator {
	return &StreamIterator{
		fetch:     fetch,
		factory:   factory,
		batchSize: batchSize,
		count:     count,
		forward:   forward,
	}
}

// load fetches the batch starting at from, bounded by the remaining count.
func (it *StreamIterator) load(ctx context.Context, from int64) error {
	limit := it.batchSize
	if it.count > 0 {
		if remaining := it.count - it.yielded; remaining < limit {
			limit = remaining
		}
	}

	batch, err := it.fetch(ctx, from, limit)
	if err != nil {
		return err
	}
	it.batch, it.pos, it.lastLimit = batch, 0, limit
	if len(batch) == 0 {
		it.done = true
	}
	return nil
}

// Next implements store.StreamIterator.
func (it *StreamIterator) Next(ctx context.Context) bool {
	if it.closed || it.done || it.err != nil {
		return false
	}
	if it.count > 0 && it.yielded >= it.count {
		it.done = true
		return false
	}

	if it.pos >= len(it.batch) {
		// A short batch means the stream is exhausted.
		if len(it.batch) < it.lastLimit {
			it.done = true
			return false
		}
		next := it.batch[len(it.batch)-1].No + 1
		if !it.forward {
			next = it.batch[len(it.batch)-1].No - 1
		}
		if err := it.load(ctx, next); err != nil {
			it.err = &store.PersistenceError{Op: "load next batch", Err: err}
			return false
		}
		if it.done {
			return false
		}
	}

	raw := it.batch[it.pos]
	it.pos++

	e, err := it.factory.CreateMessage(raw)
	if err != nil {
		it.err = fmt.Errorf("failed to create message for row %d: %w", raw.No, err)
		return false
	}
	it.current = e
	it.currentNo = raw.No
	it.yielded++
	return true
}

// Event implements store.StreamIterator.
func (it *StreamIterator) Event() es.Event {
	return it.current
}

// No implements store.StreamIterator.
func (it *StreamIterator) No() int64 {
	return it.currentNo
}

// Err implements store.StreamIterator.
func (it *StreamIterator) Err() error {
	return it.err
}

// Close implements store.StreamIterator.
func (it *StreamIterator) Close() error {
	it.closed = true
	it.batch = nil
	return nil
}

// timestampFormats lists the created_at renderings drivers hand back as text.
var timestampFormats = []string{
	es.TimestampFormat,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp parses created_at text in UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, format := range timestampFormats {
		t, err := time.ParseInLocation(format, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// timestamp scans created_at whether the driver returns text or time.Time.
type timestamp struct {
	Time time.Time
}

// Scan implements sql.Scanner.
func (t *timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		parsed, err := parseTimestamp(v)
		t.Time = parsed
		return err
	case []byte:
		parsed, err := parseTimestamp(string(v))
		t.Time = parsed
		return err
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported created_at type %T", src)
}
