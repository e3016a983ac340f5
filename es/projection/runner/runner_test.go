package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/projection"
	"github.com/getpup/pupstreams/es/store"
)

// mockProcessor blocks until the context ends unless it is told to fail.
type mockProcessor struct {
	err   error
	delay time.Duration
	runs  int32
}

func (m *mockProcessor) Run(ctx context.Context, _ projection.Projection) error {
	atomic.AddInt32(&m.runs, 1)
	if m.err != nil {
		select {
		case <-time.After(m.delay):
			return m.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type mockProjection struct {
	name    string
	handled int32
}

func (m *mockProjection) Name() string {
	return m.name
}

func (m *mockProjection) Handle(_ context.Context, _ es.Event) error {
	atomic.AddInt32(&m.handled, 1)
	return nil
}

// eventsStore serves a fixed set of events for any stream.
type eventsStore struct {
	store.ReadOnlyEventStore
	events []es.Event
}

func (s *eventsStore) Load(_ context.Context, _ es.StreamName, from int64, count int, _ metadata.Matcher) (store.StreamIterator, error) {
	it := &iterator{}
	for i := range s.events {
		no := int64(i + 1)
		if no < from || (count > 0 && len(it.nos) >= count) {
			continue
		}
		it.events = append(it.events, s.events[i])
		it.nos = append(it.nos, no)
	}
	return it, nil
}

type iterator struct {
	events []es.Event
	nos    []int64
	pos    int
}

func (i *iterator) Next(context.Context) bool {
	if i.pos >= len(i.events) {
		return false
	}
	i.pos++
	return true
}

func (i *iterator) Event() es.Event { return i.events[i.pos-1] }
func (i *iterator) No() int64       { return i.nos[i.pos-1] }
func (i *iterator) Err() error      { return nil }
func (i *iterator) Close() error    { return nil }

func TestRunner_Run_NoProjections(t *testing.T) {
	err := New().Run(context.Background(), []ProjectionRunner{})
	if !errors.Is(err, ErrNoProjections) {
		t.Errorf("expected ErrNoProjections, got %v", err)
	}
}

func TestRunner_Run_NilProjection(t *testing.T) {
	err := New().Run(context.Background(), []ProjectionRunner{
		{Projection: nil, Processor: &mockProcessor{}},
	})
	if err == nil || err.Error() != "projection at index 0 is nil" {
		t.Errorf("expected nil projection error, got %v", err)
	}
}

func TestRunner_Run_NilProcessor(t *testing.T) {
	err := New().Run(context.Background(), []ProjectionRunner{
		{Projection: &mockProjection{name: "a"}, Processor: &mockProcessor{}},
		{Projection: &mockProjection{name: "b"}, Processor: nil},
	})
	if err == nil || err.Error() != "processor at index 1 is nil" {
		t.Errorf("expected nil processor error, got %v", err)
	}
}

func TestRunner_Run_InvalidPartitionConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*projection.ProcessorConfig)
	}{
		{name: "negative key", mutate: func(c *projection.ProcessorConfig) { c.PartitionKey = -1 }},
		{name: "zero total", mutate: func(c *projection.ProcessorConfig) { c.TotalPartitions = 0 }},
		{name: "key out of range", mutate: func(c *projection.ProcessorConfig) { c.PartitionKey, c.TotalPartitions = 4, 4 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := projection.DefaultProcessorConfig("Order-1")
			tt.mutate(&config)
			processor := projection.NewProcessor(&eventsStore{}, projection.NewMemoryCheckpointStore(), config)

			err := New().Run(context.Background(), []ProjectionRunner{
				{Projection: &mockProjection{name: "test"}, Processor: processor},
			})
			if !errors.Is(err, projection.ErrInvalidPartitionConfig) {
				t.Errorf("expected ErrInvalidPartitionConfig, got %v", err)
			}
		})
	}
}

func TestRunner_Run_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Run(ctx, []ProjectionRunner{
		{Projection: &mockProjection{name: "test"}, Processor: &mockProcessor{}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_Run_FailFast(t *testing.T) {
	healthy := &mockProcessor{}
	failing := &mockProcessor{err: errors.New("boom"), delay: 10 * time.Millisecond}

	done := make(chan error, 1)
	go func() {
		done <- New().Run(context.Background(), []ProjectionRunner{
			{Projection: &mockProjection{name: "healthy"}, Processor: healthy},
			{Projection: &mockProjection{name: "failing"}, Processor: failing},
		})
	}()

	select {
	case err := <-done:
		if err == nil || err.Error() != `projection "failing" failed: boom` {
			t.Errorf("expected failing projection error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after a projection failed")
	}
}

func TestRunProjectionPartitions_InvalidTotalPartitions(t *testing.T) {
	for _, total := range []int{0, -1} {
		err := RunProjectionPartitions(context.Background(), &eventsStore{}, projection.NewMemoryCheckpointStore(),
			&mockProjection{name: "test"}, projection.DefaultProcessorConfig("Order-1"), total)
		if !errors.Is(err, projection.ErrInvalidPartitionConfig) {
			t.Errorf("total %d: expected ErrInvalidPartitionConfig, got %v", total, err)
		}
	}
}

func TestRunProjectionPartitions_HandlesEveryEventOnce(t *testing.T) {
	events := make([]es.Event, 40)
	for i := range events {
		events[i] = es.NewEvent("E", nil).WithAddedMetadata(es.MetadataAggregateID, uuid.NewString())
	}
	checkpoints := projection.NewMemoryCheckpointStore()
	proj := &mockProjection{name: "totals"}

	config := projection.DefaultProcessorConfig("Order-1")
	config.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunProjectionPartitions(ctx, &eventsStore{events: events}, checkpoints, proj, config, 4)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !allCaughtUp(checkpoints, "totals", 4, 40) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&proj.handled); got != 40 {
		t.Errorf("expected 40 handled events, got %d", got)
	}
}

func allCaughtUp(cs projection.CheckpointStore, name string, partitions int, want int64) bool {
	for i := 0; i < partitions; i++ {
		pos, _ := cs.GetCheckpoint(context.Background(), PartitionedProjection{Projection: &mockProjection{name: name}, Partition: i}.Name())
		if pos != want {
			return false
		}
	}
	return true
}

func TestPartitionedProjection_Name(t *testing.T) {
	p := PartitionedProjection{Projection: &mockProjection{name: "totals"}, Partition: 2}
	if p.Name() != "totals#2" {
		t.Errorf("expected totals#2, got %s", p.Name())
	}
}

func TestNew(t *testing.T) {
	if New() == nil {
		t.Fatal("New returned nil")
	}
}
