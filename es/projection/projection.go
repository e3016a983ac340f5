// Package projection provides catch-up projection processing over a single stream.
// Processors only use the read side of the event store, so any
// store.ReadOnlyEventStore works.
package projection

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/store"
)

var (
	// ErrProjectionStopped indicates the projection was stopped due to an error.
	ErrProjectionStopped = errors.New("projection stopped")

	// ErrInvalidPartitionConfig indicates PartitionKey or TotalPartitions are out of range.
	ErrInvalidPartitionConfig = errors.New("invalid partition configuration")
)

// Projection defines the interface for event projection handlers.
type Projection interface {
	// Name returns the unique name of this projection.
	// This name is used for checkpoint tracking.
	Name() string

	// Handle processes a single event.
	// Return an error to stop projection processing.
	Handle(ctx context.Context, event es.Event) error
}

// ProcessorRunner is what the runner package drives.
type ProcessorRunner interface {
	Run(ctx context.Context, projection Projection) error
}

// CheckpointStore persists the last handled row number per projection.
// A projection that never ran has checkpoint 0.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, projectionName string) (int64, error)
	UpdateCheckpoint(ctx context.Context, projectionName string, position int64) error
}

// MemoryCheckpointStore keeps checkpoints in memory. It is safe for concurrent use.
type MemoryCheckpointStore struct {
	checkpoints map[string]int64
	mu          sync.Mutex
}

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: make(map[string]int64)}
}

// GetCheckpoint implements CheckpointStore.
func (m *MemoryCheckpointStore) GetCheckpoint(_ context.Context, projectionName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[projectionName], nil
}

// UpdateCheckpoint implements CheckpointStore.
func (m *MemoryCheckpointStore) UpdateCheckpoint(_ context.Context, projectionName string, position int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[projectionName] = position
	return nil
}

// PartitionStrategy defines how events are partitioned across projection instances.
type PartitionStrategy interface {
	// ShouldProcess returns true if this projection instance should process the given event.
	// partitionKey identifies this projection instance (e.g., 0 for first of 4 workers).
	ShouldProcess(aggregateID string, partitionKey int, totalPartitions int) bool
}

// HashPartitionStrategy implements deterministic hash-based partitioning.
// Events are distributed across partitions based on a hash of the _aggregate_id
// metadata, so all events of one aggregate go to the same partition.
type HashPartitionStrategy struct{}

// ShouldProcess implements PartitionStrategy using FNV-1a hashing.
func (HashPartitionStrategy) ShouldProcess(aggregateID string, partitionKey int, totalPartitions int) bool {
	if totalPartitions <= 1 {
		return true
	}

	h := fnv.New32a()
	h.Write([]byte(aggregateID))
	partition := int(h.Sum32() % uint32(totalPartitions))
	return partition == partitionKey
}

// ProcessorConfig configures a projection processor.
type ProcessorConfig struct {
	// Logger is an optional logger for observability.
	Logger es.Logger

	// PartitionStrategy determines which events this processor handles
	PartitionStrategy PartitionStrategy

	// Stream is the stream to project
	Stream es.StreamName

	// Matcher narrows the events handed to the projection
	Matcher metadata.Matcher

	// BatchSize is the number of events to read per batch
	BatchSize int

	// PollInterval is how long Run waits once caught up
	PollInterval time.Duration

	// PartitionKey identifies this processor instance (0-indexed)
	PartitionKey int

	// TotalPartitions is the total number of processor instances
	TotalPartitions int
}

// DefaultProcessorConfig returns the default configuration for stream.
func DefaultProcessorConfig(stream es.StreamName) ProcessorConfig {
	return ProcessorConfig{
		Stream:            stream,
		BatchSize:         100,
		PollInterval:      time.Second,
		PartitionKey:      0,
		TotalPartitions:   1,
		PartitionStrategy: HashPartitionStrategy{},
	}
}

// Validate checks the stream name and the partition settings.
func (c *ProcessorConfig) Validate() error {
	if c.Stream == "" {
		return errors.New("processor stream is required")
	}
	if c.TotalPartitions < 1 {
		return fmt.Errorf("%w: total partitions must be at least 1, got %d", ErrInvalidPartitionConfig, c.TotalPartitions)
	}
	if c.PartitionKey < 0 || c.PartitionKey >= c.TotalPartitions {
		return fmt.Errorf("%w: partition key %d out of range [0, %d)", ErrInvalidPartitionConfig, c.PartitionKey, c.TotalPartitions)
	}
	return nil
}

// Processor feeds one stream into projections and tracks checkpoints.
type Processor struct {
	eventStore  store.ReadOnlyEventStore
	checkpoints CheckpointStore
	config      ProcessorConfig
}

var _ ProcessorRunner = (*Processor)(nil)

// Config returns the processor configuration.
func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Validate reports whether the processor configuration is usable.
func (p *Processor) Validate() error {
	return p.config.Validate()
}

// NewProcessor creates a new projection processor.
func NewProcessor(eventStore store.ReadOnlyEventStore, checkpoints CheckpointStore, config ProcessorConfig) *Processor {
	if config.BatchSize < 1 {
		config.BatchSize = 100
	}
	if config.PartitionStrategy == nil {
		config.PartitionStrategy = HashPartitionStrategy{}
	}
	return &Processor{
		eventStore:  eventStore,
		checkpoints: checkpoints,
		config:      config,
	}
}

// RunOnce processes batches until the projection has caught up with the stream.
// It returns the number of events handed to the projection.
func (p *Processor) RunOnce(ctx context.Context, projection Projection) (int, error) {
	handled := 0
	for {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		read, n, err := p.processBatch(ctx, projection)
		handled += n
		if err != nil {
			return handled, err
		}
		if read < p.config.BatchSize {
			return handled, nil
		}
	}
}

// Run processes events for the given projection until the context is cancelled.
// A stream that does not exist yet is polled like an empty one.
// Returns ErrProjectionStopped if the projection handler returns an error.
func (p *Processor) Run(ctx context.Context, projection Projection) error {
	if err := p.config.Validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(p.pollInterval())
	defer ticker.Stop()

	for {
		_, err := p.RunOnce(ctx, projection)
		switch {
		case err == nil, errors.Is(err, store.ErrStreamNotFound):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("%w: %v", ErrProjectionStopped, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Processor) pollInterval() time.Duration {
	if p.config.PollInterval <= 0 {
		return time.Second
	}
	return p.config.PollInterval
}

// processBatch returns how many rows were read and how many were handled.
func (p *Processor) processBatch(ctx context.Context, projection Projection) (int, int, error) {
	checkpoint, err := p.checkpoints.GetCheckpoint(ctx, projection.Name())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	it, err := p.eventStore.Load(ctx, p.config.Stream, checkpoint+1, p.config.BatchSize, p.config.Matcher)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read events: %w", err)
	}
	defer it.Close()

	var (
		lastPosition  int64
		read, handled int
	)
	for it.Next(ctx) {
		read++
		event := it.Event()
		lastPosition = it.No()

		aggregateID, _ := event.Metadata[es.MetadataAggregateID].(string)
		if !p.config.PartitionStrategy.ShouldProcess(aggregateID, p.config.PartitionKey, p.config.TotalPartitions) {
			continue
		}

		if err := projection.Handle(ctx, event); err != nil {
			return read, handled, fmt.Errorf("projection handler error at position %d: %w", lastPosition, err)
		}
		handled++
	}
	if err := it.Err(); err != nil {
		return read, handled, fmt.Errorf("failed to read events: %w", err)
	}

	if lastPosition > 0 {
		if err := p.checkpoints.UpdateCheckpoint(ctx, projection.Name(), lastPosition); err != nil {
			return read, handled, fmt.Errorf("failed to update checkpoint: %w", err)
		}
		if p.config.Logger != nil {
			p.config.Logger.Debug(ctx, "projection batch processed",
				"projection", projection.Name(),
				"stream", p.config.Stream,
				"read", read,
				"handled", handled,
				"checkpoint", lastPosition)
		}
	}
	return read, handled, nil
}
