// Package runner provides optional tooling for running multiple projections concurrently.
// This package is designed to be explicit, deterministic, and CLI-friendly without imposing
// framework behavior or automatic scheduling.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getpup/pupstreams/es/projection"
	"github.com/getpup/pupstreams/es/store"
)

var (
	// ErrNoProjections indicates that no projections were provided to run.
	ErrNoProjections = errors.New("no projections provided")
)

type validator interface {
	Validate() error
}

// ProjectionRunner pairs a projection with its processor.
type ProjectionRunner struct {
	Projection projection.Projection
	Processor  projection.ProcessorRunner
}

// Runner orchestrates multiple projections concurrently.
//
// Example:
//
//	checkpoints := projection.NewMemoryCheckpointStore()
//	orders := projection.NewProcessor(store, checkpoints, projection.DefaultProcessorConfig("Order-1"))
//	users := projection.NewProcessor(store, checkpoints, projection.DefaultProcessorConfig(`Acme\Model\User`))
//
//	err := runner.New().Run(ctx, []runner.ProjectionRunner{
//	    {Projection: &OrderTotals{}, Processor: orders},
//	    {Projection: &UserDirectory{}, Processor: users},
//	})
type Runner struct{}

// New creates a new projection runner.
func New() *Runner {
	return &Runner{}
}

// Run runs multiple projections concurrently until the context is canceled.
// Each projection runs in its own goroutine with its processor.
//
// If a projection returns an error, all other projections are canceled and the error
// is returned. This ensures fail-fast behavior.
func (r *Runner) Run(ctx context.Context, runners []ProjectionRunner) error {
	if len(runners) == 0 {
		return ErrNoProjections
	}

	for i, runner := range runners {
		if runner.Projection == nil {
			return fmt.Errorf("projection at index %d is nil", i)
		}
		if runner.Processor == nil {
			return fmt.Errorf("processor at index %d is nil", i)
		}
		if v, ok := runner.Processor.(validator); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("processor at index %d: %w", i, err)
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(runners))

	for _, runner := range runners {
		wg.Add(1)
		go func(pr ProjectionRunner) {
			defer wg.Done()

			err := pr.Processor.Run(ctx, pr.Projection)

			// Only report errors that aren't from context cancellation
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				errChan <- fmt.Errorf("projection %q failed: %w", pr.Projection.Name(), err)
			}
		}(runner)
	}

	go func() {
		wg.Wait()
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			cancel()
			return err
		}
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunProjectionPartitions runs totalPartitions processors for one projection in this process.
// Each partition keeps its own checkpoint under "<name>#<partition>", since every
// partition skips the events owned by the others.
func RunProjectionPartitions(
	ctx context.Context,
	eventStore store.ReadOnlyEventStore,
	checkpoints projection.CheckpointStore,
	proj projection.Projection,
	config projection.ProcessorConfig,
	totalPartitions int,
) error {
	if totalPartitions < 1 {
		return fmt.Errorf("%w: total partitions must be at least 1, got %d", projection.ErrInvalidPartitionConfig, totalPartitions)
	}

	runners := make([]ProjectionRunner, totalPartitions)
	for i := range runners {
		cfg := config
		cfg.PartitionKey = i
		cfg.TotalPartitions = totalPartitions
		runners[i] = ProjectionRunner{
			Projection: PartitionedProjection{Projection: proj, Partition: i},
			Processor:  projection.NewProcessor(eventStore, checkpoints, cfg),
		}
	}
	return New().Run(ctx, runners)
}

// PartitionedProjection gives each partition of a projection its own checkpoint name.
type PartitionedProjection struct {
	projection.Projection
	Partition int
}

// Name returns the wrapped name suffixed with the partition number.
func (p PartitionedProjection) Name() string {
	return fmt.Sprintf("%s#%d", p.Projection.Name(), p.Partition)
}
