// Package integration_test runs projections against a SQLite-backed event store
// with SQL checkpoints.
package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/adapters/sqlite"
	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/migrations"
	"github.com/getpup/pupstreams/es/projection"
	"github.com/getpup/pupstreams/es/projection/runner"
	"github.com/getpup/pupstreams/es/sqlstore"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	db.SetMaxOpenConns(1)

	config := migrations.DefaultConfig()
	config.OutputFolder = dir
	config.OutputFilename = "init.sql"
	if err := migrations.GenerateSQLite(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}
	migrationSQL, err := os.ReadFile(filepath.Join(dir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
	return db
}

// orderTotals sums the amount payload field per projection run.
type orderTotals struct {
	name  string
	total float64
	seen  int
	mu    sync.Mutex
}

func (p *orderTotals) Name() string { return p.name }

func (p *orderTotals) Handle(_ context.Context, event es.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	amount, _ := event.Payload["amount"].(float64)
	p.total += amount
	p.seen++
	return nil
}

func (p *orderTotals) snapshot() (float64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.seen
}

func orderEvent(kind string, amount float64) es.Event {
	return es.NewEvent("OrderLine", map[string]interface{}{"amount": amount}).
		WithAddedMetadata("kind", kind)
}

func TestProcessor_SQLiteCheckpoints(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)

	s, err := sqlite.NewStore(db, sqlite.SimpleStreamStrategy{})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Create(ctx, es.NewStream("Order-1",
		orderEvent("line", 10), orderEvent("discount", -2), orderEvent("line", 5),
	)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	checkpoints := sqlite.NewCheckpointStore(db, "")
	config := projection.DefaultProcessorConfig("Order-1")
	config.BatchSize = 2
	config.Matcher = metadata.NewMatcher().WithMetadataMatch("kind", metadata.Equals, "line")

	proj := &orderTotals{name: "order_lines"}
	n, err := projection.NewProcessor(s, checkpoints, config).RunOnce(ctx, proj)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 matching events, got %d", n)
	}
	if total, _ := proj.snapshot(); total != 15 {
		t.Errorf("expected total 15, got %v", total)
	}

	pos, err := checkpoints.GetCheckpoint(ctx, "order_lines")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if pos != 3 {
		t.Errorf("expected checkpoint 3, got %d", pos)
	}

	// A fresh processor resumes from the stored checkpoint.
	if err := s.AppendTo(ctx, "Order-1", []es.Event{orderEvent("line", 7)}); err != nil {
		t.Fatalf("AppendTo failed: %v", err)
	}
	resumed := &orderTotals{name: "order_lines"}
	if _, err := projection.NewProcessor(s, checkpoints, config).RunOnce(ctx, resumed); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if total, seen := resumed.snapshot(); total != 7 || seen != 1 {
		t.Errorf("expected only the appended event, got total %v over %d events", total, seen)
	}
}

func TestCheckpointStore_UsesContextTransaction(t *testing.T) {
	ctx := context.Background()
	db := getTestDB(t)
	checkpoints := sqlite.NewCheckpointStore(db, "")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	txCtx := sqlstore.WithTx(ctx, tx)
	if err := checkpoints.UpdateCheckpoint(txCtx, "p", 9); err != nil {
		t.Fatalf("UpdateCheckpoint failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	pos, err := checkpoints.GetCheckpoint(ctx, "p")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if pos != 0 {
		t.Errorf("expected rolled back checkpoint to be gone, got %d", pos)
	}
}

func TestRunner_RunsProjectionsUntilCancelled(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()

	s, err := sqlite.NewStore(db, sqlite.SimpleStreamStrategy{})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	for _, name := range []es.StreamName{"Order-1", "Order-2"} {
		if err := s.Create(ctx, es.NewStream(name, orderEvent("line", 1), orderEvent("line", 2))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	checkpoints := sqlite.NewCheckpointStore(db, "")
	first := projection.DefaultProcessorConfig("Order-1")
	first.PollInterval = 10 * time.Millisecond
	second := projection.DefaultProcessorConfig("Order-2")
	second.PollInterval = 10 * time.Millisecond

	one := &orderTotals{name: "order_1"}
	two := &orderTotals{name: "order_2"}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- runner.New().Run(runCtx, []runner.ProjectionRunner{
			{Projection: one, Processor: projection.NewProcessor(s, checkpoints, first)},
			{Projection: two, Processor: projection.NewProcessor(s, checkpoints, second)},
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, a := one.snapshot()
		_, b := two.snapshot()
		if a == 2 && b == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if total, seen := one.snapshot(); total != 3 || seen != 2 {
		t.Errorf("order_1: expected total 3 over 2 events, got %v over %d", total, seen)
	}
	if total, seen := two.snapshot(); total != 3 || seen != 2 {
		t.Errorf("order_2: expected total 3 over 2 events, got %v over %d", total, seen)
	}
}
