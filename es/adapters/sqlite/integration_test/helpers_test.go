// Package integration_test contains integration tests for the SQLite adapter.
// SQLite is embedded, so these run with a plain go test.
package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/adapters/sqlite"
	"github.com/getpup/pupstreams/es/migrations"
	"github.com/getpup/pupstreams/es/sqlstore"
	"github.com/getpup/pupstreams/es/store"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbFile := filepath.Join(t.TempDir(), "events.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	// A single connection keeps transactions and plain statements from
	// contending for the database lock.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	setupTestTables(t, db)
	return db
}

func setupTestTables(t *testing.T, db *sql.DB) {
	t.Helper()

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:      tmpDir,
		OutputFilename:    "test.sql",
		EventStreamsTable: "event_streams",
		CheckpointsTable:  "projection_checkpoints",
	}

	if err := migrations.GenerateSQLite(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
}

func newTestStore(t *testing.T, db *sql.DB, strategy sqlstore.PersistenceStrategy, opts ...sqlstore.StoreOption) *sqlstore.Store {
	t.Helper()

	s, err := sqlite.NewStore(db, strategy, opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func userEvent(aggregateID string, version int, name string) es.Event {
	return es.NewEvent("UserCreated", map[string]interface{}{"name": name}).
		WithAddedMetadata(es.MetadataAggregateVersion, version).
		WithAddedMetadata(es.MetadataAggregateID, aggregateID).
		WithAddedMetadata(es.MetadataAggregateType, "user")
}

func simpleEvent(name string, md map[string]interface{}) es.Event {
	e := es.NewEvent(name, map[string]interface{}{"name": name})
	for k, v := range md {
		e = e.WithAddedMetadata(k, v)
	}
	return e
}

func loadAll(t *testing.T, it store.StreamIterator, err error) []es.Event {
	t.Helper()

	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	events, err := store.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("Iteration failed: %v", err)
	}
	return events
}

func positions(t *testing.T, events []es.Event) []int64 {
	t.Helper()

	out := make([]int64, len(events))
	for i, e := range events {
		pos, ok := e.Position()
		if !ok {
			t.Fatalf("event %d has no _position", i)
		}
		out[i] = pos
	}
	return out
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to query sqlite_master: %v", err)
	}
	return n > 0
}

func equalPositions(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// recordingLogger collects messages for assertions.
type recordingLogger struct {
	messages []string
	mu       sync.Mutex
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) Debug(_ context.Context, msg string, _ ...interface{}) { l.record(msg) }
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...interface{})  { l.record(msg) }
func (l *recordingLogger) Error(_ context.Context, msg string, _ ...interface{}) { l.record(msg) }

func (l *recordingLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}
