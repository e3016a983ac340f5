// Package es provides core event sourcing infrastructure.
//
// # Overview
//
// This package defines the fundamental types shared by the event store:
//   - Event: immutable domain events with a payload document and flat metadata
//   - StreamName, Stream: named, append-only sequences of events
//   - DBTX, Conn: database abstractions (satisfied by *sql.DB and *sql.Tx)
//   - MessageFactory: turns stored rows back into events
//   - Logger: optional observability hook
//
// # Design Philosophy
//
// Clean Architecture: Core types are database-agnostic. SQL concerns live in
// the sqlstore package, dialect concerns in the adapter packages.
//
// Immutability: Events are value objects. They don't have a position until
// persisted and assigned a row number (no) by the backend.
//
// # Quick Start
//
// 1. Generate the stream registry table:
//
//	go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter sqlite -output migrations
//
// 2. Apply the migration to your database
//
// 3. Create an event store with a persistence strategy:
//
//	import (
//	    "github.com/getpup/pupstreams/es"
//	    "github.com/getpup/pupstreams/es/adapters/sqlite"
//	    "github.com/getpup/pupstreams/es/metadata"
//	)
//
//	store, err := sqlite.NewStore(db, sqlite.SingleStreamStrategy{})
//
// 4. Create a stream and append events:
//
//	event := es.NewEvent("UserCreated", map[string]interface{}{"name": "Alex"}).
//	    WithAddedMetadata(es.MetadataAggregateVersion, 1).
//	    WithAddedMetadata(es.MetadataAggregateID, userID).
//	    WithAddedMetadata(es.MetadataAggregateType, "user")
//
//	err = store.Create(ctx, es.NewStream("User-"+userID))
//	err = store.AppendTo(ctx, "User-"+userID, []es.Event{event})
//
// 5. Replay a stream:
//
//	it, err := store.Load(ctx, "User-"+userID, 1, 0, metadata.Matcher{})
//	defer it.Close()
//	for it.Next(ctx) {
//	    event := it.Event()
//	}
//
// # Optimistic Concurrency
//
// The store never locks. Version-aware strategies put a unique constraint on
// the aggregate version; two writers racing for the same version both reach
// the database and exactly one insert fails. That failure is returned as
// store.ErrOptimisticConcurrency and the whole batch is rolled back.
// Retrying with fresh state is the caller's job.
//
// # Database Schema
//
// Each stream lives in its own table named "_" + sha1(stream name):
//   - no: backend-assigned, strictly increasing row number
//   - event_id: UUID text, unique
//   - event_name, payload (JSON), metadata (JSON)
//   - created_at: "YYYY-MM-DDTHH:MM:SS.ffffff"
//
// Version-aware strategies add aggregate columns. The registry table
// (event_streams by default) maps stream names to tables and categories.
package es
