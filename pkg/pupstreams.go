// Package pupstreams provides append-only event streams on relational databases.
//
// This package serves as the main entry point for the pupstreams library.
// The functionality lives in the es package and its subpackages:
//
//	es                   - Core types: events, streams, message factory, logger
//	es/store             - Event store contracts and errors
//	es/sqlstore          - SQL event store engine, stream cursor, matcher compiler
//	es/adapters/sqlite   - SQLite dialect and persistence strategies
//	es/adapters/mysql    - MySQL/MariaDB dialect and persistence strategies
//	es/adapters/postgres - PostgreSQL dialect and persistence strategies
//	es/config            - Config loading and one-call store setup
//	es/projection        - Catch-up projections over a stream
//	es/migrations        - Stream registry migrations
//
// Quick Start:
//
//  1. Generate the registry migration:
//     go run github.com/getpup/pupstreams/cmd/migrate-gen -adapter sqlite -output migrations
//
//  2. Create a store and a stream:
//     store, err := sqlite.NewStore(db, sqlite.SimpleStreamStrategy{})
//     err = store.Create(ctx, es.NewStream("Order-1", events...))
//
//  3. Read it back:
//     it, err := store.Load(ctx, "Order-1", 1, 0, metadata.Matcher{})
//
// See the examples directory for complete working examples.
package pupstreams

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
