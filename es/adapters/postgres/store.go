// Package postgres provides a PostgreSQL adapter for the event store.
//
// Errors from both lib/pq and the pgx stdlib driver are classified, so either
// driver can back the *sql.DB.
package postgres

import (
	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/sqlstore"
)

// NewStore creates a PostgreSQL-backed event store.
//
// Example:
//
//	store, err := postgres.NewStore(db, postgres.SingleStreamStrategy{},
//	    sqlstore.WithLogger(myLogger),
//	)
func NewStore(db es.Conn, strategy sqlstore.PersistenceStrategy, opts ...sqlstore.StoreOption) (*sqlstore.Store, error) {
	return sqlstore.NewStore(db, Dialect{}, strategy, sqlstore.NewStoreConfig(opts...))
}
