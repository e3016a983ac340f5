// Package sqlite provides a SQLite adapter for the event store.
//
// It uses the pure-Go modernc.org/sqlite driver (registered as "sqlite") and
// installs a regexp() SQL function so REGEXP predicates work.
package sqlite

import (
	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/sqlstore"
)

// NewStore creates a SQLite-backed event store.
//
// Example:
//
//	store, err := sqlite.NewStore(db, sqlite.SingleStreamStrategy{},
//	    sqlstore.WithLogger(myLogger),
//	)
func NewStore(db es.Conn, strategy sqlstore.PersistenceStrategy, opts ...sqlstore.StoreOption) (*sqlstore.Store, error) {
	return sqlstore.NewStore(db, Dialect{}, strategy, sqlstore.NewStoreConfig(opts...))
}
