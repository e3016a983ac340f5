// Package mysql provides a MySQL/MariaDB adapter for the event store.
//
// MySQL commits implicitly around DDL, so Create cannot roll back a created
// table; the store compensates by dropping it and removing the registry row.
// UpdateStreamMetadata relies on matched-row counts: open the connection with
// clientFoundRows=true (config.Open does this) or an unchanged document will
// be reported as a missing stream.
package mysql

import (
	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/sqlstore"
)

// NewStore creates a MySQL-backed event store.
//
// Example:
//
//	store, err := mysql.NewStore(db, mysql.SingleStreamStrategy{},
//	    sqlstore.WithLogger(myLogger),
//	)
func NewStore(db es.Conn, strategy sqlstore.PersistenceStrategy, opts ...sqlstore.StoreOption) (*sqlstore.Store, error) {
	return sqlstore.NewStore(db, Dialect{}, strategy, sqlstore.NewStoreConfig(opts...))
}
