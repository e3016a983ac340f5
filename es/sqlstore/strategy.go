package sqlstore

import "github.com/getpup/pupstreams/es"

// PersistenceStrategy maps a stream onto a physical table.
// Implementations are stateless and safe to share between stores.
type PersistenceStrategy interface {
	// TableName derives the table name from the stream name. It must be pure.
	TableName(name es.StreamName) string

	// Schema returns the DDL statements creating the table. Executing them
	// against an existing table is expected to fail.
	Schema(tableName string) []string

	// Columns returns the insert column list in row-tuple order.
	Columns() []string

	// Flatten returns len(Columns()) values per event, in column order.
	Flatten(events []es.Event) ([]interface{}, error)
}

// IndexHinter is implemented by strategies whose reads benefit from forcing an index.
type IndexHinter interface {
	IndexName(tableName string) string
}
