package postgres

import (
	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/projection"
	"github.com/getpup/pupstreams/es/sqlstore"
)

var _ projection.CheckpointStore = (*sqlstore.CheckpointStore)(nil)

// CheckpointSQL is the PostgreSQL upsert of a projection checkpoint.
var CheckpointSQL = sqlstore.CheckpointSQL{
	Now: "NOW()",
	Upsert: `ON CONFLICT ("projection_name") DO UPDATE SET ` +
		`"last_position" = EXCLUDED."last_position", "updated_at" = EXCLUDED."updated_at"`,
}

// NewCheckpointStore creates a checkpoint store on table ("projection_checkpoints" if empty).
// It runs on the transaction carried by the context when there is one.
func NewCheckpointStore(db es.DBTX, table string) *sqlstore.CheckpointStore {
	return sqlstore.NewCheckpointStore(db, Dialect{}, CheckpointSQL, table)
}
