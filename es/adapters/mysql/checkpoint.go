package mysql

import (
	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/projection"
	"github.com/getpup/pupstreams/es/sqlstore"
)

var _ projection.CheckpointStore = (*sqlstore.CheckpointStore)(nil)

// CheckpointSQL is the MySQL upsert of a projection checkpoint.
var CheckpointSQL = sqlstore.CheckpointSQL{
	Now: "NOW(6)",
	Upsert: "ON DUPLICATE KEY UPDATE " +
		"`last_position` = VALUES(`last_position`), `updated_at` = VALUES(`updated_at`)",
}

// NewCheckpointStore creates a checkpoint store on table ("projection_checkpoints" if empty).
// It runs on the transaction carried by the context when there is one.
func NewCheckpointStore(db es.DBTX, table string) *sqlstore.CheckpointStore {
	return sqlstore.NewCheckpointStore(db, Dialect{}, CheckpointSQL, table)
}
