package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/getpup/pupstreams/es"
)

// Checkpoint table columns.
const (
	ColumnProjectionName = "projection_name"
	ColumnLastPosition   = "last_position"
	ColumnUpdatedAt      = "updated_at"
)

// DefaultCheckpointsTable is the table created by the migration generator.
const DefaultCheckpointsTable = "projection_checkpoints"

// CheckpointSQL holds the backend specific parts of the checkpoint upsert.
type CheckpointSQL struct {
	// Now is the expression stamped into updated_at
	Now string

	// Upsert is appended to the insert so a conflicting row is updated instead
	Upsert string
}

// CheckpointStore keeps projection checkpoints in a table.
// It runs on the transaction carried by the context when there is one.
type CheckpointStore struct {
	db      es.DBTX
	dialect Dialect
	sql     CheckpointSQL
	table   string
}

// NewCheckpointStore creates a checkpoint store on table (DefaultCheckpointsTable if empty).
func NewCheckpointStore(db es.DBTX, dialect Dialect, stmts CheckpointSQL, table string) *CheckpointStore {
	if table == "" {
		table = DefaultCheckpointsTable
	}
	return &CheckpointStore{db: db, dialect: dialect, sql: stmts, table: table}
}

func (s *CheckpointStore) conn(ctx context.Context) es.DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

func (s *CheckpointStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.dialect.PlaceholderFormat())
}

// GetCheckpoint returns the last handled row number, or 0 when none is stored.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, projectionName string) (int64, error) {
	q := s.dialect.QuoteIdentifier
	query, args, err := s.builder().
		Select(q(ColumnLastPosition)).
		From(q(s.table)).
		Where(sq.Eq{q(ColumnProjectionName): projectionName}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build checkpoint query: %w", err)
	}

	var checkpoint int64
	err = s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&checkpoint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return checkpoint, nil
}

// UpdateCheckpoint stores position for projectionName.
func (s *CheckpointStore) UpdateCheckpoint(ctx context.Context, projectionName string, position int64) error {
	q := s.dialect.QuoteIdentifier
	insert := s.builder().
		Insert(q(s.table)).
		Columns(q(ColumnProjectionName), q(ColumnLastPosition), q(ColumnUpdatedAt)).
		Values(projectionName, position, sq.Expr(s.sql.Now))
	if s.sql.Upsert != "" {
		insert = insert.Suffix(s.sql.Upsert)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build checkpoint upsert: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, query, args...)
	return err
}
