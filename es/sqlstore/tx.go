package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/store"
)

type txKey struct{}

// WithTx returns a context carrying tx. The store runs its statements on tx and
// never commits or rolls it back; that stays with the caller.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction set by WithTx.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// txScope is the transaction an operation runs in. owned is set only when the
// store opened it, and only then does the store commit or roll back.
type txScope struct {
	tx    *sql.Tx
	owned bool
}

func (s *Store) transactional() bool {
	return !s.config.DisableTransactionHandling && s.dialect.Capabilities().Transactions
}

// begin opens a transaction unless one is already open or transaction handling is off.
func (s *Store) begin(ctx context.Context) (context.Context, txScope, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return ctx, txScope{tx: tx}, nil
	}
	if !s.transactional() {
		return ctx, txScope{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, txScope{}, s.persistenceError("begin transaction", err)
	}
	return WithTx(ctx, tx), txScope{tx: tx, owned: true}, nil
}

func (s *Store) commit(ctx context.Context, scope txScope) error {
	if !scope.owned {
		return nil
	}
	if err := scope.tx.Commit(); err != nil {
		return s.persistenceError("commit transaction", err)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, scope txScope) {
	if !scope.owned {
		return
	}
	if err := scope.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "rollback failed", "error", err)
		}
	}
}

// conn returns the ambient transaction or the connection.
func (s *Store) conn(ctx context.Context) es.DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) persistenceError(op string, err error) error {
	return &store.PersistenceError{Op: op, Code: s.dialect.ErrorCode(err), Err: err}
}
