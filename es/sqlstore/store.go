// Package sqlstore implements the relational event store engine. It is backend
// neutral: a Dialect supplies the SQL differences and a PersistenceStrategy
// decides how streams map onto tables.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"

	sq "github.com/Masterminds/squirrel"

	"github.com/getpup/pupstreams/es"
	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/strategy"
)

// Registry table columns.
const (
	ColumnRealStreamName = "real_stream_name"
	ColumnStreamName     = "stream_name"
	ColumnCategory       = "category"
)

// defaultFetchLimit applies when a fetch is called with limit <= 0.
const defaultFetchLimit = 20

// Store is a relational event store.
type Store struct {
	db       es.Conn
	dialect  Dialect
	strategy PersistenceStrategy
	config   StoreConfig
}

var _ store.EventStore = (*Store)(nil)

// NewStore creates an event store on db.
func NewStore(db es.Conn, dialect Dialect, persistence PersistenceStrategy, config StoreConfig) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection is required", store.ErrConfiguration)
	}
	if dialect == nil {
		return nil, fmt.Errorf("%w: dialect is required", store.ErrConfiguration)
	}
	if persistence == nil {
		return nil, fmt.Errorf("%w: persistence strategy is required", store.ErrConfiguration)
	}
	if config.LoadBatchSize < 1 {
		return nil, fmt.Errorf("%w: load batch size must be at least 1, got %d", store.ErrConfiguration, config.LoadBatchSize)
	}
	if config.EventStreamsTable == "" {
		return nil, fmt.Errorf("%w: event streams table name is required", store.ErrConfiguration)
	}
	if config.MessageFactory == nil {
		config.MessageFactory = es.JSONMessageFactory{}
	}

	return &Store{
		db:       db,
		dialect:  dialect,
		strategy: persistence,
		config:   config,
	}, nil
}

// Config returns the effective configuration.
func (s *Store) Config() StoreConfig {
	return s.config
}

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) q(name string) string {
	return s.dialect.QuoteIdentifier(name)
}

func (s *Store) quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = s.q(name)
	}
	return out
}

func (s *Store) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.dialect.PlaceholderFormat())
}

func streamNotFound(name es.StreamName) error {
	return fmt.Errorf("%w: %s", store.ErrStreamNotFound, name)
}

// Create implements store.EventStore.
// The registry row and the table are created first, then the initial events
// are appended, all inside one transaction when the backend allows it.
func (s *Store) Create(ctx context.Context, stream es.Stream) error {
	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "create stream starting",
			"stream", stream.Name,
			"event_count", len(stream.Events))
	}

	ctx, scope, err := s.begin(ctx)
	if err != nil {
		return err
	}

	if err := s.addStreamToStreamsTable(ctx, stream); err != nil {
		s.rollback(ctx, scope)
		return err
	}

	tableName := s.strategy.TableName(stream.Name)
	if executed, err := s.createSchemaFor(ctx, tableName); err != nil {
		s.rollback(ctx, scope)
		s.compensateCreate(ctx, scope, stream.Name, tableName, executed)
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "create stream schema failed",
				"stream", stream.Name,
				"table", tableName,
				"error", err)
		}
		return s.persistenceError("create stream schema", err)
	}

	if err := s.AppendTo(ctx, stream.Name, stream.Events); err != nil {
		s.rollback(ctx, scope)
		return err
	}

	if err := s.commit(ctx, scope); err != nil {
		return err
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "stream created",
			"stream", stream.Name,
			"table", tableName)
	}
	return nil
}

func (s *Store) addStreamToStreamsTable(ctx context.Context, stream es.Stream) error {
	md := stream.Metadata
	if md == nil {
		md = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode metadata of stream %s: %w", stream.Name, err)
	}

	var category interface{}
	if c, ok := stream.Name.Category(); ok {
		category = c
	}

	query, args, err := s.builder().
		Insert(s.q(s.config.EventStreamsTable)).
		Columns(s.quoteAll([]string{ColumnRealStreamName, ColumnStreamName, strategy.ColumnMetadata, ColumnCategory})...).
		Values(stream.Name.String(), s.strategy.TableName(stream.Name), string(metadataJSON), category).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build registry insert: %w", err)
	}

	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		if s.dialect.ClassifyError(err) == ErrorUniqueViolation {
			return fmt.Errorf("%w: %s", store.ErrStreamExistsAlready, stream.Name)
		}
		return s.persistenceError("register stream (is the event streams table set up?)", err)
	}
	return nil
}

// createSchemaFor runs the strategy DDL and reports how many statements succeeded.
func (s *Store) createSchemaFor(ctx context.Context, tableName string) (int, error) {
	executed := 0
	for _, statement := range s.strategy.Schema(tableName) {
		if _, err := s.conn(ctx).ExecContext(ctx, statement); err != nil {
			return executed, err
		}
		executed++
	}
	return executed, nil
}

// compensateCreate undoes what a failed create left behind when DDL escaped the
// transaction. The table is dropped only if this call created it: a failing
// first statement means the table belongs to someone else.
func (s *Store) compensateCreate(ctx context.Context, scope txScope, name es.StreamName, tableName string, executed int) {
	runner := es.DBTX(s.db)
	if scope.tx != nil && !scope.owned {
		runner = scope.tx
	}
	ctx = context.WithoutCancel(ctx)

	if executed > 0 {
		if _, err := runner.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.q(tableName)); err != nil && s.config.Logger != nil {
			s.config.Logger.Error(ctx, "failed to drop table after create failure", "table", tableName, "error", err)
		}
	}

	query, args, err := s.builder().
		Delete(s.q(s.config.EventStreamsTable)).
		Where(sq.Eq{s.q(ColumnRealStreamName): name.String()}).
		ToSql()
	if err != nil {
		return
	}
	if _, err := runner.ExecContext(ctx, query, args...); err != nil && s.config.Logger != nil {
		s.config.Logger.Error(ctx, "failed to remove registry row after create failure", "stream", name, "error", err)
	}
}

// AppendTo implements store.EventStore.
// All events go into one multi-row insert, so a batch is stored completely or not at all.
func (s *Store) AppendTo(ctx context.Context, name es.StreamName, events []es.Event) error {
	if len(events) == 0 {
		return nil
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "append starting",
			"stream", name,
			"event_count", len(events))
	}

	data, err := s.strategy.Flatten(events)
	if err != nil {
		return err
	}

	columns := s.strategy.Columns()
	insert := s.builder().
		Insert(s.q(s.strategy.TableName(name))).
		Columns(s.quoteAll(columns)...)
	for i := 0; i+len(columns) <= len(data); i += len(columns) {
		insert = insert.Values(data[i : i+len(columns)]...)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	ctx, scope, err := s.begin(ctx)
	if err != nil {
		return err
	}

	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		s.rollback(ctx, scope)
		switch s.dialect.ClassifyError(err) {
		case ErrorUndefinedTable:
			return streamNotFound(name)
		case ErrorUniqueViolation:
			if s.config.Logger != nil {
				s.config.Logger.Error(ctx, "optimistic concurrency conflict",
					"stream", name,
					"event_count", len(events),
					"error", err)
			}
			return fmt.Errorf("%w: stream %s: %v", store.ErrOptimisticConcurrency, name, err)
		}
		return s.persistenceError("append to stream", err)
	}

	if err := s.commit(ctx, scope); err != nil {
		return err
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "append completed",
			"stream", name,
			"event_count", len(events))
	}
	return nil
}

// Load implements store.ReadOnlyEventStore.
func (s *Store) Load(ctx context.Context, name es.StreamName, fromNumber int64, count int, matcher metadata.Matcher) (store.StreamIterator, error) {
	if fromNumber < 1 {
		fromNumber = 1
	}
	return s.load(ctx, name, fromNumber, count, matcher, true)
}

// LoadReverse implements store.ReadOnlyEventStore.
func (s *Store) LoadReverse(ctx context.Context, name es.StreamName, fromNumber int64, count int, matcher metadata.Matcher) (store.StreamIterator, error) {
	if fromNumber <= 0 {
		fromNumber = math.MaxInt64
	}
	return s.load(ctx, name, fromNumber, count, matcher, false)
}

func (s *Store) load(ctx context.Context, name es.StreamName, fromNumber int64, count int, matcher metadata.Matcher, forward bool) (*StreamIterator, error) {
	filter, err := Compile(s.dialect, matcher)
	if err != nil {
		return nil, err
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "load starting",
			"stream", name,
			"from", fromNumber,
			"count", count,
			"forward", forward)
	}

	tableName := s.strategy.TableName(name)
	fetch := func(ctx context.Context, from int64, limit int) ([]es.RawEvent, error) {
		return s.fetchBatch(ctx, tableName, filter, forward, from, limit)
	}

	it := newStreamIterator(fetch, s.config.MessageFactory, s.config.LoadBatchSize, count, forward)
	if err := it.load(ctx, fromNumber); err != nil {
		switch s.dialect.ClassifyError(err) {
		case ErrorUndefinedColumn:
			return nil, fmt.Errorf("%w: unknown field in matcher: %v", store.ErrInvalidPredicate, err)
		case ErrorUndefinedTable:
			return nil, streamNotFound(name)
		}
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "load failed", "stream", name, "error", err)
		}
		return nil, fmt.Errorf("%w: %s: %v", store.ErrStreamNotFound, name, err)
	}
	return it, nil
}

func (s *Store) fetchBatch(ctx context.Context, tableName string, filter Filter, forward bool, from int64, limit int) ([]es.RawEvent, error) {
	source := s.q(tableName)
	if hinter, ok := s.strategy.(IndexHinter); ok {
		if hint := s.dialect.IndexHint(hinter.IndexName(tableName)); hint != "" {
			source += " " + hint
		}
	}

	op, order := ">=", "ASC"
	if !forward {
		op, order = "<=", "DESC"
	}

	selectBuilder := s.builder().
		Select(s.quoteAll([]string{
			strategy.ColumnNo, strategy.ColumnEventID, strategy.ColumnEventName,
			strategy.ColumnPayload, strategy.ColumnMetadata, strategy.ColumnCreatedAt,
		})...).
		From(source)
	for _, c := range filter.Conditions {
		selectBuilder = selectBuilder.Where(c)
	}
	query, args, err := selectBuilder.
		Where(sq.Expr(s.q(strategy.ColumnNo)+" "+op+" ?", from)).
		OrderBy(s.q(strategy.ColumnNo) + " " + order).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := make([]es.RawEvent, 0, limit)
	for rows.Next() {
		var (
			raw       es.RawEvent
			createdAt timestamp
		)
		if err := rows.Scan(&raw.No, &raw.EventID, &raw.EventName, &raw.Payload, &raw.Metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		raw.CreatedAt = createdAt.Time
		batch = append(batch, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Delete implements store.EventStore.
func (s *Store) Delete(ctx context.Context, name es.StreamName) error {
	ctx, scope, err := s.begin(ctx)
	if err != nil {
		return err
	}

	query, args, err := s.builder().
		Delete(s.q(s.config.EventStreamsTable)).
		Where(sq.Eq{s.q(ColumnRealStreamName): name.String()}).
		ToSql()
	if err != nil {
		s.rollback(ctx, scope)
		return fmt.Errorf("failed to build registry delete: %w", err)
	}

	result, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		s.rollback(ctx, scope)
		return s.persistenceError("delete stream", err)
	}
	if affected, err := result.RowsAffected(); err != nil || affected != 1 {
		s.rollback(ctx, scope)
		return streamNotFound(name)
	}

	tableName := s.strategy.TableName(name)
	if _, err := s.conn(ctx).ExecContext(ctx, "DROP TABLE IF EXISTS "+s.q(tableName)); err != nil {
		s.rollback(ctx, scope)
		return s.persistenceError("drop stream table", err)
	}

	if err := s.commit(ctx, scope); err != nil {
		return err
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "stream deleted", "stream", name, "table", tableName)
	}
	return nil
}

// HasStream implements store.ReadOnlyEventStore.
func (s *Store) HasStream(ctx context.Context, name es.StreamName) (bool, error) {
	query, args, err := s.builder().
		Select("COUNT(1)").
		From(s.q(s.config.EventStreamsTable)).
		Where(sq.Eq{s.q(ColumnRealStreamName): name.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build registry query: %w", err)
	}

	var n int64
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, s.persistenceError("has stream", err)
	}
	return n > 0, nil
}

// FetchStreamMetadata implements store.ReadOnlyEventStore.
func (s *Store) FetchStreamMetadata(ctx context.Context, name es.StreamName) (map[string]interface{}, error) {
	query, args, err := s.builder().
		Select(s.q(strategy.ColumnMetadata)).
		From(s.q(s.config.EventStreamsTable)).
		Where(sq.Eq{s.q(ColumnRealStreamName): name.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build registry query: %w", err)
	}

	var raw []byte
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, streamNotFound(name)
		}
		return nil, s.persistenceError("fetch stream metadata", err)
	}

	md := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &md); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of stream %s: %w", name, err)
		}
		if md == nil {
			md = map[string]interface{}{}
		}
	}
	return md, nil
}

// UpdateStreamMetadata implements store.EventStore.
// The stored document is replaced, not merged.
func (s *Store) UpdateStreamMetadata(ctx context.Context, name es.StreamName, md map[string]interface{}) error {
	if md == nil {
		md = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode metadata of stream %s: %w", name, err)
	}

	query, args, err := s.builder().
		Update(s.q(s.config.EventStreamsTable)).
		Set(s.q(strategy.ColumnMetadata), string(metadataJSON)).
		Where(sq.Eq{s.q(ColumnRealStreamName): name.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build registry update: %w", err)
	}

	result, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return s.persistenceError("update stream metadata", err)
	}
	if affected, err := result.RowsAffected(); err != nil || affected != 1 {
		return streamNotFound(name)
	}
	return nil
}

// FetchStreamNames implements store.ReadOnlyEventStore.
func (s *Store) FetchStreamNames(ctx context.Context, filter string, matcher metadata.Matcher, limit, offset int) ([]es.StreamName, error) {
	var where []sq.Sqlizer
	if filter != "" {
		where = append(where, sq.Eq{s.q(ColumnRealStreamName): filter})
	}
	return s.fetchStreamNames(ctx, where, matcher, limit, offset)
}

// FetchStreamNamesRegex implements store.ReadOnlyEventStore.
func (s *Store) FetchStreamNamesRegex(ctx context.Context, pattern string, matcher metadata.Matcher, limit, offset int) ([]es.StreamName, error) {
	if err := s.checkRegex(pattern); err != nil {
		return nil, err
	}
	where := []sq.Sqlizer{sq.Expr(s.q(ColumnRealStreamName)+" "+s.dialect.RegexOperator()+" ?", pattern)}
	return s.fetchStreamNames(ctx, where, matcher, limit, offset)
}

func (s *Store) fetchStreamNames(ctx context.Context, where []sq.Sqlizer, matcher metadata.Matcher, limit, offset int) ([]es.StreamName, error) {
	compiled, err := Compile(s.dialect, matcher)
	if err != nil {
		return nil, err
	}

	selectBuilder := s.builder().
		Select(s.q(ColumnRealStreamName)).
		From(s.q(s.config.EventStreamsTable))
	for _, w := range where {
		selectBuilder = selectBuilder.Where(w)
	}
	for _, c := range compiled.Conditions {
		selectBuilder = selectBuilder.Where(c)
	}
	limit, offset = pageBounds(limit, offset)
	query, args, err := selectBuilder.
		OrderBy(s.q(ColumnRealStreamName) + " ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build registry query: %w", err)
	}

	names, err := s.queryStrings(ctx, query, args)
	if err != nil {
		if s.dialect.ClassifyError(err) == ErrorUndefinedColumn {
			return nil, fmt.Errorf("%w: unknown field in matcher: %v", store.ErrInvalidPredicate, err)
		}
		return nil, s.persistenceError("fetch stream names", err)
	}

	out := make([]es.StreamName, len(names))
	for i, n := range names {
		out[i] = es.StreamName(n)
	}
	return out, nil
}

// FetchCategoryNames implements store.ReadOnlyEventStore.
func (s *Store) FetchCategoryNames(ctx context.Context, filter string, limit, offset int) ([]string, error) {
	var where []sq.Sqlizer
	if filter != "" {
		where = append(where, sq.Eq{s.q(ColumnCategory): filter})
	}
	return s.fetchCategoryNames(ctx, where, limit, offset)
}

// FetchCategoryNamesRegex implements store.ReadOnlyEventStore.
func (s *Store) FetchCategoryNamesRegex(ctx context.Context, pattern string, limit, offset int) ([]string, error) {
	if err := s.checkRegex(pattern); err != nil {
		return nil, err
	}
	where := []sq.Sqlizer{sq.Expr(s.q(ColumnCategory)+" "+s.dialect.RegexOperator()+" ?", pattern)}
	return s.fetchCategoryNames(ctx, where, limit, offset)
}

func (s *Store) fetchCategoryNames(ctx context.Context, where []sq.Sqlizer, limit, offset int) ([]string, error) {
	selectBuilder := s.builder().
		Select(s.q(ColumnCategory)).
		From(s.q(s.config.EventStreamsTable)).
		Where(sq.Expr(s.q(ColumnCategory) + " IS NOT NULL"))
	for _, w := range where {
		selectBuilder = selectBuilder.Where(w)
	}
	limit, offset = pageBounds(limit, offset)
	query, args, err := selectBuilder.
		GroupBy(s.q(ColumnCategory)).
		OrderBy(s.q(ColumnCategory) + " ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build registry query: %w", err)
	}

	categories, err := s.queryStrings(ctx, query, args)
	if err != nil {
		return nil, s.persistenceError("fetch category names", err)
	}
	return categories, nil
}

func (s *Store) checkRegex(pattern string) error {
	if !s.dialect.Capabilities().Regexp {
		return fmt.Errorf("%w: %s backend does not support regex matching", store.ErrInvalidPredicate, s.dialect.Name())
	}
	if pattern == "" {
		return fmt.Errorf("%w: empty regex pattern", store.ErrInvalidPredicate)
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("%w: invalid regex pattern: %v", store.ErrInvalidPredicate, err)
	}
	return nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args []interface{}) ([]string, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
