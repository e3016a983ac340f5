package postgres

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/getpup/pupstreams/es/sqlstore"
)

// SQLSTATE codes.
const (
	codeUniqueViolation = "23505"
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// Dialect implements sqlstore.Dialect for PostgreSQL.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string {
	return "postgres"
}

// Capabilities implements sqlstore.Dialect.
func (Dialect) Capabilities() sqlstore.Capabilities {
	return sqlstore.Capabilities{Transactions: true, JSONPath: true, Regexp: true}
}

// PlaceholderFormat implements sqlstore.Dialect.
func (Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

// QuoteIdentifier implements sqlstore.Dialect.
func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// JSONField implements sqlstore.Dialect.
// ->> yields text, so booleans and numbers are cast to compare by value.
func (d Dialect) JSONField(column, field string, value interface{}) string {
	text := fmt.Sprintf(`%s->>'%s'`, d.QuoteIdentifier(column), field)
	switch value.(type) {
	case bool:
		return "(" + text + ")::boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "(" + text + ")::numeric"
	}
	return text
}

// BoolLiteral implements sqlstore.Dialect.
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// RegexOperator implements sqlstore.Dialect.
func (Dialect) RegexOperator() string {
	return "~"
}

// IndexHint implements sqlstore.Dialect.
// PostgreSQL has no index hints.
func (Dialect) IndexHint(_ string) string {
	return ""
}

// ClassifyError implements sqlstore.Dialect.
func (d Dialect) ClassifyError(err error) sqlstore.ErrorKind {
	if err == nil {
		return sqlstore.ErrorOther
	}

	switch d.ErrorCode(err) {
	case codeUniqueViolation:
		return sqlstore.ErrorUniqueViolation
	case codeUndefinedTable:
		return sqlstore.ErrorUndefinedTable
	case codeUndefinedColumn:
		return sqlstore.ErrorUndefinedColumn
	case "":
		if IsUniqueViolation(err) {
			return sqlstore.ErrorUniqueViolation
		}
	}
	return sqlstore.ErrorOther
}

// ErrorCode implements sqlstore.Dialect.
func (Dialect) ErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	if (Dialect{}).ErrorCode(err) == codeUniqueViolation {
		return true
	}

	// Fallback: check error message for common patterns
	errMsg := err.Error()
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
