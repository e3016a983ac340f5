package sqlite

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/getpup/pupstreams/es/sqlstore"
)

// Dialect implements sqlstore.Dialect for SQLite.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string {
	return "sqlite"
}

// Capabilities implements sqlstore.Dialect.
func (Dialect) Capabilities() sqlstore.Capabilities {
	return sqlstore.Capabilities{Transactions: true, JSONPath: true, Regexp: true}
}

// PlaceholderFormat implements sqlstore.Dialect.
func (Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

// QuoteIdentifier implements sqlstore.Dialect.
// Backticks are used because SQLite reads an unknown double-quoted identifier
// as a string literal, which would hide misspelled columns.
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// JSONField implements sqlstore.Dialect.
// json_extract returns SQL values, so numbers compare numerically and
// booleans come back as 1 and 0.
func (d Dialect) JSONField(column, field string, _ interface{}) string {
	return fmt.Sprintf(`json_extract(%s, '$."%s"')`, d.QuoteIdentifier(column), field)
}

// BoolLiteral implements sqlstore.Dialect.
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// RegexOperator implements sqlstore.Dialect.
func (Dialect) RegexOperator() string {
	return "REGEXP"
}

// IndexHint implements sqlstore.Dialect.
// SQLite's INDEXED BY fails outright when the planner cannot use the index,
// so no hint is emitted and the planner picks the aggregate index itself.
func (Dialect) IndexHint(_ string) string {
	return ""
}

// ClassifyError implements sqlstore.Dialect.
func (Dialect) ClassifyError(err error) sqlstore.ErrorKind {
	if err == nil {
		return sqlstore.ErrorOther
	}
	if IsUniqueViolation(err) {
		return sqlstore.ErrorUniqueViolation
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return sqlstore.ErrorUndefinedTable
	case strings.Contains(msg, "no such column"):
		return sqlstore.ErrorUndefinedColumn
	}
	return sqlstore.ErrorOther
}

// ErrorCode implements sqlstore.Dialect.
func (Dialect) ErrorCode(err error) string {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return strconv.Itoa(sqliteErr.Code())
	}
	return ""
}

// IsUniqueViolation checks if an error is a SQLite unique or primary key constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "PRIMARY KEY constraint failed")
}
