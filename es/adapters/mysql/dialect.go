package mysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"

	"github.com/getpup/pupstreams/es/sqlstore"
)

// MySQL server error numbers.
const (
	errDupEntry     = 1062 // ER_DUP_ENTRY
	errNoSuchTable  = 1146 // ER_NO_SUCH_TABLE
	errBadFieldName = 1054 // ER_BAD_FIELD_ERROR
)

// Dialect implements sqlstore.Dialect for MySQL and MariaDB.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string {
	return "mysql"
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
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// JSONField implements sqlstore.Dialect.
// Booleans are folded to 1 or 0 so they match both inline literals and bound
// parameters, which the driver sends as integers. Everything else compares
// against the unquoted text.
func (d Dialect) JSONField(column, field string, value interface{}) string {
	if _, ok := value.(bool); ok {
		return fmt.Sprintf(`(%s->'$."%s"' = true)`, d.QuoteIdentifier(column), field)
	}
	return fmt.Sprintf(`%s->>'$."%s"'`, d.QuoteIdentifier(column), field)
}

// BoolLiteral implements sqlstore.Dialect.
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RegexOperator implements sqlstore.Dialect.
func (Dialect) RegexOperator() string {
	return "REGEXP"
}

// IndexHint implements sqlstore.Dialect.
func (d Dialect) IndexHint(index string) string {
	return "USE INDEX (" + d.QuoteIdentifier(index) + ")"
}

// ClassifyError implements sqlstore.Dialect.
func (Dialect) ClassifyError(err error) sqlstore.ErrorKind {
	if err == nil {
		return sqlstore.ErrorOther
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errDupEntry:
			return sqlstore.ErrorUniqueViolation
		case errNoSuchTable:
			return sqlstore.ErrorUndefinedTable
		case errBadFieldName:
			return sqlstore.ErrorUndefinedColumn
		}
		return sqlstore.ErrorOther
	}

	if IsUniqueViolation(err) {
		return sqlstore.ErrorUniqueViolation
	}
	return sqlstore.ErrorOther
}

// ErrorCode implements sqlstore.Dialect.
func (Dialect) ErrorCode(err error) string {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return strconv.Itoa(int(mysqlErr.Number))
	}
	return ""
}

// IsUniqueViolation checks if an error is a MySQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	// Check if it's a MySQL error with duplicate entry code (1062)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == errDupEntry
	}

	// Fallback: check error message for common patterns
	errMsg := err.Error()
	return strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "duplicate key")
}
