package sqlstore

import (
	sq "github.com/Masterminds/squirrel"
)

// Capabilities describes what a backend supports.
type Capabilities struct {
	// Transactions enables engine-managed multi-statement transactions
	Transactions bool

	// JSONPath enables predicates on metadata document keys
	JSONPath bool

	// Regexp enables the regex operator and the *Regex fetches
	Regexp bool
}

// ErrorKind classifies backend errors.
type ErrorKind int

const (
	// ErrorOther is any error not classified below.
	ErrorOther ErrorKind = iota

	// ErrorUniqueViolation is a unique or primary key constraint violation.
	ErrorUniqueViolation

	// ErrorUndefinedTable is a reference to a table that does not exist.
	ErrorUndefinedTable

	// ErrorUndefinedColumn is a reference to a column that does not exist.
	ErrorUndefinedColumn
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUniqueViolation:
		return "unique_violation"
	case ErrorUndefinedTable:
		return "undefined_table"
	case ErrorUndefinedColumn:
		return "undefined_column"
	}
	return "other"
}

// Dialect captures the SQL differences between backends.
type Dialect interface {
	// Name identifies the dialect in logs.
	Name() string

	// Capabilities reports what the backend supports.
	Capabilities() Capabilities

	// PlaceholderFormat converts the "?" placeholders squirrel emits.
	PlaceholderFormat() sq.PlaceholderFormat

	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string

	// JSONField returns an expression extracting field from the JSON document in
	// column, suitable for comparing against value.
	JSONField(column, field string, value interface{}) string

	// BoolLiteral renders a boolean inline.
	BoolLiteral(b bool) string

	// RegexOperator is the infix regular expression match operator.
	RegexOperator() string

	// IndexHint returns the text placed after the table name to force index, or "".
	IndexHint(index string) string

	// ClassifyError maps a driver error onto an ErrorKind.
	ClassifyError(err error) ErrorKind

	// ErrorCode returns the backend error code for diagnostics, or "".
	ErrorCode(err error) string
}
