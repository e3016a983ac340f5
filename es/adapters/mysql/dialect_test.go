package mysql

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/getpup/pupstreams/es/sqlstore"
	"github.com/getpup/pupstreams/es/strategy"
)

func TestDialect_ClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sqlstore.ErrorKind
	}{
		{name: "duplicate entry", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, want: sqlstore.ErrorUniqueViolation},
		{name: "no such table", err: &mysql.MySQLError{Number: 1146}, want: sqlstore.ErrorUndefinedTable},
		{name: "bad field", err: &mysql.MySQLError{Number: 1054}, want: sqlstore.ErrorUndefinedColumn},
		{name: "wrapped", err: fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1062}), want: sqlstore.ErrorUniqueViolation},
		{name: "other number", err: &mysql.MySQLError{Number: 1205}, want: sqlstore.ErrorOther},
		{name: "message fallback", err: errors.New("Error 1062: Duplicate entry 'x' for key 'ix'"), want: sqlstore.ErrorUniqueViolation},
		{name: "nil", err: nil, want: sqlstore.ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Dialect{}).ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDialect_ErrorCode(t *testing.T) {
	if got := (Dialect{}).ErrorCode(&mysql.MySQLError{Number: 1062}); got != "1062" {
		t.Errorf("expected 1062, got %q", got)
	}
}

func TestDialect_JSONField(t *testing.T) {
	d := Dialect{}
	if got := d.JSONField("metadata", "_aggregate_id", "one"); got != "`metadata`->>'$.\"_aggregate_id\"'" {
		t.Errorf("unexpected text extraction %s", got)
	}
	if got := d.JSONField("metadata", "vip", true); got != "(`metadata`->'$.\"vip\"' = true)" {
		t.Errorf("unexpected JSON extraction %s", got)
	}
}

func TestDialect_IndexHint(t *testing.T) {
	s := SingleStreamStrategy{}
	hint := (Dialect{}).IndexHint(s.IndexName(strategy.TableName("foo")))
	if hint != "USE INDEX (`ix_query_aggregate`)" {
		t.Errorf("unexpected hint %q", hint)
	}
	if !strings.Contains(s.Schema("t")[0], "UNIQUE KEY ix_query_aggregate (aggregate_type, aggregate_id, no)") {
		t.Error("schema must declare the hinted index as unique")
	}
}

func TestDialect_QuoteIdentifier(t *testing.T) {
	if got := (Dialect{}).QuoteIdentifier("we`ird"); got != "`we``ird`" {
		t.Errorf("unexpected quoting %s", got)
	}
}
