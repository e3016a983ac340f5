package sqlstore

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	sq "github.com/Masterminds/squirrel"

	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/store"
)

// fakeDialect renders predictable SQL for compiler tests.
type fakeDialect struct {
	caps Capabilities
}

func (fakeDialect) Name() string                            { return "fake" }
func (d fakeDialect) Capabilities() Capabilities            { return d.caps }
func (fakeDialect) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }
func (fakeDialect) QuoteIdentifier(name string) string      { return "[" + name + "]" }
func (fakeDialect) BoolLiteral(b bool) string               { return fmt.Sprint(b) }
func (fakeDialect) RegexOperator() string                   { return "~" }
func (fakeDialect) IndexHint(_ string) string               { return "" }
func (fakeDialect) ClassifyError(_ error) ErrorKind         { return ErrorOther }
func (fakeDialect) ErrorCode(_ error) string                { return "" }

func (fakeDialect) JSONField(column, field string, _ interface{}) string {
	return fmt.Sprintf("json(%s, %s)", column, field)
}

var fullCaps = Capabilities{Transactions: true, JSONPath: true, Regexp: true}

func TestCompile(t *testing.T) {
	tests := []struct {
		name       string
		matcher    metadata.Matcher
		wantSQL    []string
		wantParams map[string]interface{}
	}{
		{
			name:       "empty matcher",
			matcher:    metadata.Matcher{},
			wantSQL:    []string{},
			wantParams: map[string]interface{}{},
		},
		{
			name:       "metadata equals",
			matcher:    metadata.NewMatcher().WithMetadataMatch("_aggregate_id", metadata.Equals, "one"),
			wantSQL:    []string{"json(metadata, _aggregate_id) = ?"},
			wantParams: map[string]interface{}{"metadata_0": "one"},
		},
		{
			name:       "boolean is inlined",
			matcher:    metadata.NewMatcher().WithMetadataMatch("vip", metadata.NotEquals, true),
			wantSQL:    []string{"json(metadata, vip) != true"},
			wantParams: map[string]interface{}{},
		},
		{
			name:       "in list",
			matcher:    metadata.NewMatcher().WithMetadataMatch("tag", metadata.In, []string{"a", "b", "c"}),
			wantSQL:    []string{"json(metadata, tag) IN (?, ?, ?)"},
			wantParams: map[string]interface{}{"metadata_0_0": "a", "metadata_0_1": "b", "metadata_0_2": "c"},
		},
		{
			name:       "not in list",
			matcher:    metadata.NewMatcher().WithMetadataMatch("n", metadata.NotIn, []int{1, 2}),
			wantSQL:    []string{"json(metadata, n) NOT IN (?, ?)"},
			wantParams: map[string]interface{}{"metadata_0_0": 1, "metadata_0_1": 2},
		},
		{
			name:       "booleans in a list are bound",
			matcher:    metadata.NewMatcher().WithMetadataMatch("flag", metadata.In, []bool{true, false, true}),
			wantSQL:    []string{"json(metadata, flag) IN (?, ?, ?)"},
			wantParams: map[string]interface{}{"metadata_0_0": true, "metadata_0_1": false, "metadata_0_2": true},
		},
		{
			name:       "regex uses dialect operator",
			matcher:    metadata.NewMatcher().WithMetadataMatch("tag", metadata.Regex, "^a"),
			wantSQL:    []string{"json(metadata, tag) ~ ?"},
			wantParams: map[string]interface{}{"metadata_0": "^a"},
		},
		{
			name:       "property alias",
			matcher:    metadata.NewMatcher().WithPropertyMatch("uuid", metadata.Equals, "x"),
			wantSQL:    []string{"[event_id] = ?"},
			wantParams: map[string]interface{}{"metadata_0": "x"},
		},
		{
			name: "conjunction keeps order and numbering",
			matcher: metadata.NewMatcher().
				WithPropertyMatch("no", metadata.GreaterThan, 3).
				WithMetadataMatch("tag", metadata.LowerThanEquals, "m"),
			wantSQL:    []string{"[no] > ?", "json(metadata, tag) <= ?"},
			wantParams: map[string]interface{}{"metadata_0": 3, "metadata_1": "m"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := Compile(fakeDialect{caps: fullCaps}, tt.matcher)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}

			got := make([]string, len(filter.Conditions))
			for i, c := range filter.Conditions {
				got[i] = c.SQL
			}
			if !reflect.DeepEqual(got, tt.wantSQL) {
				t.Errorf("expected SQL %v, got %v", tt.wantSQL, got)
			}
			if !reflect.DeepEqual(filter.Params(), tt.wantParams) {
				t.Errorf("expected params %v, got %v", tt.wantParams, filter.Params())
			}
			if filter.Empty() != (tt.matcher.Len() == 0) {
				t.Errorf("Empty() = %v for %d matches", filter.Empty(), tt.matcher.Len())
			}
		})
	}
}

func TestCompile_ConditionArgsFollowPlaceholders(t *testing.T) {
	filter, err := Compile(fakeDialect{caps: fullCaps}, metadata.NewMatcher().
		WithMetadataMatch("tag", metadata.In, []interface{}{"a", true, "b"}))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	sql, args, err := filter.Conditions[0].ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	if sql != "json(metadata, tag) IN (?, ?, ?)" {
		t.Errorf("unexpected SQL %q", sql)
	}
	if !reflect.DeepEqual(args, []interface{}{"a", true, "b"}) {
		t.Errorf("unexpected args %v", args)
	}
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		caps    Capabilities
		matcher metadata.Matcher
	}{
		{
			name:    "invalid match",
			caps:    fullCaps,
			matcher: metadata.NewMatcher().WithMetadataMatch("tag", metadata.In, "a"),
		},
		{
			name:    "regex without capability",
			caps:    Capabilities{JSONPath: true},
			matcher: metadata.NewMatcher().WithPropertyMatch("event_name", metadata.Regex, "^a"),
		},
		{
			name:    "metadata without json path",
			caps:    Capabilities{Regexp: true},
			matcher: metadata.NewMatcher().WithMetadataMatch("tag", metadata.Equals, "a"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(fakeDialect{caps: tt.caps}, tt.matcher)
			if !errors.Is(err, store.ErrInvalidPredicate) {
				t.Fatalf("expected ErrInvalidPredicate, got %v", err)
			}
		})
	}
}

func TestCompile_PropertyWithoutJSONPath(t *testing.T) {
	_, err := Compile(fakeDialect{}, metadata.NewMatcher().WithPropertyMatch("event_name", metadata.Equals, "a"))
	if err != nil {
		t.Fatalf("property predicates must not need JSON support: %v", err)
	}
}

func TestPropertyColumn(t *testing.T) {
	tests := map[string]string{
		"uuid":         "event_id",
		"message_name": "event_name",
		"messageName":  "event_name",
		"createdAt":    "created_at",
		"event_name":   "event_name",
		"no":           "no",
	}
	for field, want := range tests {
		if got := PropertyColumn(field); got != want {
			t.Errorf("PropertyColumn(%q) = %q, want %q", field, got, want)
		}
	}
}
