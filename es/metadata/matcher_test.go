package metadata

import (
	"errors"
	"testing"
)

func TestMatcher_IsImmutable(t *testing.T) {
	base := NewMatcher().WithMetadataMatch("tag", Equals, "person")
	a := base.WithPropertyMatch("event_name", Equals, "UserCreated")
	b := base.WithMetadataMatch("_aggregate_version", GreaterThan, 3)

	if base.Len() != 1 {
		t.Fatalf("expected base to keep 1 match, got %d", base.Len())
	}
	if a.Matches()[1].Field != "event_name" {
		t.Errorf("expected a's second match on event_name, got %s", a.Matches()[1].Field)
	}
	if b.Matches()[1].Field != "_aggregate_version" {
		t.Errorf("expected b's second match on _aggregate_version, got %s", b.Matches()[1].Field)
	}
	if a.Matches()[1].FieldType != FieldTypeMessageProperty {
		t.Errorf("expected message property field type")
	}
}

func TestMatch_Validate(t *testing.T) {
	tests := []struct {
		name    string
		match   Match
		wantErr bool
	}{
		{name: "equals scalar", match: Match{Field: "tag", Operator: Equals, Value: "person"}},
		{name: "greater than int", match: Match{Field: "_aggregate_version", Operator: GreaterThan, Value: 2}},
		{name: "bool value", match: Match{Field: "flag", Operator: Equals, Value: true}},
		{name: "in with strings", match: Match{Field: "tag", Operator: In, Value: []string{"a", "b"}}},
		{name: "not in with mixed", match: Match{Field: "tag", Operator: NotIn, Value: []interface{}{"a", 1}}},
		{name: "regex", match: Match{Field: "name", Operator: Regex, Value: "^foo"}},
		{name: "in needs list", match: Match{Field: "tag", Operator: In, Value: "a"}, wantErr: true},
		{name: "in needs values", match: Match{Field: "tag", Operator: In, Value: []string{}}, wantErr: true},
		{name: "equals rejects list", match: Match{Field: "tag", Operator: Equals, Value: []int{1}}, wantErr: true},
		{name: "equals rejects nil", match: Match{Field: "tag", Operator: Equals, Value: nil}, wantErr: true},
		{name: "regex needs string", match: Match{Field: "name", Operator: Regex, Value: 1}, wantErr: true},
		{name: "regex must compile", match: Match{Field: "name", Operator: Regex, Value: "(["}, wantErr: true},
		{name: "unknown operator", match: Match{Field: "tag", Operator: "like", Value: "a"}, wantErr: true},
		{name: "quoted field", match: Match{Field: `tag"; DROP`, Operator: Equals, Value: "a"}, wantErr: true},
		{name: "empty field", match: Match{Field: "", Operator: Equals, Value: "a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.match.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMatch) {
				t.Errorf("expected error to wrap ErrInvalidMatch, got %v", err)
			}
		})
	}
}

func TestMatcher_ValidateReportsIndex(t *testing.T) {
	m := NewMatcher().
		WithMetadataMatch("tag", Equals, "ok").
		WithMetadataMatch("tag", In, "not a list")

	err := m.Validate()
	if !errors.Is(err, ErrInvalidMatch) {
		t.Fatalf("expected ErrInvalidMatch, got %v", err)
	}
	if got := err.Error(); got[:7] != "match 1" {
		t.Errorf("expected error to name match 1, got %q", got)
	}
}

func TestValues(t *testing.T) {
	values, ok := Values([3]int{1, 2, 3})
	if !ok || len(values) != 3 {
		t.Fatalf("expected array to expand to 3 values, got %v (%v)", values, ok)
	}
	if _, ok := Values([]byte("abc")); ok {
		t.Error("expected []byte not to be expanded")
	}
	if _, ok := Values("abc"); ok {
		t.Error("expected string not to be expanded")
	}
}
