// Package metadata provides structured predicates over event and stream metadata.
package metadata

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
)

// ErrInvalidMatch indicates a predicate that cannot be compiled.
var ErrInvalidMatch = errors.New("invalid metadata match")

// Operator is a comparison operator.
type Operator string

// Supported operators.
const (
	Equals            Operator = "="
	NotEquals         Operator = "!="
	GreaterThan       Operator = ">"
	GreaterThanEquals Operator = ">="
	LowerThan         Operator = "<"
	LowerThanEquals   Operator = "<="
	In                Operator = "in"
	NotIn             Operator = "nin"
	Regex             Operator = "regex"
)

// IsList reports whether the operator takes a list of values.
func (o Operator) IsList() bool {
	return o == In || o == NotIn
}

func (o Operator) valid() bool {
	switch o {
	case Equals, NotEquals, GreaterThan, GreaterThanEquals, LowerThan, LowerThanEquals, In, NotIn, Regex:
		return true
	}
	return false
}

// FieldType tells where a field lives.
type FieldType int

const (
	// FieldTypeMetadata addresses a key of the JSON metadata document.
	FieldTypeMetadata FieldType = iota

	// FieldTypeMessageProperty addresses a row column directly.
	FieldTypeMessageProperty
)

func (t FieldType) String() string {
	if t == FieldTypeMessageProperty {
		return "message_property"
	}
	return "metadata"
}

// Match is a single predicate.
type Match struct {
	Value     interface{}
	Field     string
	Operator  Operator
	FieldType FieldType
}

// Matcher is an ordered, immutable set of predicates that are conjoined.
// The zero value matches everything.
type Matcher struct {
	matches []Match
}

// NewMatcher returns an empty matcher.
func NewMatcher() Matcher {
	return Matcher{}
}

// WithMetadataMatch returns a copy with a predicate on a metadata key appended.
func (m Matcher) WithMetadataMatch(field string, op Operator, value interface{}) Matcher {
	return m.with(Match{Field: field, Operator: op, Value: value, FieldType: FieldTypeMetadata})
}

// WithPropertyMatch returns a copy with a predicate on a row column appended.
func (m Matcher) WithPropertyMatch(field string, op Operator, value interface{}) Matcher {
	return m.with(Match{Field: field, Operator: op, Value: value, FieldType: FieldTypeMessageProperty})
}

func (m Matcher) with(match Match) Matcher {
	matches := make([]Match, len(m.matches), len(m.matches)+1)
	copy(matches, m.matches)
	return Matcher{matches: append(matches, match)}
}

// Matches returns the predicates in insertion order.
func (m Matcher) Matches() []Match {
	out := make([]Match, len(m.matches))
	copy(out, m.matches)
	return out
}

// Len returns the number of predicates.
func (m Matcher) Len() int {
	return len(m.matches)
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Validate checks every predicate. Errors wrap ErrInvalidMatch.
func (m Matcher) Validate() error {
	for i, match := range m.matches {
		if err := match.Validate(); err != nil {
			return fmt.Errorf("match %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks that the operator and value fit together.
func (m Match) Validate() error {
	if !fieldPattern.MatchString(m.Field) {
		return fmt.Errorf("%w: field %q contains unsupported characters", ErrInvalidMatch, m.Field)
	}
	if !m.Operator.valid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidMatch, m.Operator)
	}

	values, isList := Values(m.Value)
	switch {
	case m.Operator.IsList():
		if !isList {
			return fmt.Errorf("%w: operator %s needs a list value for field %q", ErrInvalidMatch, m.Operator, m.Field)
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: operator %s needs at least one value for field %q", ErrInvalidMatch, m.Operator, m.Field)
		}
		for _, v := range values {
			if !isScalar(v) {
				return fmt.Errorf("%w: list values for field %q must be scalars", ErrInvalidMatch, m.Field)
			}
		}
	case m.Operator == Regex:
		pattern, ok := m.Value.(string)
		if !ok {
			return fmt.Errorf("%w: regex operator needs a string value for field %q", ErrInvalidMatch, m.Field)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: invalid regex for field %q: %v", ErrInvalidMatch, m.Field, err)
		}
	default:
		if isList || !isScalar(m.Value) {
			return fmt.Errorf("%w: operator %s needs a scalar value for field %q", ErrInvalidMatch, m.Operator, m.Field)
		}
	}
	return nil
}

// Values expands slice and array values. []byte is not expanded.
func Values(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isScalar(v interface{}) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
