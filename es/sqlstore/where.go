package sqlstore

import (
	"fmt"
	"strings"

	"github.com/getpup/pupstreams/es/metadata"
	"github.com/getpup/pupstreams/es/store"
	"github.com/getpup/pupstreams/es/strategy"
)

// Param is a named bound value of a compiled condition.
type Param struct {
	Value interface{}
	Name  string
}

// Condition is one compiled predicate. SQL uses "?" placeholders that line up
// with Params; the dialect's placeholder format is applied by the query builder.
type Condition struct {
	SQL    string
	Params []Param
}

// ToSql implements squirrel.Sqlizer.
func (c Condition) ToSql() (string, []interface{}, error) {
	args := make([]interface{}, len(c.Params))
	for i, p := range c.Params {
		args[i] = p.Value
	}
	return c.SQL, args, nil
}

// Filter is a compiled matcher: conditions to be conjoined.
type Filter struct {
	Conditions []Condition
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.Conditions) == 0
}

// Params returns every bound value by name.
func (f Filter) Params() map[string]interface{} {
	out := make(map[string]interface{})
	for _, c := range f.Conditions {
		for _, p := range c.Params {
			out[p.Name] = p.Value
		}
	}
	return out
}

// propertyAliases maps message property names onto stream table columns.
var propertyAliases = map[string]string{
	"uuid":         strategy.ColumnEventID,
	"message_name": strategy.ColumnEventName,
	"messageName":  strategy.ColumnEventName,
	"createdAt":    strategy.ColumnCreatedAt,
}

// PropertyColumn resolves a message property to its column name.
func PropertyColumn(field string) string {
	if column, ok := propertyAliases[field]; ok {
		return column
	}
	return field
}

// Compile turns a matcher into conditions for d. Metadata fields address keys of
// the metadata column; property fields address columns directly. Scalar boolean
// values are rendered inline; list elements and everything else are bound.
func Compile(d Dialect, m metadata.Matcher) (Filter, error) {
	if err := m.Validate(); err != nil {
		return Filter{}, fmt.Errorf("%w: %v", store.ErrInvalidPredicate, err)
	}

	caps := d.Capabilities()
	matches := m.Matches()
	filter := Filter{Conditions: make([]Condition, 0, len(matches))}
	for i, match := range matches {
		if match.FieldType == metadata.FieldTypeMetadata && !caps.JSONPath {
			return Filter{}, fmt.Errorf("%w: %s backend cannot query metadata field %q", store.ErrInvalidPredicate, d.Name(), match.Field)
		}
		if match.Operator == metadata.Regex && !caps.Regexp {
			return Filter{}, fmt.Errorf("%w: %s backend does not support regex matching", store.ErrInvalidPredicate, d.Name())
		}
		filter.Conditions = append(filter.Conditions, compileMatch(d, i, match))
	}
	return filter, nil
}

func compileMatch(d Dialect, i int, match metadata.Match) Condition {
	values, isList := metadata.Values(match.Value)
	sample := match.Value
	if isList {
		sample = values[0]
	}

	var lhs string
	if match.FieldType == metadata.FieldTypeMetadata {
		lhs = d.JSONField(strategy.ColumnMetadata, match.Field, sample)
	} else {
		lhs = d.QuoteIdentifier(PropertyColumn(match.Field))
	}

	name := fmt.Sprintf("metadata_%d", i)
	if isList {
		params := make([]Param, 0, len(values))
		placeholders := make([]string, len(values))
		for k, v := range values {
			placeholders[k] = "?"
			params = append(params, Param{Name: fmt.Sprintf("%s_%d", name, k), Value: v})
		}
		op := "IN"
		if match.Operator == metadata.NotIn {
			op = "NOT IN"
		}
		return Condition{
			SQL:    fmt.Sprintf("%s %s (%s)", lhs, op, strings.Join(placeholders, ", ")),
			Params: params,
		}
	}

	op := string(match.Operator)
	if match.Operator == metadata.Regex {
		op = d.RegexOperator()
	}
	if b, ok := match.Value.(bool); ok {
		return Condition{SQL: fmt.Sprintf("%s %s %s", lhs, op, d.BoolLiteral(b))}
	}
	return Condition{
		SQL:    fmt.Sprintf("%s %s ?", lhs, op),
		Params: []Param{{Name: name, Value: match.Value}},
	}
}
