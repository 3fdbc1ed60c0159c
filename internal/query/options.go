// Package query provides the query options and predicate construction the
// relational gateway recognizes: field selection, filter conditions, sort,
// and pagination.
package query

import (
	"fmt"
	"sort"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpIn
	OpNotIn
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpLike
)

// String returns the SQL representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpLike:
		return "LIKE"
	default:
		return "UNKNOWN"
	}
}

// ParseOperator converts a filter key to an Operator
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "eq", "":
		return OpEqual, nil
	case "neq":
		return OpNotEqual, nil
	case "in":
		return OpIn, nil
	case "nin":
		return OpNotIn, nil
	case "gt":
		return OpGreaterThan, nil
	case "gte":
		return OpGreaterThanOrEqual, nil
	case "lt":
		return OpLessThan, nil
	case "lte":
		return OpLessThanOrEqual, nil
	case "like":
		return OpLike, nil
	default:
		return 0, fmt.Errorf("unknown filter operator: %s", s)
	}
}

// Condition represents one WHERE condition
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// SortField represents one ORDER BY term
type SortField struct {
	Field string
	Desc  bool
}

// Options are the query options recognized by the gateway
type Options struct {
	// Fields selects the columns (and relation fields) to return; empty
	// means all fields.
	Fields []string

	Conditions []Condition
	Sort       []SortField

	Limit  int
	Offset int

	// Meta requests the related-record metadata envelope
	Meta bool
}

// Where adds an equality condition and returns the options for chaining
func (o *Options) Where(field string, value interface{}) *Options {
	return o.WhereOp(field, OpEqual, value)
}

// WhereOp adds a condition with an explicit operator
func (o *Options) WhereOp(field string, op Operator, value interface{}) *Options {
	o.Conditions = append(o.Conditions, Condition{Field: field, Operator: op, Value: value})
	return o
}

// WhereIn adds an in-list condition
func (o *Options) WhereIn(field string, values []interface{}) *Options {
	return o.WhereOp(field, OpIn, values)
}

// OrderBy adds a sort term
func (o *Options) OrderBy(field string, desc bool) *Options {
	o.Sort = append(o.Sort, SortField{Field: field, Desc: desc})
	return o
}

// WhereSQL renders the conditions into a WHERE fragment with $N
// placeholders, starting at *counter. In-list conditions expand one
// placeholder per element; an empty list renders a clause matching nothing.
func (o *Options) WhereSQL(counter *int) (string, []interface{}, error) {
	if len(o.Conditions) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(o.Conditions))
	var args []interface{}

	for _, cond := range o.Conditions {
		switch cond.Operator {
		case OpIn, OpNotIn:
			values, err := toList(cond.Value)
			if err != nil {
				return "", nil, fmt.Errorf("field %s: %w", cond.Field, err)
			}
			if len(values) == 0 {
				if cond.Operator == OpIn {
					parts = append(parts, "1 = 0")
				} else {
					parts = append(parts, "1 = 1")
				}
				continue
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = fmt.Sprintf("$%d", *counter)
				args = append(args, v)
				*counter++
			}
			parts = append(parts, fmt.Sprintf("%s %s (%s)", cond.Field, cond.Operator, strings.Join(placeholders, ", ")))
		default:
			parts = append(parts, fmt.Sprintf("%s %s $%d", cond.Field, cond.Operator, *counter))
			args = append(args, cond.Value)
			*counter++
		}
	}

	return strings.Join(parts, " AND "), args, nil
}

// OrderSQL renders the sort terms into an ORDER BY fragment
func (o *Options) OrderSQL() string {
	if len(o.Sort) == 0 {
		return ""
	}
	parts := make([]string, 0, len(o.Sort))
	for _, s := range o.Sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", s.Field, dir))
	}
	return strings.Join(parts, ", ")
}

// Canonical renders the options as a deterministic string for cache
// fingerprinting. Field order is normalized; condition order is preserved.
func (o *Options) Canonical() string {
	var b strings.Builder

	fields := append([]string(nil), o.Fields...)
	sort.Strings(fields)
	b.WriteString("fields=")
	b.WriteString(strings.Join(fields, ","))

	b.WriteString(";where=")
	for i, cond := range o.Conditions {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s %s %v", cond.Field, cond.Operator, cond.Value)
	}

	b.WriteString(";sort=")
	b.WriteString(o.OrderSQL())

	fmt.Fprintf(&b, ";limit=%d;offset=%d", o.Limit, o.Offset)
	return b.String()
}

func toList(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("in-list filter requires a list, got %T", value)
	}
}
