package core

import (
	"fmt"
	"strings"
)

// Op is a comparison operator of a [Cond].
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpNin Op = "nin"
)

// Expr is a node of a query filter tree. Engines translate the tree into
// their own query language.
type Expr interface {
	expr()
	String() string
}

// Cond compares the value at Field with Value. For OpIn and OpNin Value is a
// []string.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// Regex matches the string value at Field against Pattern (RE2 syntax).
type Regex struct {
	Field           string
	Pattern         string
	CaseInsensitive bool
}

// And matches when every child matches. An empty And matches everything.
type And []Expr

// Or matches when any child matches. An empty Or matches nothing.
type Or []Expr

func (Cond) expr()  {}
func (Regex) expr() {}
func (And) expr()   {}
func (Or) expr()    {}

func (c Cond) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

func (r Regex) String() string {
	flags := ""
	if r.CaseInsensitive {
		flags = "i"
	}
	return fmt.Sprintf("%s =~ /%s/%s", r.Field, r.Pattern, flags)
}

func (a And) String() string { return joinExprs(a, " AND ") }
func (o Or) String() string  { return joinExprs(o, " OR ") }

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

// AllOf joins the non-nil expressions with And. Nested Ands are flattened, a
// single expression is returned unwrapped and nil is returned when nothing
// is left.
func AllOf(exprs ...Expr) Expr {
	var out And
	for _, e := range exprs {
		switch x := e.(type) {
		case nil:
		case And:
			out = append(out, x...)
		default:
			out = append(out, e)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// SortField orders results by Field. Dir is +1 for ascending, -1 for
// descending.
type SortField struct {
	Field string
	Dir   int
}

func (s SortField) String() string {
	if s.Dir < 0 {
		return s.Field + " desc"
	}
	return s.Field + " asc"
}

// Query is a filtered, sorted page request against a store. Limit <= 0
// means no limit.
type Query struct {
	Filter Expr
	Sort   []SortField
	Skip   int
	Limit  int
}
