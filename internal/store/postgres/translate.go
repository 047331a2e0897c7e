package postgres

// translate.go compiles core.Expr trees into SQL WHERE and ORDER BY clauses
// with positional ($n) arguments.
//
// Scalar columns are compared directly. Paths into the jsonb payload are
// compared type-aware: a range condition only matches values of the same
// JSON kind as the argument, mirroring the in-memory engine. Timestamps
// stored as {"$date": iso} compare as fixed-width ISO strings.

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// colKind is the SQL type of a scalar column.
type colKind int

const (
	colUUID colKind = iota
	colText
	colInt
	colTime
)

// table describes how logical paths map onto a table.
type table struct {
	name    string
	columns map[string]colKind
	// json maps a top-level field to its jsonb column.
	json map[string]string
	// arrays maps a top-level field to a jsonb array column whose elements
	// are matched with EXISTS.
	arrays map[string]string
}

var datasetsTable = table{
	name: "datasets",
	columns: map[string]colKind{
		core.FieldID:          colUUID,
		core.FieldName:        colText,
		core.FieldTitle:       colText,
		core.FieldDescription: colText,
		core.FieldUserRef:     colText,
		core.FieldSheetIndex:  colInt,
		core.FieldCreatedAt:   colTime,
		core.FieldUpdatedAt:   colTime,
	},
	json:   map[string]string{"options": "options"},
	arrays: map[string]string{"imports": "imports"},
}

var rowsTable = table{
	name: "data_rows",
	columns: map[string]colKind{
		core.FieldID:        colUUID,
		core.FieldDatasetID: colUUID,
		core.FieldRowImport: colUUID,
	},
	json: map[string]string{core.FieldData: "data"},
}

var columnNames = map[string]string{
	core.FieldID: "id",
}

func columnName(field string) string {
	if c, ok := columnNames[field]; ok {
		return c
	}
	return field
}

// whereBuilder accumulates SQL fragments and their arguments.
type whereBuilder struct {
	t    table
	args []any
}

func newWhereBuilder(t table, args ...any) *whereBuilder {
	return &whereBuilder{t: t, args: args}
}

// arg appends an argument and returns its placeholder.
func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// where returns " WHERE ..." for e, or "" when e is nil.
func (b *whereBuilder) where(e core.Expr) (string, error) {
	if e == nil {
		return "", nil
	}
	clause, err := b.expr(e)
	if err != nil {
		return "", err
	}
	return " WHERE " + clause, nil
}

func (b *whereBuilder) expr(e core.Expr) (string, error) {
	switch x := e.(type) {
	case nil:
		return "TRUE", nil
	case core.And:
		return b.join(x, " AND ", "TRUE")
	case core.Or:
		return b.join(x, " OR ", "FALSE")
	case core.Cond:
		return b.cond(x)
	case core.Regex:
		return b.regex(x)
	default:
		return "", fmt.Errorf("unsupported expression %T", e)
	}
}

func (b *whereBuilder) join(children []core.Expr, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, len(children))
	for i, c := range children {
		s, err := b.expr(c)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// split separates a field into its top-level name and the rest of the path.
func split(field string) (string, []string) {
	parts := strings.Split(field, ".")
	return parts[0], parts[1:]
}

func (b *whereBuilder) cond(c core.Cond) (string, error) {
	if kind, ok := b.t.columns[c.Field]; ok {
		return b.scalarCond(columnName(c.Field), kind, c)
	}
	head, rest := split(c.Field)
	if col, ok := b.t.json[head]; ok {
		return b.jsonCond(b.jsonPath(col, rest), c)
	}
	if col, ok := b.t.arrays[head]; ok && len(rest) > 0 {
		// ne and nin hold when no element matches the positive form.
		inner := c
		negate := false
		switch c.Op {
		case core.OpNe:
			inner.Op, negate = core.OpEq, true
		case core.OpNin:
			inner.Op, negate = core.OpIn, true
		}
		clause, err := b.jsonCond(b.jsonPath("elem", rest), inner)
		if err != nil {
			return "", err
		}
		exists := fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(%s) AS elem WHERE %s)", col, clause)
		if negate {
			return "NOT " + exists, nil
		}
		return exists, nil
	}
	return "", fmt.Errorf("unknown field %q for %s", c.Field, b.t.name)
}

func (b *whereBuilder) jsonPath(col string, path []string) string {
	if len(path) == 0 {
		return col
	}
	return fmt.Sprintf("(%s #> %s::text[])", col, b.arg(path))
}

func (b *whereBuilder) scalarCond(col string, kind colKind, c core.Cond) (string, error) {
	switch c.Op {
	case core.OpIn, core.OpNin:
		list, _ := c.Value.([]string)
		clause := "FALSE"
		if kind == colText {
			clause = fmt.Sprintf("COALESCE(%s = ANY(%s::text[]), FALSE)", col, b.arg(list))
		}
		if c.Op == core.OpNin {
			return "NOT " + clause, nil
		}
		return clause, nil
	}

	if c.Value == nil {
		switch c.Op {
		case core.OpEq:
			return col + " IS NULL", nil
		case core.OpNe:
			return col + " IS NOT NULL", nil
		default:
			return "FALSE", nil
		}
	}

	v, ok := scalarArg(kind, c.Value)
	if !ok {
		if c.Op == core.OpNe {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	ph := b.arg(v)
	switch kind {
	case colUUID:
		ph += "::uuid"
	case colTime:
		ph += "::timestamptz"
	case colInt:
		ph += "::bigint"
	}
	switch c.Op {
	case core.OpEq:
		return fmt.Sprintf("%s = %s", col, ph), nil
	case core.OpNe:
		return fmt.Sprintf("%s IS DISTINCT FROM %s", col, ph), nil
	}
	op, err := sqlOp(c.Op)
	if err != nil {
		return "", err
	}
	if kind == colText {
		return fmt.Sprintf("%s COLLATE \"C\" %s %s", col, op, ph), nil
	}
	return fmt.Sprintf("%s %s %s", col, op, ph), nil
}

// scalarArg converts v to an argument for a column of the given kind.
func scalarArg(kind colKind, v any) (any, bool) {
	switch kind {
	case colUUID:
		if id, ok := v.(uuid.UUID); ok {
			return id.String(), true
		}
	case colText:
		if s, ok := v.(string); ok {
			return s, true
		}
	case colInt:
		switch n := v.(type) {
		case int64:
			return n, true
		case int:
			return int64(n), true
		case float64:
			if n == float64(int64(n)) {
				return int64(n), true
			}
		}
	case colTime:
		if t, ok := v.(time.Time); ok {
			return t, true
		}
	}
	return nil, false
}

func sqlOp(op core.Op) (string, error) {
	switch op {
	case core.OpGt:
		return ">", nil
	case core.OpGte:
		return ">=", nil
	case core.OpLt:
		return "<", nil
	case core.OpLte:
		return "<=", nil
	case core.OpEq:
		return "=", nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}

// jsonCond compares the jsonb value x with c.Value.
func (b *whereBuilder) jsonCond(x string, c core.Cond) (string, error) {
	switch c.Op {
	case core.OpIn, core.OpNin:
		list, _ := c.Value.([]string)
		clause := fmt.Sprintf("COALESCE(jsonb_typeof(%s) = 'string' AND %s #>> '{}' = ANY(%s::text[]), FALSE)", x, x, b.arg(list))
		if c.Op == core.OpNin {
			return "NOT " + clause, nil
		}
		return clause, nil
	case core.OpEq, core.OpNe:
		if c.Value == nil {
			isNull := fmt.Sprintf("COALESCE(%s = 'null'::jsonb, TRUE)", x)
			if c.Op == core.OpNe {
				return "NOT " + isNull, nil
			}
			return isNull, nil
		}
		enc, err := core.EncodeValue(c.Value)
		if err != nil {
			return "", err
		}
		ph := b.arg(string(enc))
		if c.Op == core.OpNe {
			return fmt.Sprintf("%s IS DISTINCT FROM %s::jsonb", x, ph), nil
		}
		return fmt.Sprintf("%s = %s::jsonb", x, ph), nil
	}

	op, err := sqlOp(c.Op)
	if err != nil {
		return "", err
	}
	switch v := c.Value.(type) {
	case time.Time:
		return fmt.Sprintf("(%s ->> '$date') COLLATE \"C\" %s %s", x, op, b.arg(core.FormatTime(v))), nil
	case string:
		return fmt.Sprintf("(jsonb_typeof(%s) = 'string' AND (%s #>> '{}') COLLATE \"C\" %s %s)", x, x, op, b.arg(v)), nil
	case bool:
		return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'boolean' THEN (%s)::boolean %s %s ELSE FALSE END", x, x, op, b.arg(v)), nil
	case uuid.UUID:
		return fmt.Sprintf("(%s ->> '$oid') %s %s", x, op, b.arg(v.String())), nil
	case int64:
		return b.numberCond(x, op, float64(v)), nil
	case int:
		return b.numberCond(x, op, float64(v)), nil
	case float64:
		return b.numberCond(x, op, v), nil
	default:
		return "FALSE", nil
	}
}

// numberCond guards the cast so non-numeric values never reach it.
func (b *whereBuilder) numberCond(x, op string, v float64) string {
	return fmt.Sprintf("CASE WHEN jsonb_typeof(%s) = 'number' THEN (%s)::float8 %s %s::float8 ELSE FALSE END", x, x, op, b.arg(v))
}

func (b *whereBuilder) regex(r core.Regex) (string, error) {
	op := "~"
	if r.CaseInsensitive {
		op = "~*"
	}
	pattern := b.arg(toPostgresRegex(r.Pattern))

	if _, ok := b.t.columns[r.Field]; ok {
		return fmt.Sprintf("%s %s %s", columnName(r.Field), op, pattern), nil
	}
	head, rest := split(r.Field)
	if col, ok := b.t.json[head]; ok {
		x := b.jsonPath(col, rest)
		return fmt.Sprintf("(jsonb_typeof(%s) = 'string' AND %s #>> '{}' %s %s)", x, x, op, pattern), nil
	}
	if col, ok := b.t.arrays[head]; ok && len(rest) > 0 {
		x := b.jsonPath("elem", rest)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(%s) AS elem WHERE jsonb_typeof(%s) = 'string' AND %s #>> '{}' %s %s)",
			col, x, x, op, pattern), nil
	}
	return "", fmt.Errorf("unknown field %q for %s", r.Field, b.t.name)
}

// toPostgresRegex rewrites RE2 word boundaries into their ARE spelling.
// Escaped backslashes are copied untouched.
func toPostgresRegex(p string) string {
	var sb strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c != '\\' || i+1 >= len(p) {
			sb.WriteByte(c)
			continue
		}
		next := p[i+1]
		switch next {
		case 'b':
			sb.WriteString(`\y`)
		case 'B':
			sb.WriteString(`\Y`)
		default:
			sb.WriteByte(c)
			sb.WriteByte(next)
		}
		i++
	}
	return sb.String()
}

// orderBy returns " ORDER BY ..." with id as the final tiebreaker.
func (b *whereBuilder) orderBy(sorts []core.SortField) (string, error) {
	parts := make([]string, 0, len(sorts)+1)
	for _, s := range sorts {
		var expr string
		if _, ok := b.t.columns[s.Field]; ok {
			expr = columnName(s.Field)
		} else {
			head, rest := split(s.Field)
			col, ok := b.t.json[head]
			if !ok {
				return "", fmt.Errorf("cannot sort %s by %q", b.t.name, s.Field)
			}
			x := b.jsonPath(col, rest)
			rank := "CASE jsonb_typeof(" + x + ") WHEN 'null' THEN 0 WHEN 'number' THEN 1 WHEN 'string' THEN 2" +
				" WHEN 'object' THEN 3 WHEN 'array' THEN 4 WHEN 'boolean' THEN 5 END"
			if s.Dir < 0 {
				parts = append(parts, rank+" DESC NULLS LAST")
			} else {
				parts = append(parts, rank+" ASC NULLS FIRST")
			}
			expr = x
		}
		if s.Dir < 0 {
			parts = append(parts, expr+" DESC NULLS LAST")
		} else {
			parts = append(parts, expr+" ASC NULLS FIRST")
		}
	}
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// page returns the LIMIT/OFFSET suffix.
func (b *whereBuilder) page(skip, limit int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(limit))
	}
	if skip > 0 {
		sb.WriteString(" OFFSET " + b.arg(skip))
	}
	return sb.String()
}

// selectSQL builds a full SELECT for q.
func (b *whereBuilder) selectSQL(columns string, q core.Query) (string, error) {
	where, err := b.where(q.Filter)
	if err != nil {
		return "", err
	}
	order, err := b.orderBy(q.Sort)
	if err != nil {
		return "", err
	}
	return "SELECT " + columns + " FROM " + b.t.name + where + order + b.page(q.Skip, q.Limit), nil
}
