package sqlite

// translate.go compiles core.Expr trees into SQLite SQL over JSON1.
// Placeholders use the ?NNN form so a path argument can be referenced
// several times. Kind guards use json_type, whose answers are 'null',
// 'true', 'false', 'integer', 'real', 'text', 'array' and 'object'.

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

type colKind int

const (
	colUUID colKind = iota
	colText
	colInt
	colTime
)

type table struct {
	name    string
	columns map[string]colKind
	json    map[string]string
	arrays  map[string]string
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

func columnName(field string) string {
	if field == core.FieldID {
		return "id"
	}
	return field
}

// jsonPath renders a JSON1 path with every key quoted.
func jsonPath(keys []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, k := range keys {
		sb.WriteString(`."`)
		sb.WriteString(strings.ReplaceAll(k, `"`, `\"`))
		sb.WriteString(`"`)
	}
	return sb.String()
}

type whereBuilder struct {
	t    table
	args []any
}

func newWhereBuilder(t table, args ...any) *whereBuilder {
	return &whereBuilder{t: t, args: args}
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("?%d", len(b.args))
}

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
		return "1", nil
	case core.And:
		return b.join(x, " AND ", "1")
	case core.Or:
		return b.join(x, " OR ", "0")
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

// jsonRef is a JSON document expression and the path argument into it.
type jsonRef struct {
	doc  string
	path string
}

func (r jsonRef) typ() string     { return fmt.Sprintf("json_type(%s, %s)", r.doc, r.path) }
func (r jsonRef) extract() string { return fmt.Sprintf("json_extract(%s, %s)", r.doc, r.path) }

func (b *whereBuilder) ref(doc string, keys []string) jsonRef {
	return jsonRef{doc: doc, path: b.arg(jsonPath(keys))}
}

func (b *whereBuilder) cond(c core.Cond) (string, error) {
	if kind, ok := b.t.columns[c.Field]; ok {
		return b.scalarCond(columnName(c.Field), kind, c)
	}
	parts := strings.Split(c.Field, ".")
	head, rest := parts[0], parts[1:]
	if col, ok := b.t.json[head]; ok {
		return b.jsonCond(b.ref(col, rest), c)
	}
	if col, ok := b.t.arrays[head]; ok && len(rest) > 0 {
		inner, negate := c, false
		switch c.Op {
		case core.OpNe:
			inner.Op, negate = core.OpEq, true
		case core.OpNin:
			inner.Op, negate = core.OpIn, true
		}
		clause, err := b.jsonCond(b.ref("elem.value", rest), inner)
		if err != nil {
			return "", err
		}
		exists := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS elem WHERE %s)", col, clause)
		if negate {
			return "NOT " + exists, nil
		}
		return exists, nil
	}
	return "", fmt.Errorf("unknown field %q for %s", c.Field, b.t.name)
}

func (b *whereBuilder) scalarCond(col string, kind colKind, c core.Cond) (string, error) {
	switch c.Op {
	case core.OpIn, core.OpNin:
		list, _ := c.Value.([]string)
		clause := "0"
		if kind == colText {
			enc, err := json.Marshal(list)
			if err != nil {
				return "", err
			}
			clause = fmt.Sprintf("COALESCE(%s IN (SELECT value FROM json_each(%s)), 0)", col, b.arg(string(enc)))
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
			return "0", nil
		}
	}

	v, ok := scalarArg(kind, c.Value)
	if !ok {
		if c.Op == core.OpNe {
			return "1", nil
		}
		return "0", nil
	}
	switch c.Op {
	case core.OpEq:
		return fmt.Sprintf("%s = %s", col, b.arg(v)), nil
	case core.OpNe:
		return fmt.Sprintf("%s IS NOT %s", col, b.arg(v)), nil
	}
	op, err := sqlOp(c.Op)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", col, op, b.arg(v)), nil
}

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
			return core.FormatTime(t), true
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

// jsonCond compares the value at r with c.Value, guarding on its JSON kind.
func (b *whereBuilder) jsonCond(r jsonRef, c core.Cond) (string, error) {
	switch c.Op {
	case core.OpIn, core.OpNin:
		list, _ := c.Value.([]string)
		enc, err := json.Marshal(list)
		if err != nil {
			return "", err
		}
		clause := fmt.Sprintf("COALESCE(%s = 'text' AND %s IN (SELECT value FROM json_each(%s)), 0)",
			r.typ(), r.extract(), b.arg(string(enc)))
		if c.Op == core.OpNin {
			return "NOT " + clause, nil
		}
		return clause, nil
	case core.OpEq, core.OpNe:
		var clause string
		if c.Value == nil {
			clause = fmt.Sprintf("COALESCE(%s = 'null', 1)", r.typ())
		} else {
			s, err := b.compare(r, "=", c.Value)
			if err != nil {
				return "", err
			}
			clause = "COALESCE(" + s + ", 0)"
		}
		if c.Op == core.OpNe {
			return "NOT " + clause, nil
		}
		return clause, nil
	}
	op, err := sqlOp(c.Op)
	if err != nil {
		return "", err
	}
	s, err := b.compare(r, op, c.Value)
	if err != nil {
		return "", err
	}
	return "COALESCE(" + s + ", 0)", nil
}

// compare renders a kind-guarded comparison of r against v.
func (b *whereBuilder) compare(r jsonRef, op string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("(%s = 'text' AND %s %s %s)", r.typ(), r.extract(), op, b.arg(x)), nil
	case int64, int, float64:
		return fmt.Sprintf("(%s IN ('integer', 'real') AND %s %s %s)", r.typ(), r.extract(), op, b.arg(x)), nil
	case bool:
		n := 0
		if x {
			n = 1
		}
		return fmt.Sprintf("(%s IN ('true', 'false') AND %s %s %s)", r.typ(), r.extract(), op, b.arg(n)), nil
	case time.Time:
		return b.tagged(r, "$date", op, core.FormatTime(x)), nil
	case uuid.UUID:
		return b.tagged(r, "$oid", op, x.String()), nil
	default:
		return "", fmt.Errorf("unsupported comparison value %T", v)
	}
}

// tagged compares the inner string of an extended-JSON wrapper object.
func (b *whereBuilder) tagged(r jsonRef, key, op, value string) string {
	inner := fmt.Sprintf("json_extract(%s, %s || '.\"%s\"')", r.doc, r.path, key)
	return fmt.Sprintf("(%s = 'object' AND %s %s %s)", r.typ(), inner, op, b.arg(value))
}

func (b *whereBuilder) regex(r core.Regex) (string, error) {
	pattern := r.Pattern
	if r.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	ph := b.arg(pattern)

	if _, ok := b.t.columns[r.Field]; ok {
		return fmt.Sprintf("COALESCE(regexp(%s, %s), 0)", ph, columnName(r.Field)), nil
	}
	parts := strings.Split(r.Field, ".")
	head, rest := parts[0], parts[1:]
	if col, ok := b.t.json[head]; ok {
		ref := b.ref(col, rest)
		return fmt.Sprintf("COALESCE(%s = 'text' AND regexp(%s, %s), 0)", ref.typ(), ph, ref.extract()), nil
	}
	if col, ok := b.t.arrays[head]; ok && len(rest) > 0 {
		ref := b.ref("elem.value", rest)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS elem WHERE %s = 'text' AND regexp(%s, %s))",
			col, ref.typ(), ph, ref.extract()), nil
	}
	return "", fmt.Errorf("unknown field %q for %s", r.Field, b.t.name)
}

// orderBy sorts with rowid as the final tiebreaker, which keeps insertion
// order for equal keys.
func (b *whereBuilder) orderBy(sorts []core.SortField) (string, error) {
	parts := make([]string, 0, len(sorts)+1)
	for _, s := range sorts {
		var expr string
		if _, ok := b.t.columns[s.Field]; ok {
			expr = columnName(s.Field)
		} else {
			keys := strings.Split(s.Field, ".")
			col, ok := b.t.json[keys[0]]
			if !ok {
				return "", fmt.Errorf("cannot sort %s by %q", b.t.name, s.Field)
			}
			ref := b.ref(col, keys[1:])
			rank := "CASE " + ref.typ() + " WHEN 'null' THEN 0 WHEN 'integer' THEN 1 WHEN 'real' THEN 1" +
				" WHEN 'text' THEN 2 WHEN 'object' THEN 3 WHEN 'array' THEN 4 WHEN 'true' THEN 5 WHEN 'false' THEN 5 END"
			if s.Dir < 0 {
				parts = append(parts, rank+" DESC")
			} else {
				parts = append(parts, rank+" ASC")
			}
			expr = ref.extract()
		}
		if s.Dir < 0 {
			parts = append(parts, expr+" DESC")
		} else {
			parts = append(parts, expr+" ASC")
		}
	}
	parts = append(parts, "rowid ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (b *whereBuilder) page(skip, limit int) string {
	if limit <= 0 && skip <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	s := " LIMIT " + b.arg(limit)
	if skip > 0 {
		s += " OFFSET " + b.arg(skip)
	}
	return s
}

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
