package postgres

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

func TestWhereBuilder_Rows(t *testing.T) {
	id := uuid.MustParse("0190f5c2-7d1e-7000-8000-00000000abcd")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     core.Expr
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "nil",
			expr:     nil,
			wantSQL:  "",
			wantArgs: nil,
		},
		{
			name:     "uuid column",
			expr:     core.Eq(core.FieldDatasetID, id),
			wantSQL:  " WHERE dataset_id = $1::uuid",
			wantArgs: []any{id.String()},
		},
		{
			name:     "uuid column with wrong kind never matches",
			expr:     core.Eq(core.FieldRowImport, "not-a-uuid"),
			wantSQL:  " WHERE FALSE",
			wantArgs: nil,
		},
		{
			name:     "json equality",
			expr:     core.Eq("data.qty", int64(10)),
			wantSQL:  " WHERE (data #> $1::text[]) = $2::jsonb",
			wantArgs: []any{[]string{"qty"}, "10"},
		},
		{
			name:     "json timestamp equality uses extended json",
			expr:     core.Eq("data.when", day),
			wantSQL:  " WHERE (data #> $1::text[]) = $2::jsonb",
			wantArgs: []any{[]string{"when"}, `{"$date":"2024-01-01T00:00:00.000Z"}`},
		},
		{
			name:     "json not equal",
			expr:     core.Cond{Field: "data.name", Op: core.OpNe, Value: "x"},
			wantSQL:  " WHERE (data #> $1::text[]) IS DISTINCT FROM $2::jsonb",
			wantArgs: []any{[]string{"name"}, `"x"`},
		},
		{
			name:     "json null equality",
			expr:     core.Eq("data.gone", nil),
			wantSQL:  " WHERE COALESCE((data #> $1::text[]) = 'null'::jsonb, TRUE)",
			wantArgs: []any{[]string{"gone"}},
		},
		{
			name:     "numeric range",
			expr:     core.Cond{Field: "data.qty", Op: core.OpGt, Value: float64(5)},
			wantSQL:  " WHERE CASE WHEN jsonb_typeof((data #> $1::text[])) = 'number' THEN ((data #> $1::text[]))::float8 > $2::float8 ELSE FALSE END",
			wantArgs: []any{[]string{"qty"}, float64(5)},
		},
		{
			name:     "timestamp range",
			expr:     core.Cond{Field: "data.when", Op: core.OpLte, Value: day},
			wantSQL:  ` WHERE ((data #> $1::text[]) ->> '$date') COLLATE "C" <= $2`,
			wantArgs: []any{[]string{"when"}, "2024-01-01T00:00:00.000Z"},
		},
		{
			name:     "nested path in",
			expr:     core.Cond{Field: "data.a.b", Op: core.OpIn, Value: []string{"x", "y"}},
			wantSQL:  " WHERE COALESCE(jsonb_typeof((data #> $1::text[])) = 'string' AND (data #> $1::text[]) #>> '{}' = ANY($2::text[]), FALSE)",
			wantArgs: []any{[]string{"a", "b"}, []string{"x", "y"}},
		},
		{
			name:     "regex case insensitive",
			expr:     core.Regex{Field: "data.name", Pattern: `\bwid`, CaseInsensitive: true},
			wantSQL:  " WHERE (jsonb_typeof((data #> $2::text[])) = 'string' AND (data #> $2::text[]) #>> '{}' ~* $1)",
			wantArgs: []any{`\ywid`, []string{"name"}},
		},
		{
			name: "and or",
			expr: core.And{
				core.Eq(core.FieldDatasetID, id),
				core.Or{core.Eq("data.a", "x"), core.Or{}},
			},
			wantSQL:  " WHERE (dataset_id = $1::uuid AND ((data #> $2::text[]) = $3::jsonb OR FALSE))",
			wantArgs: []any{id.String(), []string{"a"}, `"x"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newWhereBuilder(rowsTable)
			got, err := b.where(tt.expr)
			if err != nil {
				t.Fatalf("where() error: %v", err)
			}
			if got != tt.wantSQL {
				t.Errorf("where() =\n  %s\nwant\n  %s", got, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, b.args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWhereBuilder_Datasets(t *testing.T) {
	b := newWhereBuilder(datasetsTable)
	got, err := b.where(core.SearchFilter("q1", "al"))
	if err != nil {
		t.Fatalf("where() error: %v", err)
	}
	want := " WHERE ((name ~* $1 OR EXISTS (SELECT 1 FROM jsonb_array_elements(imports) AS elem WHERE jsonb_typeof((elem #> $3::text[])) = 'string' AND (elem #> $3::text[]) #>> '{}' ~* $2) OR title ~* $4 OR description ~* $5) AND user_ref ~* $6)"
	if got != want {
		t.Errorf("where() =\n  %s\nwant\n  %s", got, want)
	}
	if b.args[0] != `\yq1` || b.args[5] != "^al" {
		t.Errorf("args = %v", b.args)
	}

	b = newWhereBuilder(datasetsTable)
	got, err = b.where(core.MatchByNameIndex("f.csv", 2).Filter())
	if err != nil {
		t.Fatalf("where() error: %v", err)
	}
	if want := " WHERE (name = $1 AND sheet_index = $2::bigint)"; got != want {
		t.Errorf("where() = %s, want %s", got, want)
	}
}

func TestWhereBuilder_UnknownField(t *testing.T) {
	b := newWhereBuilder(rowsTable)
	if _, err := b.where(core.Eq("bogus", 1)); err == nil {
		t.Error("where() on unknown field should fail")
	}
}

func TestSelectSQL(t *testing.T) {
	b := newWhereBuilder(rowsTable)
	got, err := b.selectSQL("id", core.Query{
		Filter: core.Eq(core.FieldDatasetID, uuid.Nil),
		Sort:   []core.SortField{{Field: "data.n", Dir: -1}},
		Skip:   20,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("selectSQL() error: %v", err)
	}
	want := "SELECT id FROM data_rows WHERE dataset_id = $1::uuid ORDER BY CASE jsonb_typeof((data #> $2::text[])) WHEN 'null' THEN 0 WHEN 'number' THEN 1 WHEN 'string' THEN 2" +
		" WHEN 'object' THEN 3 WHEN 'array' THEN 4 WHEN 'boolean' THEN 5 END DESC NULLS LAST, (data #> $2::text[]) DESC NULLS LAST, id ASC LIMIT $3 OFFSET $4"
	if got != want {
		t.Errorf("selectSQL() =\n  %s\nwant\n  %s", got, want)
	}
}

func TestToPostgresRegex(t *testing.T) {
	tests := map[string]string{
		`\bword`:     `\yword`,
		`\Bx`:        `\Yx`,
		`a\\b`:       `a\\b`,
		`\.csv$`:     `\.csv$`,
		`trailing\`:  `trailing\`,
		`^plain.*$`:  `^plain.*$`,
	}
	for in, want := range tests {
		if got := toPostgresRegex(in); got != want {
			t.Errorf("toPostgresRegex(%q) = %q, want %q", in, got, want)
		}
	}
}
