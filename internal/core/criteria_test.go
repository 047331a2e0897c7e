package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name string
		in   FilterParam
		want Expr
	}{
		{
			name: "default op is eq with cast value",
			in:   FilterParam{Field: "qty", Value: "10"},
			want: Cond{Field: "data.qty", Op: OpEq, Value: float64(10)},
		},
		{
			name: "gt with declared integer",
			in:   FilterParam{Field: "qty", Value: "5", Op: "gt", Type: TypeInteger},
			want: Cond{Field: "data.qty", Op: OpGt, Value: int64(5)},
		},
		{
			name: "unknown op falls back to eq",
			in:   FilterParam{Field: "name", Value: "Widget", Op: "approx"},
			want: Cond{Field: "data.name", Op: OpEq, Value: "Widget"},
		},
		{
			name: "in splits and trims",
			in:   FilterParam{Field: "sku", Value: "a, b ,c", Op: "in"},
			want: Cond{Field: "data.sku", Op: OpIn, Value: []string{"a", "b", "c"}},
		},
		{
			name: "nin keeps strings untyped",
			in:   FilterParam{Field: "sku", Value: "1,2", Op: "NIN", Type: TypeInteger},
			want: Cond{Field: "data.sku", Op: OpNin, Value: []string{"1", "2"}},
		},
		{
			name: "regex alias is case insensitive",
			in:   FilterParam{Field: "name", Value: "^wid", Op: "r"},
			want: Regex{Field: "data.name", Pattern: "^wid", CaseInsensitive: true},
		},
		{
			name: "case sensitive regex",
			in:   FilterParam{Field: "name", Value: "^Wid", Op: "cs"},
			want: Regex{Field: "data.name", Pattern: "^Wid"},
		},
		{
			name: "invalid regex is matched literally",
			in:   FilterParam{Field: "name", Value: "a(b", Op: "regex"},
			want: Regex{Field: "data.name", Pattern: `a\(b`, CaseInsensitive: true},
		},
		{
			name: "like escapes and anchors",
			in:   FilterParam{Field: "name", Value: "a.b%", Op: "like"},
			want: Regex{Field: "data.name", Pattern: `^a\.b.*$`, CaseInsensitive: true},
		},
		{
			name: "starts",
			in:   FilterParam{Field: "name", Value: "Wi+", Op: "starts"},
			want: Regex{Field: "data.name", Pattern: `^Wi\+`, CaseInsensitive: true},
		},
		{
			name: "ends",
			in:   FilterParam{Field: "name", Value: ".csv", Op: "ends"},
			want: Regex{Field: "data.name", Pattern: `\.csv$`, CaseInsensitive: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFilter(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildFilter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildFilter_DateValue(t *testing.T) {
	got, ok := BuildFilter(FilterParam{Field: "when", Value: "2024-01-01", Op: "eq", Type: TypeDate}).(Cond)
	if !ok {
		t.Fatalf("BuildFilter() = %T, want Cond", got)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if ts, ok := got.Value.(time.Time); !ok || !ts.Equal(want) {
		t.Errorf("value = %v, want timestamp %v", got.Value, want)
	}
}

func TestLikePattern_Literal(t *testing.T) {
	dot := regexp.MustCompile("(?i)" + LikePattern("a.b"))
	for s, want := range map[string]bool{
		"a.b":  true,
		"A.B":  true,
		"axb":  false,
		"a.bc": false,
	} {
		if got := dot.MatchString(s); got != want {
			t.Errorf("like(a.b) match %q = %v, want %v", s, got, want)
		}
	}

	re := regexp.MustCompile("(?i)" + LikePattern("50% (net)"))
	for s, want := range map[string]bool{
		"50% (net)":      true,
		"50 units (NET)": true,
		"50% net":        false,
		"x50% (net)":     false,
	} {
		if got := re.MatchString(s); got != want {
			t.Errorf("like match %q = %v, want %v", s, got, want)
		}
	}
}

func TestSearchFilter(t *testing.T) {
	if got := SearchFilter("  ", ""); got != nil {
		t.Errorf("SearchFilter(empty) = %v, want nil", got)
	}

	text := SearchFilter("q1.report", "")
	or, ok := text.(Or)
	if !ok || len(or) != 4 {
		t.Fatalf("SearchFilter(text) = %v, want Or of 4", text)
	}
	wantFields := []string{FieldName, FieldImportFilename, FieldTitle, FieldDescription}
	for i, e := range or {
		r := e.(Regex)
		if r.Field != wantFields[i] || r.Pattern != `\bq1\.report` || !r.CaseInsensitive {
			t.Errorf("branch %d = %+v", i, r)
		}
	}

	user := SearchFilter("", "jo+")
	want := Regex{Field: FieldUserRef, Pattern: `^jo\+`, CaseInsensitive: true}
	if diff := cmp.Diff(Expr(want), user); diff != "" {
		t.Errorf("SearchFilter(user) mismatch (-want +got):\n%s", diff)
	}

	both, ok := SearchFilter("q1", "jo").(And)
	if !ok || len(both) != 2 {
		t.Errorf("SearchFilter(both) = %v, want And of 2", both)
	}
}

func TestParseSortDirection(t *testing.T) {
	tests := map[string]int{
		"":           1,
		"asc":        1,
		"ASC":        1,
		"desc":       -1,
		"descending": -1,
		"d":          -1,
		"downward":   -1,
		"dsc":        -1,
		"-1":         -1,
		"-0.5":       -1,
		"1":          1,
		"0":          1,
		"sideways":   1,
	}
	for in, want := range tests {
		if got := ParseSortDirection(in); got != want {
			t.Errorf("ParseSortDirection(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDatasetSort(t *testing.T) {
	tests := []struct {
		key, dir string
		want     SortField
	}{
		{"", "", SortField{FieldCreatedAt, -1}},
		{"bogus", "asc", SortField{FieldCreatedAt, -1}},
		{"bogus", "desc", SortField{FieldCreatedAt, -1}},
		{"created", "asc", SortField{FieldCreatedAt, 1}},
		{"Created_At", "", SortField{FieldCreatedAt, -1}},
		{"updated", "desc", SortField{FieldUpdatedAt, -1}},
		{"modified", "asc", SortField{FieldUpdatedAt, 1}},
		{"older", "1", SortField{FieldUpdatedAt, 1}},
	}
	for _, tt := range tests {
		got := DatasetSort(tt.key, tt.dir)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("DatasetSort(%q, %q) = %v, want %v", tt.key, tt.dir, got, tt.want)
		}
	}
}

func TestRowSort(t *testing.T) {
	if got := RowSort("", "desc"); got != nil {
		t.Errorf("RowSort(empty) = %v, want nil", got)
	}
	got := RowSort("price", "desc")
	if len(got) != 1 || got[0] != (SortField{Field: "data.price", Dir: -1}) {
		t.Errorf("RowSort(price, desc) = %v", got)
	}
}

func TestPagingNormalize(t *testing.T) {
	p := DefaultPaging()
	tests := []struct {
		start, limit       int
		wantSkip, wantLim int
	}{
		{0, 0, 0, 100},
		{-5, -1, 0, 100},
		{20, 50, 20, 50},
		{0, 20000, 0, 10000},
		{0, 10000, 0, 10000},
	}
	for _, tt := range tests {
		skip, lim := p.Normalize(tt.start, tt.limit)
		if skip != tt.wantSkip || lim != tt.wantLim {
			t.Errorf("Normalize(%d, %d) = %d, %d; want %d, %d",
				tt.start, tt.limit, skip, lim, tt.wantSkip, tt.wantLim)
		}
	}
}

func TestAllOf(t *testing.T) {
	a := Eq("a", 1)
	b := Eq("b", 2)
	if got := AllOf(); got != nil {
		t.Errorf("AllOf() = %v, want nil", got)
	}
	if diff := cmp.Diff(Expr(a), AllOf(nil, a)); diff != "" {
		t.Errorf("AllOf(nil, a) mismatch:\n%s", diff)
	}
	if diff := cmp.Diff(Expr(And{a, b, a}), AllOf(And{a, b}, nil, a)); diff != "" {
		t.Errorf("AllOf flatten mismatch:\n%s", diff)
	}
}
