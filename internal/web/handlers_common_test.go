package web

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

func TestParseRowFilters(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		query string
		want  []core.Expr
	}{
		{"none", "", nil},
		{
			"single",
			"f=qty&v=5&o=gt",
			[]core.Expr{core.Cond{Field: "data.qty", Op: core.OpGt, Value: float64(5)}},
		},
		{
			"single typed",
			"f=qty&v=5&o=gt&dt=int",
			[]core.Expr{core.Cond{Field: "data.qty", Op: core.OpGt, Value: int64(5)}},
		},
		{
			"bracket with op",
			"filter[name]=starts:wid",
			[]core.Expr{core.Regex{Field: "data.name", Pattern: "^wid", CaseInsensitive: true}},
		},
		{
			"bracket without op keeps colon",
			"filter[url]=" + url.QueryEscape("http://x"),
			[]core.Expr{core.Cond{Field: "data.url", Op: core.OpEq, Value: "http://x"}},
		},
		{
			"bracket typed",
			"filter[when]=gte:2024-01-01&type[when]=date",
			[]core.Expr{core.Cond{Field: "data.when", Op: core.OpGte, Value: day}},
		},
		{
			"bracket in",
			"filter[code]=in:a,b",
			[]core.Expr{core.Cond{Field: "data.code", Op: core.OpIn, Value: []string{"a", "b"}}},
		},
		{"empty bracket ignored", "filter[]=x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			got := parseRowFilters(q)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseRowFilters(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"n=3", 3},
		{"n=0", 0},
		{"n=-1", 7},
		{"n=abc", 7},
		{"n=%2012", 12},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/?"+tt.query, nil)
		if got := parseIntParam(r, "n", 7); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		"DS001":  404,
		"DS004":  503,
		"REQ001": 400,
		"REQ004": 429,
		"ERR000": 500,
		"":       500,
	}
	for code, want := range tests {
		if got := statusFor(code); got != want {
			t.Errorf("statusFor(%q) = %d, want %d", code, got, want)
		}
	}
}
