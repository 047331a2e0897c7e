package web

// handlers_common.go parses query parameters shared by the dataset handlers.

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// parseIntParam parses a non-negative integer query parameter, falling back
// to defaultVal when it is absent or malformed.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// parseBoolParam reports whether a query parameter is set to a true value.
func parseBoolParam(r *http.Request, name string) bool {
	b, ok := core.ParseBool(r.URL.Query().Get(name))
	return ok && b
}

// parseRowFilters builds row filters from the query string. Two shapes are
// accepted and combined:
//
//	f=<field>&v=<value>&o=<op>&dt=<type>      one filter
//	filter[<field>]=<op>:<value>              repeatable, with type[<field>]=<type>
//
// A filter[...] value without an operator prefix is an equality match.
func parseRowFilters(q url.Values) []core.Expr {
	var out []core.Expr

	if field := strings.TrimSpace(q.Get("f")); field != "" {
		out = append(out, core.BuildFilter(core.FilterParam{
			Field: field,
			Value: q.Get("v"),
			Op:    q.Get("o"),
			Type:  core.ParseDataType(q.Get("dt")),
		}))
	}

	for key, values := range q {
		field, ok := bracketKey(key, "filter")
		if !ok {
			continue
		}
		dt := q.Get("type[" + field + "]")
		for _, val := range values {
			op, value := "eq", val
			if before, after, found := strings.Cut(val, ":"); found && isOperator(before) {
				op, value = before, after
			}
			out = append(out, core.BuildFilter(core.FilterParam{
				Field: field,
				Value: value,
				Op:    op,
				Type:  core.ParseDataType(dt),
			}))
		}
	}
	return out
}

// bracketKey extracts name from "<prefix>[name]".
func bracketKey(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix+"[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	name := strings.TrimSpace(key[len(prefix)+1 : len(key)-1])
	return name, name != ""
}

// isOperator reports whether s names a filter operator or alias.
func isOperator(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	return s == "eq" || core.NormalizeOp(s) != "eq"
}
