package core

// criteria.go translates REST query parameters into filter and sort
// expressions. Nothing here touches storage.

import (
	"regexp"
	"strconv"
	"strings"
)

// Pagination defaults.
const (
	DefaultLimit    = 100
	DefaultMaxLimit = 10000
)

// FilterParam is a single-field filter as received from a client.
type FilterParam struct {
	Field string
	Value string
	Op    string
	Type  DataType
}

// opAliases maps accepted operator spellings to their canonical name.
var opAliases = map[string]string{
	"":         "eq",
	"eq":       "eq",
	"=":        "eq",
	"ne":       "ne",
	"neq":      "ne",
	"!=":       "ne",
	"gt":       "gt",
	">":        "gt",
	"gte":      "gte",
	"ge":       "gte",
	">=":       "gte",
	"lt":       "lt",
	"<":        "lt",
	"lte":      "lte",
	"le":       "lte",
	"<=":       "lte",
	"in":       "in",
	"nin":      "nin",
	"notin":    "nin",
	"regex":    "regex",
	"r":        "regex",
	"rgx":      "regex",
	"regex_cs": "regex_cs",
	"rcs":      "regex_cs",
	"cs":       "regex_cs",
	"like":     "like",
	"l":        "like",
	"starts":   "starts",
	"ends":     "ends",
}

// NormalizeOp returns the canonical operator name. Unknown operators are eq.
func NormalizeOp(op string) string {
	if canonical, ok := opAliases[strings.ToLower(strings.TrimSpace(op))]; ok {
		return canonical
	}
	return "eq"
}

// BuildFilter turns one field/value/operator triple into an expression over
// the row payload.
func BuildFilter(p FilterParam) Expr {
	field := DataField(strings.TrimSpace(p.Field))
	switch NormalizeOp(p.Op) {
	case "ne":
		return Cond{Field: field, Op: OpNe, Value: Cast(p.Value, p.Type)}
	case "gt":
		return Cond{Field: field, Op: OpGt, Value: Cast(p.Value, p.Type)}
	case "gte":
		return Cond{Field: field, Op: OpGte, Value: Cast(p.Value, p.Type)}
	case "lt":
		return Cond{Field: field, Op: OpLt, Value: Cast(p.Value, p.Type)}
	case "lte":
		return Cond{Field: field, Op: OpLte, Value: Cast(p.Value, p.Type)}
	case "in":
		return Cond{Field: field, Op: OpIn, Value: splitList(p.Value)}
	case "nin":
		return Cond{Field: field, Op: OpNin, Value: splitList(p.Value)}
	case "regex":
		return Regex{Field: field, Pattern: safePattern(p.Value), CaseInsensitive: true}
	case "regex_cs":
		return Regex{Field: field, Pattern: safePattern(p.Value)}
	case "like":
		return Regex{Field: field, Pattern: LikePattern(p.Value), CaseInsensitive: true}
	case "starts":
		return Regex{Field: field, Pattern: "^" + regexp.QuoteMeta(p.Value), CaseInsensitive: true}
	case "ends":
		return Regex{Field: field, Pattern: regexp.QuoteMeta(p.Value) + "$", CaseInsensitive: true}
	default:
		return Cond{Field: field, Op: OpEq, Value: Cast(p.Value, p.Type)}
	}
}

// splitList splits a comma separated list, trimming each entry.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// safePattern returns p when it compiles, otherwise p quoted so it matches
// literally.
func safePattern(p string) string {
	if _, err := regexp.Compile(p); err != nil {
		return regexp.QuoteMeta(p)
	}
	return p
}

// LikePattern converts a SQL-like pattern into an anchored regular
// expression. '%' matches any run of characters; everything else is literal.
func LikePattern(s string) string {
	parts := strings.Split(s, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}

// SearchFilter builds the dataset listing filter. text matches whole-word
// prefixes of the name, any import filename, the title or the description;
// userRef matches the start of the owner reference. When both are given the
// dataset must satisfy both. Returns nil when neither is given.
func SearchFilter(text, userRef string) Expr {
	var parts []Expr
	if t := strings.TrimSpace(text); t != "" {
		pattern := `\b` + regexp.QuoteMeta(t)
		parts = append(parts, Or{
			Regex{Field: FieldName, Pattern: pattern, CaseInsensitive: true},
			Regex{Field: FieldImportFilename, Pattern: pattern, CaseInsensitive: true},
			Regex{Field: FieldTitle, Pattern: pattern, CaseInsensitive: true},
			Regex{Field: FieldDescription, Pattern: pattern, CaseInsensitive: true},
		})
	}
	if u := strings.TrimSpace(userRef); u != "" {
		parts = append(parts, Regex{Field: FieldUserRef, Pattern: "^" + regexp.QuoteMeta(u), CaseInsensitive: true})
	}
	return AllOf(parts...)
}

// descendingWords are matched by prefix in either direction, so "d",
// "descending" and "downward" all sort descending.
var descendingWords = []string{"desc", "down", "dsc"}

// ParseSortDirection returns -1 for a descending hint and +1 otherwise.
func ParseSortDirection(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return 1
	case "asc", "ascending", "up":
		return 1
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n < 0 {
			return -1
		}
		return 1
	}
	for _, w := range descendingWords {
		if strings.HasPrefix(s, w) || strings.HasPrefix(w, s) {
			return -1
		}
	}
	return 1
}

// RowSort orders rows by a payload field. An empty field keeps storage order.
func RowSort(field, dir string) []SortField {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	return []SortField{{Field: DataField(field), Dir: ParseSortDirection(dir)}}
}

// DatasetSort orders datasets by creation or modification time. An empty
// direction sorts descending. An unknown key selects the default order,
// newest first, and dir is ignored.
func DatasetSort(key, dir string) []SortField {
	key = strings.ToLower(strings.TrimSpace(key))
	var field string
	switch {
	case strings.HasPrefix(key, "creat"):
		field = FieldCreatedAt
	case strings.HasPrefix(key, "updat"),
		strings.HasPrefix(key, "modif"),
		strings.HasPrefix(key, "older"):
		field = FieldUpdatedAt
	default:
		return []SortField{{Field: FieldCreatedAt, Dir: -1}}
	}
	d := -1
	if strings.TrimSpace(dir) != "" {
		d = ParseSortDirection(dir)
	}
	return []SortField{{Field: field, Dir: d}}
}

// Paging clamps page requests.
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultPaging returns the stock page size rules.
func DefaultPaging() Paging {
	return Paging{DefaultLimit: DefaultLimit, MaxLimit: DefaultMaxLimit}
}

// Normalize returns the effective skip and limit. Negative starts become 0, a
// missing limit becomes the default and large limits are capped.
func (p Paging) Normalize(start, limit int) (skip, lim int) {
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = DefaultLimit
	}
	if p.MaxLimit <= 0 {
		p.MaxLimit = DefaultMaxLimit
	}
	skip = max(start, 0)
	lim = limit
	if lim <= 0 {
		lim = p.DefaultLimit
	}
	return skip, min(lim, p.MaxLimit)
}
