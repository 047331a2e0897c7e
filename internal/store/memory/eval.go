package memory

// eval.go evaluates filter expressions and sort orders against documents in
// storage form.
//
// Comparisons only succeed between values of the same kind (numbers with
// numbers, strings with strings, timestamps with timestamps). Sorting across
// kinds orders by kind first: missing/null, numbers, strings, documents,
// arrays, ids, booleans, timestamps.

import (
	"bytes"
	"cmp"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// lookup resolves a dotted path. Arrays met on the way fan out, so
// "imports.filename" yields the filename of every import.
func lookup(doc core.Document, path string) []any {
	values := []any{doc}
	for _, key := range strings.Split(path, ".") {
		var next []any
		for _, v := range values {
			next = appendField(next, v, key)
		}
		if len(next) == 0 {
			return nil
		}
		values = next
	}
	return values
}

func appendField(dst []any, v any, key string) []any {
	switch x := v.(type) {
	case map[string]any:
		if field, ok := x[key]; ok {
			dst = append(dst, field)
		}
	case []any:
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				if field, ok := m[key]; ok {
					dst = append(dst, field)
				}
			}
		}
	}
	return dst
}

// matches reports whether doc satisfies e. A nil expression matches.
func matches(doc core.Document, e core.Expr) bool {
	switch x := e.(type) {
	case nil:
		return true
	case core.And:
		for _, child := range x {
			if !matches(doc, child) {
				return false
			}
		}
		return true
	case core.Or:
		for _, child := range x {
			if matches(doc, child) {
				return true
			}
		}
		return false
	case core.Cond:
		return matchesCond(lookup(doc, x.Field), x)
	case core.Regex:
		return matchesRegex(lookup(doc, x.Field), x)
	default:
		return false
	}
}

func matchesCond(values []any, c core.Cond) bool {
	switch c.Op {
	case core.OpEq:
		return anyEqual(values, c.Value)
	case core.OpNe:
		return !anyEqual(values, c.Value)
	case core.OpIn:
		return anyIn(values, c.Value)
	case core.OpNin:
		return !anyIn(values, c.Value)
	}
	for _, v := range values {
		n, ok := compareValues(v, c.Value)
		if !ok {
			continue
		}
		switch c.Op {
		case core.OpGt:
			ok = n > 0
		case core.OpGte:
			ok = n >= 0
		case core.OpLt:
			ok = n < 0
		case core.OpLte:
			ok = n <= 0
		default:
			ok = false
		}
		if ok {
			return true
		}
	}
	return false
}

// anyEqual treats a missing field as null.
func anyEqual(values []any, want any) bool {
	if len(values) == 0 {
		return want == nil
	}
	for _, v := range values {
		if n, ok := compareValues(v, want); ok && n == 0 {
			return true
		}
	}
	return false
}

func anyIn(values []any, list any) bool {
	items, _ := list.([]string)
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if slices.Contains(items, s) {
			return true
		}
	}
	return false
}

func matchesRegex(values []any, r core.Regex) bool {
	re, err := compile(r)
	if err != nil {
		return false
	}
	for _, v := range values {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func compile(r core.Regex) (*regexp.Regexp, error) {
	if r.CaseInsensitive {
		return regexp.Compile("(?i)" + r.Pattern)
	}
	return regexp.Compile(r.Pattern)
}

// kind ranks a value for cross-type ordering.
func kind(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int32, int64, float32, float64:
		return 1
	case string:
		return 2
	case map[string]any:
		return 3
	case []any:
		return 4
	case uuid.UUID:
		return 5
	case bool:
		return 6
	case time.Time:
		return 7
	default:
		return 8
	}
}

// compareValues compares two values of the same kind. ok is false when the
// kinds differ or the kind has no ordering.
func compareValues(a, b any) (n int, ok bool) {
	if kind(a) != kind(b) {
		return 0, false
	}
	switch va := a.(type) {
	case nil:
		return 0, true
	case string:
		return cmp.Compare(va, b.(string)), true
	case bool:
		vb := b.(bool)
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		return va.Compare(b.(time.Time)), true
	case uuid.UUID:
		vb := b.(uuid.UUID)
		return bytes.Compare(va[:], vb[:]), true
	}
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return cmp.Compare(fa, fb), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// sortValue is the value a document sorts by: the first value at path, or
// nil when missing.
func sortValue(doc core.Document, path string) any {
	values := lookup(doc, path)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// compareForSort orders by kind, then by value within a kind.
func compareForSort(a, b any) int {
	if ka, kb := kind(a), kind(b); ka != kb {
		return cmp.Compare(ka, kb)
	}
	n, _ := compareValues(a, b)
	return n
}

// sortDocuments sorts idx (positions into docs) stably by the sort fields.
func sortDocuments(docs []core.Document, idx []int, sorts []core.SortField) {
	if len(sorts) == 0 {
		return
	}
	slices.SortStableFunc(idx, func(i, j int) int {
		for _, s := range sorts {
			c := compareForSort(sortValue(docs[i], s.Field), sortValue(docs[j], s.Field))
			if c != 0 {
				if s.Dir < 0 {
					return -c
				}
				return c
			}
		}
		return 0
	})
}

// page applies skip and limit to a list of positions.
func page(idx []int, skip, limit int) []int {
	if skip >= len(idx) {
		return nil
	}
	idx = idx[skip:]
	if limit > 0 && limit < len(idx) {
		idx = idx[:limit]
	}
	return idx
}
