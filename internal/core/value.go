package core

// value.go converts payload values between their external form (what clients
// send and receive as JSON) and their storage form (tagged Go values).
//
// Storage form uses:
//   - uuid.UUID for identifiers
//   - time.Time (UTC) for timestamps
//   - int64 / float64 for numbers
//   - Document and []any for nesting
//
// Conversions never fail. A value that cannot be converted is kept as is.

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the external rendering of timestamps: UTC, millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// isoDateRegex is the loose ISO-8601 shape that is stored as a timestamp.
var isoDateRegex = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d{1,9})?)?)?(Z|[+-]\d{2}:?\d{2})?$`)

// dateLayouts are tried in order after the separator is normalized to 'T'.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04",
	"2006-01-02Z07:00",
	"2006-01-02Z0700",
	"2006-01-02",
}

// maxExactFloat is the largest integer a float64 holds without loss.
const maxExactFloat = 1 << 53

// LooksLikeDate reports whether s has the loose ISO-8601 timestamp shape.
func LooksLikeDate(s string) bool {
	return isoDateRegex.MatchString(strings.TrimSpace(s))
}

// ParseTime parses a loose ISO-8601 timestamp. Values without a zone are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !isoDateRegex.MatchString(s) {
		return time.Time{}, false
	}
	s = strings.Replace(s, " ", "T", 1)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t in the external timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ToStorage converts an external value to storage form, recursing into maps
// and slices. Date-like strings become timestamps; numbers become int64 when
// integral.
func ToStorage(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if t, ok := ParseTime(x); ok {
			return t
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxExactFloat {
			return int64(x)
		}
		return x
	case float32:
		return ToStorage(float64(x))
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		return x.UTC()
	case map[string]any:
		return ToStorageDocument(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToStorage(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToStorage(item)
		}
		return out
	default:
		return v
	}
}

// ToStorageDocument converts every value of an external document.
func ToStorageDocument(doc map[string]any) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = ToStorage(v)
	}
	return out
}

// FromStorage converts a storage value back to external form: ids become
// strings and timestamps become ISO-8601 strings.
func FromStorage(v any) any {
	switch x := v.(type) {
	case time.Time:
		return FormatTime(x)
	case uuid.UUID:
		return x.String()
	case map[string]any:
		return FromStorageDocument(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = FromStorage(item)
		}
		return out
	default:
		return v
	}
}

// FromStorageDocument converts every value of a storage document.
func FromStorageDocument(doc Document) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = FromStorage(v)
	}
	return out
}
