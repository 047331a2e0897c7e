package core

import (
	"encoding/json"
	"fmt"
	"testing"
)

// ============================================================================
// Value Conversion Benchmarks
// ============================================================================

// BenchmarkToStorage_Row benchmarks normalizing a typical spreadsheet row.
// This runs once per row on every save.
func BenchmarkToStorage_Row(b *testing.B) {
	row := map[string]any{
		"sku":      "A-100",
		"qty":      json.Number("42"),
		"price":    json.Number("19.99"),
		"shipped":  "2024-01-15T10:30:00Z",
		"note":     "  plain text  ",
		"active":   true,
		"category": nil,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ToStorage(row)
	}
}

// BenchmarkLooksLikeDate benchmarks the date shape check applied to every string cell.
func BenchmarkLooksLikeDate(b *testing.B) {
	testCases := []string{
		"2024-01-15",
		"2024-01-15T10:30:00.123Z",
		"2024-01-15 10:30",
		"not a date",
		"12345",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			LooksLikeDate(tc)
		}
	}
}

// ============================================================================
// Codec Benchmarks
// ============================================================================

// BenchmarkEncodeDocument benchmarks encoding a stored row document.
func BenchmarkEncodeDocument(b *testing.B) {
	doc := ToStorageDocument(map[string]any{
		"sku":     "A-100",
		"qty":     json.Number("42"),
		"shipped": "2024-01-15T10:30:00Z",
		"tags":    []any{"a", "b"},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodeDocument(doc); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodeDocument benchmarks decoding a stored row document.
func BenchmarkDecodeDocument(b *testing.B) {
	raw, err := EncodeDocument(ToStorageDocument(map[string]any{
		"sku":     "A-100",
		"qty":     json.Number("42"),
		"shipped": "2024-01-15T10:30:00Z",
	}))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeDocument(raw); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Criteria Benchmarks
// ============================================================================

// BenchmarkBuildFilter benchmarks translating request filters.
func BenchmarkBuildFilter(b *testing.B) {
	params := []FilterParam{
		{Field: "qty", Value: "10", Op: "gte", Type: TypeInteger},
		{Field: "sku", Value: "a%", Op: "like"},
		{Field: "region", Value: "east,west", Op: "in"},
		{Field: "shipped", Value: "2024-01-01", Op: "lt", Type: TypeDate},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, p := range params {
			BuildFilter(p)
		}
	}
}

// BenchmarkSearchFilter benchmarks the dataset search expression.
func BenchmarkSearchFilter(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SearchFilter("q3 report", "user-1")
	}
}

// BenchmarkSearchFilter_Large benchmarks search with long free text.
func BenchmarkSearchFilter_Large(b *testing.B) {
	text := ""
	for i := 0; i < 50; i++ {
		text += fmt.Sprintf("term%d ", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SearchFilter(text, "")
	}
}
