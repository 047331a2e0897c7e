package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DatasetMatcher identifies the dataset a save targets: an explicit id, or
// the pair of name and sheet index.
type DatasetMatcher struct {
	byID       bool
	id         uuid.UUID
	name       string
	sheetIndex int
}

// MatchByID targets the dataset with the given id.
func MatchByID(id uuid.UUID) DatasetMatcher {
	return DatasetMatcher{byID: true, id: id}
}

// MatchByNameIndex targets the dataset with the given name and sheet index.
func MatchByNameIndex(name string, sheetIndex int) DatasetMatcher {
	return DatasetMatcher{name: name, sheetIndex: sheetIndex}
}

// MatcherFor prefers a parseable dataset id and falls back to name plus
// sheet index.
func MatcherFor(datasetID, name string, sheetIndex int) DatasetMatcher {
	if id, err := ParseID(datasetID); err == nil {
		return MatchByID(id)
	}
	return MatchByNameIndex(name, sheetIndex)
}

// ByID reports whether the matcher targets an explicit id.
func (m DatasetMatcher) ByID() bool { return m.byID }

// Filter returns the dataset filter for this matcher.
func (m DatasetMatcher) Filter() Expr {
	if m.byID {
		return Eq(FieldID, m.id)
	}
	return And{
		Eq(FieldName, m.name),
		Eq(FieldSheetIndex, int64(m.sheetIndex)),
	}
}

func (m DatasetMatcher) String() string {
	if m.byID {
		return "id=" + m.id.String()
	}
	return fmt.Sprintf("name=%q sheet=%d", m.name, m.sheetIndex)
}

// ParseID parses a canonical identifier. Empty or malformed input yields
// ErrInvalidID.
func ParseID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: empty", ErrInvalidID)
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
