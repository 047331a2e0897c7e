package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a dataset or import does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for malformed identifiers. It wraps
	// ErrNotFound, since a malformed id can never name an existing record.
	ErrInvalidID = fmt.Errorf("invalid identifier: %w", ErrNotFound)

	// ErrNoIdentifiers is returned when a save produced no dataset or
	// import id. It indicates an engine bug.
	ErrNoIdentifiers = errors.New("save produced no dataset/import identifiers")
)
