package core

// upsert.go resolves the dataset and import a save writes into.
//
// The dataset is located by its matcher. When found, its descriptive fields
// and options are overwritten and the import entry is either replaced in
// place (the supplied import id is present) or appended. When not found, a
// new dataset is created holding a single import.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// importResolution is the outcome of the dataset/import upsert.
type importResolution struct {
	DatasetID uuid.UUID
	ImportID  uuid.UUID
	Created   bool
	// Replaced is set when an existing import entry was overwritten.
	Replaced bool
}

// saveImport upserts the dataset targeted by opts and records an import.
// importID is uuid.Nil when the caller supplied none. New datasets always get
// a fresh import id.
func (s *Service) saveImport(ctx context.Context, opts CoreOptions, importID uuid.UUID) (importResolution, error) {
	now := s.now().UTC()
	sheet := opts.Sheet()
	matcher := MatcherFor(opts.DatasetID, opts.Filename, sheet)

	entry := Import{
		ID:         s.newID(),
		CreatedAt:  now,
		Filename:   opts.Filename,
		SheetIndex: sheet,
	}

	existing, err := s.store.FindDataset(ctx, matcher.Filter())
	switch {
	case err == nil:
		return s.updateDataset(ctx, existing, opts, entry, importID)
	case errors.Is(err, ErrNotFound):
	default:
		return importResolution{}, fmt.Errorf("find dataset (%s): %w", matcher, err)
	}

	ds := &Dataset{
		ID:          s.newID(),
		Name:        opts.Filename,
		Title:       opts.Title,
		Description: opts.Description,
		UserRef:     opts.UserRef,
		SheetIndex:  sheet,
		Options:     opts.OptionsDocument(),
		Imports:     []Import{entry},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertDataset(ctx, ds); err != nil {
		return importResolution{}, fmt.Errorf("insert dataset (%s): %w", matcher, err)
	}
	return importResolution{DatasetID: ds.ID, ImportID: entry.ID, Created: true}, nil
}

// updateDataset overwrites an existing dataset and writes the import entry.
// The entry keeps the supplied import id only when that import is already on
// the dataset; otherwise it is appended under its fresh id.
func (s *Service) updateDataset(ctx context.Context, ds *Dataset, opts CoreOptions, entry Import, importID uuid.UUID) (importResolution, error) {
	idx := -1
	if importID != uuid.Nil {
		idx = ds.ImportIndex(importID)
	}
	if idx >= 0 {
		entry.ID = importID
	}

	update := DatasetUpdate{
		Name:        opts.Filename,
		Title:       opts.Title,
		Description: opts.Description,
		UserRef:     opts.UserRef,
		Options:     opts.OptionsDocument(),
		UpdatedAt:   entry.CreatedAt,
		Import:      entry,
		ImportIndex: idx,
	}
	if err := s.store.UpdateDataset(ctx, ds.ID, update); err != nil {
		return importResolution{}, fmt.Errorf("update dataset %s: %w", ds.ID, err)
	}
	return importResolution{DatasetID: ds.ID, ImportID: entry.ID, Replaced: idx >= 0}, nil
}
