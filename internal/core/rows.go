package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultBatchSize is the number of rows written per insert call.
const DefaultBatchSize = 1000

// ReplaceMode decides which existing rows a save removes before writing.
type ReplaceMode int

const (
	// ModeAppend keeps every existing row.
	ModeAppend ReplaceMode = iota
	// ModeReplaceImport removes the rows of the supplied import.
	ModeReplaceImport
	// ModeReplaceAll removes every row of the dataset.
	ModeReplaceAll
)

// ReplaceModeFor derives the mode of a save. Append wins over an import id.
func ReplaceModeFor(appendRows, hasImportID bool) ReplaceMode {
	switch {
	case appendRows:
		return ModeAppend
	case hasImportID:
		return ModeReplaceImport
	default:
		return ModeReplaceAll
	}
}

func (m ReplaceMode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeReplaceImport:
		return "replace_import"
	case ModeReplaceAll:
		return "replace_all"
	default:
		return fmt.Sprintf("ReplaceMode(%d)", int(m))
	}
}

// deleteScope returns the filter of rows the mode removes, or nil.
func (m ReplaceMode) deleteScope(datasetID, importID uuid.UUID) Expr {
	switch m {
	case ModeReplaceImport:
		return And{Eq(FieldDatasetID, datasetID), Eq(FieldRowImport, importID)}
	case ModeReplaceAll:
		return Eq(FieldDatasetID, datasetID)
	default:
		return nil
	}
}

// saveRows writes rows into a dataset under mode. With a primary key, rows
// carrying that key update the matching row of the dataset in place and only
// misses are inserted. Returns updates plus inserts.
func (s *Service) saveRows(ctx context.Context, datasetID, importID uuid.UUID, mode ReplaceMode, pk string, rows []map[string]any) (int, error) {
	if scope := mode.deleteScope(datasetID, importID); scope != nil {
		deleted, err := s.store.DeleteRows(ctx, scope)
		if err != nil {
			return 0, fmt.Errorf("delete rows (%s): %w", mode, err)
		}
		CounterRowsDeleted.Add(float64(deleted))
	}

	count := 0
	pending := make([]Row, 0, min(len(rows), s.batchSize))
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := s.store.InsertRows(ctx, pending)
		if err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		count += n
		pending = pending[:0]
		return nil
	}

	for _, raw := range rows {
		data := ToStorageDocument(raw)
		if data == nil {
			data = Document{}
		}
		if key, ok := data[pk]; pk != "" && ok && key != nil {
			// Earlier rows may carry the same key.
			if err := flush(); err != nil {
				return count, err
			}
			filter := And{Eq(FieldDatasetID, datasetID), Eq(DataField(pk), key)}
			updated, err := s.store.UpdateRow(ctx, filter, importID, data)
			if err != nil {
				return count, fmt.Errorf("update row %s=%v: %w", pk, key, err)
			}
			if updated {
				count++
				continue
			}
		}
		pending = append(pending, Row{
			ID:        s.newID(),
			DatasetID: datasetID,
			ImportID:  importID,
			Data:      data,
		})
		if len(pending) >= s.batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := flush(); err != nil {
		return count, err
	}
	CounterRowsWritten.WithLabelValues(mode.String()).Add(float64(count))
	return count, nil
}
