// Package memory is an in-process storage engine. It keeps datasets and rows
// in slices guarded by a RWMutex and evaluates filters in Go. It backs tests
// and DB_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// Store implements core.Store in memory.
type Store struct {
	mu       sync.RWMutex
	datasets []core.Dataset
	rows     []core.Row
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) FindDataset(ctx context.Context, filter core.Expr) (*core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.datasets {
		if matches(s.datasets[i].Document(), filter) {
			ds := cloneDataset(s.datasets[i])
			return &ds, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) InsertDataset(ctx context.Context, ds *core.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.datasets {
		if s.datasets[i].ID == ds.ID {
			return fmt.Errorf("insert dataset %s: duplicate key", ds.ID)
		}
	}
	s.datasets = append(s.datasets, cloneDataset(*ds))
	return nil
}

func (s *Store) UpdateDataset(ctx context.Context, id uuid.UUID, u core.DatasetUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.datasets {
		if s.datasets[i].ID == id {
			u.Options = cloneDocument(u.Options)
			u.Apply(&s.datasets[i])
			return nil
		}
	}
	return fmt.Errorf("dataset %s: %w", id, core.ErrNotFound)
}

func (s *Store) CountDatasets(ctx context.Context, filter core.Expr) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.datasets {
		if matches(s.datasets[i].Document(), filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindDatasets(ctx context.Context, q core.Query) ([]core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]core.Document, len(s.datasets))
	var idx []int
	for i := range s.datasets {
		docs[i] = s.datasets[i].Document()
		if matches(docs[i], q.Filter) {
			idx = append(idx, i)
		}
	}
	sortDocuments(docs, idx, q.Sort)

	var out []core.Dataset
	for _, i := range page(idx, q.Skip, q.Limit) {
		out = append(out, cloneDataset(s.datasets[i]))
	}
	return out, nil
}

func (s *Store) InsertRows(ctx context.Context, rows []core.Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		r.Data = cloneDocument(r.Data)
		s.rows = append(s.rows, r)
	}
	return len(rows), nil
}

func (s *Store) UpdateRow(ctx context.Context, filter core.Expr, importID uuid.UUID, data core.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		if matches(s.rows[i].Document(), filter) {
			s.rows[i].ImportID = importID
			s.rows[i].Data = cloneDocument(data)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteRows(ctx context.Context, filter core.Expr) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(r core.Row) bool {
		return matches(r.Document(), filter)
	})
	return int64(before - len(s.rows)), nil
}

func (s *Store) CountRows(ctx context.Context, filter core.Expr) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.rows {
		if matches(s.rows[i].Document(), filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) FindRows(ctx context.Context, q core.Query) ([]core.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]core.Document, len(s.rows))
	var idx []int
	for i := range s.rows {
		docs[i] = s.rows[i].Document()
		if matches(docs[i], q.Filter) {
			idx = append(idx, i)
		}
	}
	sortDocuments(docs, idx, q.Sort)

	var out []core.Row
	for _, i := range page(idx, q.Skip, q.Limit) {
		r := s.rows[i]
		r.Data = cloneDocument(r.Data)
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func cloneDataset(ds core.Dataset) core.Dataset {
	ds.Options = cloneDocument(ds.Options)
	ds.Imports = slices.Clone(ds.Imports)
	return ds
}

func cloneDocument(doc core.Document) core.Document {
	if doc == nil {
		return nil
	}
	out := make(core.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneDocument(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
