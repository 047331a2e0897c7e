package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the storage engine contract. Filters use the logical field paths
// declared in types.go; engines translate them to their own layout.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// FindDataset returns the first dataset matching filter, or ErrNotFound.
	FindDataset(ctx context.Context, filter Expr) (*Dataset, error)
	// InsertDataset stores a new dataset.
	InsertDataset(ctx context.Context, ds *Dataset) error
	// UpdateDataset applies u to the dataset with the given id. Returns
	// ErrNotFound when the dataset no longer exists.
	UpdateDataset(ctx context.Context, id uuid.UUID, u DatasetUpdate) error
	CountDatasets(ctx context.Context, filter Expr) (int64, error)
	FindDatasets(ctx context.Context, q Query) ([]Dataset, error)

	// InsertRows stores rows and returns how many were written.
	InsertRows(ctx context.Context, rows []Row) (int, error)
	// UpdateRow replaces the payload and import of the first row matching
	// filter. Reports whether a row matched.
	UpdateRow(ctx context.Context, filter Expr, importID uuid.UUID, data Document) (bool, error)
	// DeleteRows removes every row matching filter.
	DeleteRows(ctx context.Context, filter Expr) (int64, error)
	CountRows(ctx context.Context, filter Expr) (int64, error)
	FindRows(ctx context.Context, q Query) ([]Row, error)

	Ping(ctx context.Context) error
	Close() error
}

// DatasetUpdate overwrites the descriptive fields of a dataset and writes one
// import entry.
type DatasetUpdate struct {
	Name        string
	Title       string
	Description string
	UserRef     string
	Options     Document
	UpdatedAt   time.Time
	Import      Import
	// ImportIndex is the position of the entry Import replaces; -1 appends.
	ImportIndex int
}

// Apply performs the update on an in-memory dataset.
func (u DatasetUpdate) Apply(ds *Dataset) {
	ds.Name = u.Name
	ds.Title = u.Title
	ds.Description = u.Description
	ds.UserRef = u.UserRef
	ds.Options = u.Options
	ds.UpdatedAt = u.UpdatedAt
	if u.ImportIndex >= 0 && u.ImportIndex < len(ds.Imports) {
		ds.Imports[u.ImportIndex] = u.Import
		return
	}
	ds.Imports = append(ds.Imports, u.Import)
}
