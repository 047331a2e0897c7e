package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
	"github.com/JonMunkholm/sheetstore/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store { return New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	ds := &core.Dataset{
		ID:        uuid.New(),
		Name:      "sales.xlsx",
		Imports:   []core.Import{{ID: uuid.New(), CreatedAt: now, Filename: "sales.xlsx"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.InsertDataset(ctx, ds); err != nil {
		t.Fatalf("InsertDataset: %v", err)
	}
	ds.Imports[0].Filename = "changed after insert"

	got, err := s.FindDataset(ctx, core.MatchByID(ds.ID).Filter())
	if err != nil {
		t.Fatalf("FindDataset: %v", err)
	}
	got.Imports[0].Filename = "mutated"

	again, _ := s.FindDataset(ctx, core.MatchByID(ds.ID).Filter())
	if again.Imports[0].Filename != "sales.xlsx" {
		t.Errorf("stored import filename = %q, want unchanged", again.Imports[0].Filename)
	}

	row := core.Row{ID: uuid.New(), DatasetID: ds.ID, ImportID: ds.Imports[0].ID, Data: core.Document{"n": int64(1)}}
	if _, err := s.InsertRows(ctx, []core.Row{row}); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	row.Data["n"] = int64(2)

	rows, _ := s.FindRows(ctx, core.Query{Filter: core.Eq(core.FieldDatasetID, ds.ID)})
	if len(rows) != 1 || rows[0].Data["n"] != int64(1) {
		t.Errorf("stored row = %v, want n=1", rows)
	}
}
