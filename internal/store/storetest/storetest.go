// Package storetest holds the behavioural checks every core.Store engine
// must pass. Engine packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) core.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, core.Store)
	}{
		{"DatasetLifecycle", testDatasetLifecycle},
		{"DatasetReplaceImport", testDatasetReplaceImport},
		{"DatasetSearch", testDatasetSearch},
		{"Rows", testRows},
		{"RowFilters", testRowFilters},
		{"RowSort", testRowSort},
		{"SaveThroughService", testSaveThroughService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// base is millisecond aligned so every engine round-trips it exactly.
var base = time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

func newDataset(name string, sheet int, at time.Time) *core.Dataset {
	return &core.Dataset{
		ID:         uuid.New(),
		Name:       name,
		SheetIndex: sheet,
		Options:    core.Document{"mode": "rows", "sheet_index": int64(sheet)},
		Imports:    []core.Import{{ID: uuid.New(), CreatedAt: at, Filename: name, SheetIndex: sheet}},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func testDatasetLifecycle(t *testing.T, s core.Store) {
	ctx := context.Background()
	ds := newDataset("sales.xlsx", 1, base)
	if err := s.InsertDataset(ctx, ds); err != nil {
		t.Fatalf("InsertDataset: %v", err)
	}
	if err := s.InsertDataset(ctx, ds); err == nil {
		t.Error("InsertDataset with duplicate id should fail")
	}

	got, err := s.FindDataset(ctx, core.MatchByNameIndex("sales.xlsx", 1).Filter())
	if err != nil {
		t.Fatalf("FindDataset: %v", err)
	}
	if got.ID != ds.ID {
		t.Errorf("FindDataset id = %v, want %v", got.ID, ds.ID)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	if len(got.Imports) != 1 || got.Imports[0].ID != ds.Imports[0].ID || !got.Imports[0].CreatedAt.Equal(base) {
		t.Errorf("Imports = %+v, want %+v", got.Imports, ds.Imports)
	}
	if got.Options["mode"] != "rows" {
		t.Errorf("Options = %v, want mode rows", got.Options)
	}

	if _, err := s.FindDataset(ctx, core.MatchByNameIndex("sales.xlsx", 0).Filter()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindDataset other sheet err = %v, want ErrNotFound", err)
	}

	later := base.Add(time.Hour)
	upd := core.DatasetUpdate{
		Name:        "sales.xlsx",
		Title:       "Q1",
		Options:     core.Document{"mode": "rows"},
		UpdatedAt:   later,
		Import:      core.Import{ID: uuid.New(), CreatedAt: later, Filename: "sales.xlsx", SheetIndex: 1},
		ImportIndex: -1,
	}
	if err := s.UpdateDataset(ctx, ds.ID, upd); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}
	got, err = s.FindDataset(ctx, core.MatchByID(ds.ID).Filter())
	if err != nil {
		t.Fatalf("FindDataset by id: %v", err)
	}
	if len(got.Imports) != 2 || got.Title != "Q1" || !got.UpdatedAt.Equal(later) {
		t.Errorf("after update imports = %d title = %q updated = %v", len(got.Imports), got.Title, got.UpdatedAt)
	}
	if got.Imports[1].ID != upd.Import.ID {
		t.Errorf("appended import = %v, want %v", got.Imports[1].ID, upd.Import.ID)
	}

	if err := s.UpdateDataset(ctx, uuid.New(), upd); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateDataset unknown id err = %v, want ErrNotFound", err)
	}
}

func testDatasetReplaceImport(t *testing.T, s core.Store) {
	ctx := context.Background()
	ds := newDataset("book.xlsx", 0, base)
	ds.Imports = append(ds.Imports, core.Import{ID: uuid.New(), CreatedAt: base, Filename: "second.xlsx"})
	if err := s.InsertDataset(ctx, ds); err != nil {
		t.Fatalf("InsertDataset: %v", err)
	}

	later := base.Add(time.Minute)
	replaced := core.Import{ID: ds.Imports[0].ID, CreatedAt: later, Filename: "book-v2.xlsx"}
	err := s.UpdateDataset(ctx, ds.ID, core.DatasetUpdate{
		Name:        ds.Name,
		UpdatedAt:   later,
		Import:      replaced,
		ImportIndex: 0,
	})
	if err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}

	got, err := s.FindDataset(ctx, core.MatchByID(ds.ID).Filter())
	if err != nil {
		t.Fatalf("FindDataset: %v", err)
	}
	if len(got.Imports) != 2 {
		t.Fatalf("imports = %d, want 2", len(got.Imports))
	}
	if got.Imports[0].Filename != "book-v2.xlsx" || !got.Imports[0].CreatedAt.Equal(later) {
		t.Errorf("imports[0] = %+v, want replaced entry", got.Imports[0])
	}
	if got.Imports[1].Filename != "second.xlsx" {
		t.Errorf("imports[1] = %+v, want untouched", got.Imports[1])
	}
}

func testDatasetSearch(t *testing.T, s core.Store) {
	ctx := context.Background()
	a := newDataset("Budget 2024.xlsx", 0, base)
	a.Title = "Annual budget"
	a.UserRef = "alice"
	b := newDataset("inventory.csv", 0, base.Add(time.Second))
	b.UserRef = "bob"
	b.Imports[0].Filename = "Warehouse Report.csv"
	c := newDataset("notes.txt", 0, base.Add(2*time.Second))
	c.UserRef = "alice"
	for _, ds := range []*core.Dataset{a, b, c} {
		if err := s.InsertDataset(ctx, ds); err != nil {
			t.Fatalf("InsertDataset: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter core.Expr
		want   []uuid.UUID
	}{
		{"all", nil, []uuid.UUID{c.ID, b.ID, a.ID}},
		{"name word", core.SearchFilter("budget", ""), []uuid.UUID{a.ID}},
		{"import filename", core.SearchFilter("report", ""), []uuid.UUID{b.ID}},
		{"word boundary", core.SearchFilter("port", ""), nil},
		{"user", core.SearchFilter("", "alice"), []uuid.UUID{c.ID, a.ID}},
		{"user prefix", core.SearchFilter("", "al"), []uuid.UUID{c.ID, a.ID}},
		{"text and user", core.SearchFilter("notes", "bob"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindDatasets(ctx, core.Query{
				Filter: tt.filter,
				Sort:   core.DatasetSort("created", "desc"),
			})
			if err != nil {
				t.Fatalf("FindDatasets: %v", err)
			}
			if ids := datasetIDs(got); !equalIDs(ids, tt.want) {
				t.Errorf("FindDatasets = %v, want %v", ids, tt.want)
			}
			n, err := s.CountDatasets(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountDatasets: %v", err)
			}
			if n != int64(len(tt.want)) {
				t.Errorf("CountDatasets = %d, want %d", n, len(tt.want))
			}
		})
	}

	page, err := s.FindDatasets(ctx, core.Query{
		Sort:  core.DatasetSort("created", "asc"),
		Skip:  1,
		Limit: 1,
	})
	if err != nil {
		t.Fatalf("FindDatasets page: %v", err)
	}
	if ids := datasetIDs(page); !equalIDs(ids, []uuid.UUID{b.ID}) {
		t.Errorf("page = %v, want [%v]", ids, b.ID)
	}
}

func testRows(t *testing.T, s core.Store) {
	ctx := context.Background()
	dsID, imp1, imp2 := uuid.New(), uuid.New(), uuid.New()

	rows := []core.Row{
		{ID: uuid.New(), DatasetID: dsID, ImportID: imp1, Data: core.Document{"sku": "a", "n": int64(1)}},
		{ID: uuid.New(), DatasetID: dsID, ImportID: imp1, Data: core.Document{"sku": "b", "n": int64(2)}},
		{ID: uuid.New(), DatasetID: dsID, ImportID: imp2, Data: core.Document{"sku": "c", "n": int64(3)}},
		{ID: uuid.New(), DatasetID: uuid.New(), ImportID: imp2, Data: core.Document{"sku": "d", "n": int64(4)}},
	}
	if n, err := s.InsertRows(ctx, rows); err != nil || n != 4 {
		t.Fatalf("InsertRows = %d, %v; want 4, nil", n, err)
	}

	scope := core.Eq(core.FieldDatasetID, dsID)
	if n, _ := s.CountRows(ctx, scope); n != 3 {
		t.Errorf("CountRows = %d, want 3", n)
	}

	page, err := s.FindRows(ctx, core.Query{
		Filter: scope,
		Sort:   []core.SortField{{Field: "data.n", Dir: -1}},
		Skip:   1,
		Limit:  1,
	})
	if err != nil {
		t.Fatalf("FindRows: %v", err)
	}
	if len(page) != 1 || page[0].Data["sku"] != "b" {
		t.Errorf("FindRows page = %v, want sku b", page)
	}
	if page[0].DatasetID != dsID || page[0].ImportID != imp1 {
		t.Errorf("FindRows ids = %v/%v, want %v/%v", page[0].DatasetID, page[0].ImportID, dsID, imp1)
	}

	ok, err := s.UpdateRow(ctx, core.And{scope, core.Eq("data.sku", "a")}, imp2, core.Document{"sku": "a", "n": int64(10)})
	if err != nil || !ok {
		t.Fatalf("UpdateRow = %v, %v; want true, nil", ok, err)
	}
	if n, _ := s.CountRows(ctx, core.And{scope, core.Eq(core.FieldRowImport, imp2)}); n != 2 {
		t.Errorf("rows of import 2 after update = %d, want 2", n)
	}
	if n, _ := s.CountRows(ctx, core.And{scope, core.Eq("data.n", int64(10))}); n != 1 {
		t.Errorf("rows with n=10 after update = %d, want 1", n)
	}

	ok, err = s.UpdateRow(ctx, core.And{scope, core.Eq("data.sku", "zzz")}, imp2, core.Document{})
	if err != nil {
		t.Fatalf("UpdateRow no match: %v", err)
	}
	if ok {
		t.Error("UpdateRow with no match reported true")
	}

	deleted, err := s.DeleteRows(ctx, core.And{scope, core.Eq(core.FieldRowImport, imp1)})
	if err != nil || deleted != 1 {
		t.Errorf("DeleteRows = %d, %v; want 1, nil", deleted, err)
	}
	if n, _ := s.CountRows(ctx, nil); n != 3 {
		t.Errorf("CountRows(all) = %d, want 3", n)
	}
}

func testRowFilters(t *testing.T, s core.Store) {
	ctx := context.Background()
	dsID, impID := uuid.New(), uuid.New()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	docs := []core.Document{
		{"name": "Widget", "qty": int64(10), "price": 2.5, "active": true, "when": day, "code": "10"},
		{"name": "Gadget", "qty": int64(3), "price": 7.25, "active": false, "when": day.AddDate(0, 1, 0), "code": "x"},
		{"name": "gizmo pro", "qty": 4.5, "active": true, "code": nil},
	}
	rows := make([]core.Row, len(docs))
	for i, d := range docs {
		rows[i] = core.Row{ID: uuid.Must(uuid.NewV7()), DatasetID: dsID, ImportID: impID, Data: d}
	}
	if _, err := s.InsertRows(ctx, rows); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}

	tests := []struct {
		name   string
		filter core.Expr
		want   []string
	}{
		{"eq string", core.Eq("data.name", "Widget"), []string{"Widget"}},
		{"eq int against float", core.Eq("data.qty", float64(10)), []string{"Widget"}},
		{"eq string never equals number", core.Eq("data.code", int64(10)), nil},
		{"eq bool", core.Eq("data.active", false), []string{"Gadget"}},
		{"eq null matches missing and null", core.Eq("data.price", nil), []string{"gizmo pro"}},
		{"ne", core.Cond{Field: "data.name", Op: core.OpNe, Value: "Widget"}, []string{"Gadget", "gizmo pro"}},
		{"gt number", core.Cond{Field: "data.qty", Op: core.OpGt, Value: float64(4)}, []string{"Widget", "gizmo pro"}},
		{"lte float", core.Cond{Field: "data.price", Op: core.OpLte, Value: 2.5}, []string{"Widget"}},
		{"gte timestamp", core.Cond{Field: "data.when", Op: core.OpGte, Value: day.AddDate(0, 0, 1)}, []string{"Gadget"}},
		{"eq timestamp", core.Eq("data.when", day), []string{"Widget"}},
		{"in", core.Cond{Field: "data.code", Op: core.OpIn, Value: []string{"10", "y"}}, []string{"Widget"}},
		{"nin", core.Cond{Field: "data.name", Op: core.OpNin, Value: []string{"Widget", "Gadget"}}, []string{"gizmo pro"}},
		{"regex ci", core.Regex{Field: "data.name", Pattern: "^g", CaseInsensitive: true}, []string{"Gadget", "gizmo pro"}},
		{"regex cs", core.Regex{Field: "data.name", Pattern: "^g"}, []string{"gizmo pro"}},
		{"regex word boundary", core.Regex{Field: "data.name", Pattern: `\bpro`, CaseInsensitive: true}, []string{"gizmo pro"}},
		{"or", core.Or{core.Eq("data.name", "Widget"), core.Eq("data.active", false)}, []string{"Widget", "Gadget"}},
		{"built like filter", core.BuildFilter(core.FilterParam{Field: "name", Value: "g%o", Op: "like"}), []string{"gizmo pro"}},
		{"built starts filter", core.BuildFilter(core.FilterParam{Field: "name", Value: "wid", Op: "starts"}), []string{"Widget"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindRows(ctx, core.Query{Filter: core.AllOf(core.Eq(core.FieldDatasetID, dsID), tt.filter)})
			if err != nil {
				t.Fatalf("FindRows: %v", err)
			}
			names := rowNames(got)
			if !equalStrings(names, tt.want) {
				t.Errorf("FindRows = %v, want %v", names, tt.want)
			}
		})
	}
}

func testRowSort(t *testing.T, s core.Store) {
	ctx := context.Background()
	dsID, impID := uuid.New(), uuid.New()
	docs := []core.Document{
		{"name": "b", "rank": int64(2)},
		{"name": "a", "rank": int64(2)},
		{"name": "c", "rank": 1.5},
		{"name": "d"},
	}
	rows := make([]core.Row, len(docs))
	for i, d := range docs {
		rows[i] = core.Row{ID: uuid.Must(uuid.NewV7()), DatasetID: dsID, ImportID: impID, Data: d}
	}
	if _, err := s.InsertRows(ctx, rows); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}

	tests := []struct {
		name string
		sort []core.SortField
		want []string
	}{
		{"insertion order", nil, []string{"b", "a", "c", "d"}},
		{"asc missing first", core.RowSort("rank", "asc"), []string{"d", "c", "b", "a"}},
		{"desc missing last", core.RowSort("rank", "desc"), []string{"b", "a", "c", "d"}},
		{"by name desc", core.RowSort("name", "-1"), []string{"d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindRows(ctx, core.Query{Filter: core.Eq(core.FieldDatasetID, dsID), Sort: tt.sort})
			if err != nil {
				t.Fatalf("FindRows: %v", err)
			}
			if names := rowNames(got); !equalStrings(names, tt.want) {
				t.Errorf("FindRows = %v, want %v", names, tt.want)
			}
		})
	}
}

// testSaveThroughService drives the engine with the service layer so the
// save and fetch paths are checked end to end.
func testSaveThroughService(t *testing.T, s core.Store) {
	ctx := context.Background()
	svc, err := core.NewService(s, core.WithBatchSize(2))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	input := []map[string]any{
		{"id": "1", "name": "Widget", "when": "2024-03-01"},
		{"id": "2", "name": "Gadget", "when": "2024-04-01"},
		{"id": "3", "name": "Gizmo", "when": "2024-05-01"},
	}
	res, err := svc.SaveImportWithRows(ctx, core.CoreOptions{Filename: "parts.xlsx", DataPK: "id"}, input)
	if err != nil {
		t.Fatalf("SaveImportWithRows: %v", err)
	}
	if !res.Created || res.Count != 3 {
		t.Errorf("first save = %+v, want created with 3 rows", res)
	}

	// Resave with a key overlap in append mode: id 3 updates, id 4 inserts.
	again, err := svc.SaveImportWithRows(ctx, core.CoreOptions{Filename: "parts.xlsx", DataPK: "id", Append: true}, []map[string]any{
		{"id": "3", "name": "Gizmo Pro", "when": "2024-05-02"},
		{"id": "4", "name": "Doohickey", "when": "2024-06-01"},
	})
	if err != nil {
		t.Fatalf("append save: %v", err)
	}
	if again.Created || again.DatasetID != res.DatasetID {
		t.Errorf("append save = %+v, want existing dataset %v", again, res.DatasetID)
	}

	set, err := svc.FetchDataset(ctx, core.FetchParams{
		DatasetID: res.DatasetID,
		Filters:   []core.Expr{core.BuildFilter(core.FilterParam{Field: "when", Value: "2024-05-01", Op: "gte", Type: "date"})},
		Sort:      core.RowSort("when", "asc"),
		WithTotal: true,
	})
	if err != nil {
		t.Fatalf("FetchDataset: %v", err)
	}
	if set.Total != 2 || len(set.Rows) != 2 {
		t.Fatalf("FetchDataset total = %d rows = %d, want 2 and 2", set.Total, len(set.Rows))
	}
	first := set.Rows[0]
	if first["name"] != "Gizmo Pro" || first["when"] != "2024-05-02T00:00:00.000Z" {
		t.Errorf("first row = %v, want updated Gizmo Pro", set.Rows[0])
	}
	if imports, _ := set.Dataset["imports"].([]any); len(imports) != 2 {
		t.Errorf("dataset imports = %v, want 2 entries", set.Dataset["imports"])
	}
}

func datasetIDs(list []core.Dataset) []uuid.UUID {
	var out []uuid.UUID
	for _, ds := range list {
		out = append(out, ds.ID)
	}
	return out
}

func equalIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func rowNames(rows []core.Row) []string {
	var out []string
	for _, r := range rows {
		name, _ := r.Data["name"].(string)
		out = append(out, name)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
