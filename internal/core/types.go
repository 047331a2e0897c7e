package core

import (
	"time"

	"github.com/google/uuid"
)

// Document is a nested key/value payload in storage form.
type Document = map[string]any

// Logical field paths used in expressions. Engines map these onto their own
// column layout.
const (
	FieldID             = "_id"
	FieldName           = "name"
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldUserRef        = "user_ref"
	FieldSheetIndex     = "sheet_index"
	FieldCreatedAt      = "created_at"
	FieldUpdatedAt      = "updated_at"
	FieldImportID       = "imports._id"
	FieldImportFilename = "imports.filename"

	FieldDatasetID  = "dataset_id"
	FieldRowImport  = "import_id"
	FieldData       = "data"
	dataFieldPrefix = FieldData + "."
)

// DataField returns the path of a row payload field.
func DataField(name string) string {
	return dataFieldPrefix + name
}

// Import records one save of a sheet into a dataset.
type Import struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Filename   string
	SheetIndex int
}

// Document returns the import in storage form.
func (i Import) Document() Document {
	return Document{
		"_id":         i.ID,
		"dt":          i.CreatedAt,
		"filename":    i.Filename,
		"sheet_index": int64(i.SheetIndex),
	}
}

// ImportFromDocument reads an import entry back from storage form. Entries
// without a usable id are rejected.
func ImportFromDocument(d Document) (Import, bool) {
	var imp Import
	switch id := d["_id"].(type) {
	case uuid.UUID:
		imp.ID = id
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return Import{}, false
		}
		imp.ID = parsed
	default:
		return Import{}, false
	}
	switch dt := d["dt"].(type) {
	case time.Time:
		imp.CreatedAt = dt
	case string:
		imp.CreatedAt, _ = ParseTime(dt)
	}
	imp.Filename, _ = d["filename"].(string)
	imp.SheetIndex = intValue(d["sheet_index"])
	return imp, true
}

// Dataset is a named collection of rows with its import history.
type Dataset struct {
	ID          uuid.UUID
	Name        string
	Title       string
	Description string
	UserRef     string
	SheetIndex  int
	Options     Document
	Imports     []Import
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document returns the dataset in storage form.
func (d Dataset) Document() Document {
	imports := make([]any, len(d.Imports))
	for i, imp := range d.Imports {
		imports[i] = imp.Document()
	}
	doc := Document{
		"_id":         d.ID,
		"name":        d.Name,
		"sheet_index": int64(d.SheetIndex),
		"options":     d.Options,
		"imports":     imports,
		"created_at":  d.CreatedAt,
		"updated_at":  d.UpdatedAt,
	}
	if d.Title != "" {
		doc["title"] = d.Title
	}
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if d.UserRef != "" {
		doc["user_ref"] = d.UserRef
	}
	if doc["options"] == nil {
		doc["options"] = Document{}
	}
	return doc
}

// ImportIndex returns the position of the import with the given id, or -1.
func (d Dataset) ImportIndex(id uuid.UUID) int {
	for i, imp := range d.Imports {
		if imp.ID == id {
			return i
		}
	}
	return -1
}

// Row is a single persisted record of a dataset.
type Row struct {
	ID        uuid.UUID
	DatasetID uuid.UUID
	ImportID  uuid.UUID
	Data      Document
}

// Document returns the row in storage form.
func (r Row) Document() Document {
	return Document{
		"_id":        r.ID,
		"dataset_id": r.DatasetID,
		"import_id":  r.ImportID,
		"data":       r.Data,
	}
}

// CoreOptions are the processing parameters supplied with a save.
type CoreOptions struct {
	Filename    string `json:"filename,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	UserRef     string `json:"user_ref,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Max         *int   `json:"max,omitempty"`
	Keys        string `json:"keys,omitempty"`
	Cols        string `json:"cols,omitempty"`
	Lines       *int   `json:"lines,omitempty"`
	SheetIndex  int    `json:"sheet_index"`
	HeaderIndex *int   `json:"header_index,omitempty"`
	DatasetID   string `json:"dataset_id,omitempty"`
	ImportID    string `json:"import_id,omitempty"`
	Append      bool   `json:"append,omitempty"`
	DataPK      string `json:"data_pk,omitempty"`
}

// Sheet returns the sheet index, clamped to zero.
func (o CoreOptions) Sheet() int {
	return max(o.SheetIndex, 0)
}

// OptionsDocument returns the options stored on the dataset. Identity and
// descriptive fields are kept out since they live on the dataset itself.
func (o CoreOptions) OptionsDocument() Document {
	doc := Document{
		"sheet_index": int64(o.Sheet()),
	}
	if o.Mode != "" {
		doc["mode"] = o.Mode
	}
	if o.Max != nil {
		doc["max"] = int64(*o.Max)
	}
	if o.Keys != "" {
		doc["keys"] = o.Keys
	}
	if o.Cols != "" {
		doc["cols"] = o.Cols
	}
	if o.Lines != nil {
		doc["lines"] = int64(*o.Lines)
	}
	if o.HeaderIndex != nil {
		doc["header_index"] = int64(*o.HeaderIndex)
	}
	if o.Append {
		doc["append"] = true
	}
	if o.DataPK != "" {
		doc["data_pk"] = o.DataPK
	}
	return doc
}

// SaveResult reports the outcome of a save.
type SaveResult struct {
	DatasetID string `json:"dataset_id"`
	ImportID  string `json:"import_id"`
	Count     int    `json:"count"`
	Mode      string `json:"mode"`
	Created   bool   `json:"created"`
}

// RowSet is a page of dataset rows in external form. Each entry of Rows is
// a row payload; the storage wrapper fields are not exposed.
type RowSet struct {
	Dataset map[string]any   `json:"dataset"`
	Rows    []map[string]any `json:"rows"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Skip    int              `json:"skip"`
}

// DatasetList is a page of datasets in external form.
type DatasetList struct {
	Total int64            `json:"total"`
	Rows  []map[string]any `json:"rows"`
	Limit int              `json:"limit"`
	Skip  int              `json:"skip"`
}

// FetchParams selects a page of rows from a dataset.
type FetchParams struct {
	DatasetID string
	ImportID  string
	Filters   []Expr
	Sort      []SortField
	Start     int
	Limit     int
	// WithTotal counts every matching row. Without it Total is the page length.
	WithTotal bool
}

// ListParams selects a page of datasets.
type ListParams struct {
	Search  string
	UserRef string
	Sort    []SortField
	Start   int
	Limit   int
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
