// Package sqlite is the embedded storage engine built on the pure Go
// modernc.org/sqlite driver. JSON columns are TEXT holding extended JSON
// and are queried with the JSON1 functions.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"modernc.org/sqlite"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configure the database handle.
type Options struct {
	Path         string
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// Store implements core.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// maxCachedPatterns bounds the compiled pattern cache. Patterns come from
// client filters, so the cache must not grow with them.
const maxCachedPatterns = 512

var (
	registerOnce sync.Once
	// patterns maps a pattern to its compiled form, nil when invalid.
	patterns *lru.Cache[string, *regexp.Regexp]
)

// registerFunctions installs regexp(pattern, value) for all new connections.
func registerFunctions() {
	registerOnce.Do(func() {
		cache, err := lru.New[string, *regexp.Regexp](maxCachedPatterns)
		if err != nil {
			panic(err)
		}
		patterns = cache
		sqlite.MustRegisterDeterministicScalarFunction("regexp", 2,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				pattern, ok := args[0].(string)
				if !ok {
					return nil, nil
				}
				value, ok := args[1].(string)
				if !ok {
					return int64(0), nil
				}
				re := compile(pattern)
				if re == nil || !re.MatchString(value) {
					return int64(0), nil
				}
				return int64(1), nil
			})
	})
}

func compile(pattern string) *regexp.Regexp {
	if re, ok := patterns.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	patterns.Add(pattern, re)
	return re
}

// Open opens (creating when needed) the database at opts.Path and applies
// the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	registerFunctions()

	path := opts.Path
	if path == "" {
		path = "sheetstore.db"
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busy.Milliseconds())
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	switch {
	case path == MemoryPath:
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	s := &Store{db: db}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables and indexes when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

const datasetColumns = "id, name, title, description, user_ref, sheet_index, options, imports, created_at, updated_at"

func (s *Store) FindDataset(ctx context.Context, filter core.Expr) (*core.Dataset, error) {
	b := newWhereBuilder(datasetsTable)
	query, err := b.selectSQL(datasetColumns, core.Query{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	ds, err := scanDataset(s.db.QueryRowContext(ctx, query, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select dataset: %w", err)
	}
	return ds, nil
}

func (s *Store) InsertDataset(ctx context.Context, ds *core.Dataset) error {
	options, imports, err := encodeDataset(ds.Options, ds.Imports)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, name, title, description, user_ref, sheet_index, options, imports, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)`,
		ds.ID.String(), ds.Name, ds.Title, ds.Description, ds.UserRef, ds.SheetIndex,
		options, imports, core.FormatTime(ds.CreatedAt), core.FormatTime(ds.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (s *Store) UpdateDataset(ctx context.Context, id uuid.UUID, u core.DatasetUpdate) error {
	options, err := core.EncodeDocument(u.Options)
	if err != nil {
		return err
	}
	entry, err := core.EncodeDocument(u.Import.Document())
	if err != nil {
		return err
	}

	args := []any{id.String(), u.Name, u.Title, u.Description, u.UserRef,
		string(options), core.FormatTime(u.UpdatedAt), string(entry)}
	imports := "json_insert(imports, '$[#]', json(?8))"
	if u.ImportIndex >= 0 {
		args = append(args, fmt.Sprintf("$[%d]", u.ImportIndex))
		imports = "json_set(imports, ?9, json(?8))"
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE datasets
		SET name = ?2, title = ?3, description = ?4, user_ref = ?5,
		    options = ?6, updated_at = ?7, imports = `+imports+`
		WHERE id = ?1`, args...)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dataset %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) CountDatasets(ctx context.Context, filter core.Expr) (int64, error) {
	return s.count(ctx, datasetsTable, filter)
}

func (s *Store) FindDatasets(ctx context.Context, q core.Query) ([]core.Dataset, error) {
	b := newWhereBuilder(datasetsTable)
	query, err := b.selectSQL(datasetColumns, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("select datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}

// InsertRows writes rows in one transaction through a prepared statement.
func (s *Store) InsertRows(ctx context.Context, rows []core.Row) (retN int, retErr error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
			retN = 0
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO data_rows (id, dataset_id, import_id, data) VALUES (?1, ?2, ?3, ?4)")
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		data, err := core.EncodeDocument(r.Data)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, r.ID.String(), r.DatasetID.String(), r.ImportID.String(), string(data)); err != nil {
			return 0, fmt.Errorf("insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rows: %w", err)
	}
	return len(rows), nil
}

func (s *Store) UpdateRow(ctx context.Context, filter core.Expr, importID uuid.UUID, data core.Document) (bool, error) {
	enc, err := core.EncodeDocument(data)
	if err != nil {
		return false, err
	}
	b := newWhereBuilder(rowsTable, string(enc), importID.String())
	sub, err := b.selectSQL("rowid", core.Query{Filter: filter, Limit: 1})
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE data_rows SET data = ?1, import_id = ?2 WHERE rowid = ("+sub+")", b.args...)
	if err != nil {
		return false, fmt.Errorf("update row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update row: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeleteRows(ctx context.Context, filter core.Expr) (int64, error) {
	b := newWhereBuilder(rowsTable)
	where, err := b.where(filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM data_rows"+where, b.args...)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountRows(ctx context.Context, filter core.Expr) (int64, error) {
	return s.count(ctx, rowsTable, filter)
}

func (s *Store) FindRows(ctx context.Context, q core.Query) ([]core.Row, error) {
	b := newWhereBuilder(rowsTable)
	query, err := b.selectSQL("id, dataset_id, import_id, data", q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Row
	for rows.Next() {
		var id, datasetID, importID, data string
		if err := rows.Scan(&id, &datasetID, &importID, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r := core.Row{}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("row id: %w", err)
		}
		if r.DatasetID, err = uuid.Parse(datasetID); err != nil {
			return nil, fmt.Errorf("row dataset id: %w", err)
		}
		if r.ImportID, err = uuid.Parse(importID); err != nil {
			return nil, fmt.Errorf("row import id: %w", err)
		}
		if r.Data, err = core.DecodeDocument([]byte(data)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) count(ctx context.Context, t table, filter core.Expr) (int64, error) {
	b := newWhereBuilder(t)
	where, err := b.where(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+t.name+where, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (*core.Dataset, error) {
	var (
		ds                   core.Dataset
		id                   string
		options, imports     string
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &ds.Name, &ds.Title, &ds.Description, &ds.UserRef, &ds.SheetIndex,
		&options, &imports, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if ds.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("dataset id: %w", err)
	}
	var ok bool
	if ds.CreatedAt, ok = core.ParseTime(createdAt); !ok {
		return nil, fmt.Errorf("created_at: invalid timestamp %q", createdAt)
	}
	if ds.UpdatedAt, ok = core.ParseTime(updatedAt); !ok {
		return nil, fmt.Errorf("updated_at: invalid timestamp %q", updatedAt)
	}
	if ds.Options, err = core.DecodeDocument([]byte(options)); err != nil {
		return nil, err
	}
	entries, err := core.DecodeList([]byte(imports))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if imp, ok := core.ImportFromDocument(e); ok {
			ds.Imports = append(ds.Imports, imp)
		}
	}
	return &ds, nil
}

func encodeDataset(options core.Document, imports []core.Import) (string, string, error) {
	opts, err := core.EncodeDocument(options)
	if err != nil {
		return "", "", err
	}
	docs := make([]core.Document, len(imports))
	for i, imp := range imports {
		docs[i] = imp.Document()
	}
	list, err := core.EncodeList(docs)
	if err != nil {
		return "", "", err
	}
	return string(opts), string(list), nil
}
