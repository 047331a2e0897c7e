// Package postgres is the PostgreSQL storage engine. Datasets and rows live
// in two tables; payloads, options and the import list are jsonb columns
// holding extended JSON (see core.EncodeDocument).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetstore/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
}

// Options configure the connection pool.
type Options struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Store implements core.Store on PostgreSQL.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// Open connects a pool, verifies it and creates the schema if missing.
func Open(ctx context.Context, opts Options) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection or transaction. Close is a no-op.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Migrate creates the tables and indexes when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const datasetColumns = "id, name, title, description, user_ref, sheet_index, options, imports, created_at, updated_at"

func (s *Store) FindDataset(ctx context.Context, filter core.Expr) (*core.Dataset, error) {
	b := newWhereBuilder(datasetsTable)
	query, err := b.selectSQL(datasetColumns, core.Query{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	ds, err := scanDataset(s.db.QueryRow(ctx, query, b.args...))
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = s.db.Exec(ctx, `
		INSERT INTO datasets (id, name, title, description, user_ref, sheet_index, options, imports, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)`,
		pgUUID(ds.ID), ds.Name, ds.Title, ds.Description, ds.UserRef, ds.SheetIndex,
		options, imports, ds.CreatedAt, ds.UpdatedAt,
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

	args := []any{pgUUID(id), u.Name, u.Title, u.Description, u.UserRef, string(options), u.UpdatedAt, string(entry)}
	imports := "imports || jsonb_build_array($8::jsonb)"
	if u.ImportIndex >= 0 {
		args = append(args, fmt.Sprint(u.ImportIndex))
		imports = "jsonb_set(imports, ARRAY[$9::text], $8::jsonb)"
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE datasets
		SET name = $2, title = $3, description = $4, user_ref = $5,
		    options = $6::jsonb, updated_at = $7, imports = `+imports+`
		WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	rows, err := s.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("select datasets: %w", err)
	}
	defer rows.Close()

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

// InsertRows streams rows with COPY.
func (s *Store) InsertRows(ctx context.Context, rows []core.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"data_rows"},
		[]string{"id", "dataset_id", "import_id", "data"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			data, err := core.EncodeDocument(rows[i].Data)
			if err != nil {
				return nil, err
			}
			return []any{pgUUID(rows[i].ID), pgUUID(rows[i].DatasetID), pgUUID(rows[i].ImportID), data}, nil
		}),
	)
	if err != nil {
		return int(n), fmt.Errorf("copy rows: %w", err)
	}
	return int(n), nil
}

func (s *Store) UpdateRow(ctx context.Context, filter core.Expr, importID uuid.UUID, data core.Document) (bool, error) {
	enc, err := core.EncodeDocument(data)
	if err != nil {
		return false, err
	}
	b := newWhereBuilder(rowsTable, string(enc), pgUUID(importID))
	sub, err := b.selectSQL("id", core.Query{Filter: filter, Limit: 1})
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE data_rows SET data = $1::jsonb, import_id = $2 WHERE id = ("+sub+")", b.args...)
	if err != nil {
		return false, fmt.Errorf("update row: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteRows(ctx context.Context, filter core.Expr) (int64, error) {
	b := newWhereBuilder(rowsTable)
	where, err := b.where(filter)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, "DELETE FROM data_rows"+where, b.args...)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return tag.RowsAffected(), nil
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
	rows, err := s.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		var (
			id, datasetID, importID pgtype.UUID
			data                    []byte
		)
		if err := rows.Scan(&id, &datasetID, &importID, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		doc, err := core.DecodeDocument(data)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Row{
			ID:        uuid.UUID(id.Bytes),
			DatasetID: uuid.UUID(datasetID.Bytes),
			ImportID:  uuid.UUID(importID.Bytes),
			Data:      doc,
		})
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
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+t.name+where, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.name, err)
	}
	return n, nil
}

func scanDataset(row pgx.Row) (*core.Dataset, error) {
	var (
		ds               core.Dataset
		id               pgtype.UUID
		options, imports []byte
	)
	err := row.Scan(&id, &ds.Name, &ds.Title, &ds.Description, &ds.UserRef, &ds.SheetIndex,
		&options, &imports, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ds.ID = uuid.UUID(id.Bytes)
	ds.CreatedAt = ds.CreatedAt.UTC()
	ds.UpdatedAt = ds.UpdatedAt.UTC()

	if ds.Options, err = core.DecodeDocument(options); err != nil {
		return nil, err
	}
	entries, err := core.DecodeList(imports)
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

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
