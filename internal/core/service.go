package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetstore/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service is the repository facade: it saves datasets with their rows and
// answers paginated queries over them.
type Service struct {
	store     Store
	paging    Paging
	batchSize int
	now       func() time.Time
	newID     func() uuid.UUID
}

// Option configures a Service.
type Option func(*Service)

// WithPaging overrides the page size rules.
func WithPaging(p Paging) Option {
	return func(s *Service) { s.paging = p }
}

// WithBatchSize sets how many rows are written per insert call.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service on top of a storage engine.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: nil store")
	}
	s := &Service{
		store:     store,
		paging:    DefaultPaging(),
		batchSize: DefaultBatchSize,
		now:       time.Now,
		newID:     newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Paging returns the page size rules in effect.
func (s *Service) Paging() Paging { return s.paging }

// Ping checks that the storage engine is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SaveImportWithRows upserts the dataset described by opts, records the
// import and writes rows under the replace mode implied by opts.
//
// A failure while resolving the dataset aborts the save before any row is
// touched. A failure while writing rows leaves the dataset and import
// entry in place.
func (s *Service) SaveImportWithRows(ctx context.Context, opts CoreOptions, rows []map[string]any) (SaveResult, error) {
	log := logging.WithFields(ctx,
		"filename", opts.Filename,
		"sheet_index", opts.Sheet(),
		"rows", len(rows),
	)
	if o, ok := OriginFrom(ctx); ok {
		log = log.With(o.logFields()...)
	}

	importID := uuid.Nil
	if strings.TrimSpace(opts.ImportID) != "" {
		id, err := ParseID(opts.ImportID)
		if err != nil {
			log.Warn("ignoring malformed import id", "import_id", opts.ImportID)
		} else {
			importID = id
		}
	}

	res, err := s.saveImport(ctx, opts, importID)
	if err != nil {
		CounterDatasetsSaved.WithLabelValues("failed").Inc()
		return SaveResult{}, err
	}
	if res.DatasetID == uuid.Nil || res.ImportID == uuid.Nil {
		CounterDatasetsSaved.WithLabelValues("failed").Inc()
		return SaveResult{}, ErrNoIdentifiers
	}

	mode := ReplaceModeFor(opts.Append, importID != uuid.Nil)
	result := SaveResult{
		DatasetID: res.DatasetID.String(),
		ImportID:  res.ImportID.String(),
		Mode:      mode.String(),
		Created:   res.Created,
	}

	count, err := s.saveRows(ctx, res.DatasetID, res.ImportID, mode, strings.TrimSpace(opts.DataPK), rows)
	result.Count = count
	if err != nil {
		CounterDatasetsSaved.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("save rows of dataset %s: %w", res.DatasetID, err)
	}

	outcome := "updated"
	if res.Created {
		outcome = "created"
	}
	CounterDatasetsSaved.WithLabelValues(outcome).Inc()
	log.Info("dataset saved",
		"dataset_id", result.DatasetID,
		"import_id", result.ImportID,
		"mode", result.Mode,
		"count", count,
		"outcome", outcome,
	)
	return result, nil
}

// FetchDataset returns a page of a dataset's rows. A malformed or unknown
// dataset id, or a malformed import id, yields ErrNotFound.
func (s *Service) FetchDataset(ctx context.Context, p FetchParams) (*RowSet, error) {
	defer observe("fetch_rows", time.Now())

	id, err := ParseID(p.DatasetID)
	if err != nil {
		return nil, err
	}
	ds, err := s.store.FindDataset(ctx, Eq(FieldID, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("find dataset %s: %w", id, err)
	}

	parts := []Expr{Eq(FieldDatasetID, id)}
	if strings.TrimSpace(p.ImportID) != "" {
		importID, err := ParseID(p.ImportID)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Eq(FieldRowImport, importID))
	}
	parts = append(parts, p.Filters...)

	skip, limit := s.paging.Normalize(p.Start, p.Limit)
	q := Query{
		Filter: AllOf(parts...),
		Sort:   p.Sort,
		Skip:   skip,
		Limit:  limit,
	}

	var (
		rows  []Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.store.FindRows(gctx, q)
		return err
	})
	if p.WithTotal {
		g.Go(func() error {
			var err error
			total, err = s.store.CountRows(gctx, q.Filter)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("query rows of dataset %s: %w", id, err)
	}
	if !p.WithTotal {
		total = int64(len(rows))
	}

	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = FromStorageDocument(r.Data)
		if out[i] == nil {
			out[i] = map[string]any{}
		}
	}
	logging.FromContext(ctx).Debug("dataset fetched",
		"dataset_id", id,
		"filter", q.Filter,
		"rows", len(out),
	)
	return &RowSet{
		Dataset: FromStorageDocument(ds.Document()),
		Rows:    out,
		Total:   total,
		Limit:   limit,
		Skip:    skip,
	}, nil
}

// ListDatasets returns a page of datasets matching the search text and
// owner reference.
func (s *Service) ListDatasets(ctx context.Context, p ListParams) (*DatasetList, error) {
	defer observe("list_datasets", time.Now())

	sort := p.Sort
	if len(sort) == 0 {
		sort = DatasetSort("", "")
	}
	skip, limit := s.paging.Normalize(p.Start, p.Limit)
	q := Query{
		Filter: SearchFilter(p.Search, p.UserRef),
		Sort:   sort,
		Skip:   skip,
		Limit:  limit,
	}

	var (
		datasets []Dataset
		total    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		datasets, err = s.store.FindDatasets(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.CountDatasets(gctx, q.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	out := make([]map[string]any, len(datasets))
	for i, ds := range datasets {
		out[i] = FromStorageDocument(ds.Document())
	}
	return &DatasetList{Total: total, Rows: out, Limit: limit, Skip: skip}, nil
}

func observe(op string, start time.Time) {
	HistogramFetchSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
