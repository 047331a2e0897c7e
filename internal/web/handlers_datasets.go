package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetstore/internal/core"
	"github.com/JonMunkholm/sheetstore/internal/web/middleware"
)

// saveRequest is the body of POST /api/datasets.
type saveRequest struct {
	Options core.CoreOptions `json:"options"`
	Rows    []map[string]any `json:"rows"`
}

// handleSaveDataset upserts a dataset and writes its rows.
//
// The wait for a save slot follows the client; once the save starts it is
// detached from the request so a dropped connection cannot leave a dataset
// half written. INGEST_TIMEOUT still bounds it.
func (s *Server) handleSaveDataset(w http.ResponseWriter, r *http.Request) {
	req, size, err := decodeSaveRequest(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodySize))
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.saves.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.saves.Release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.Ingest.Timeout)
	defer cancel()
	ctx = core.WithOrigin(ctx, core.Origin{
		ClientIP:  middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		BodyBytes: size,
	})

	res, err := s.service.SaveImportWithRows(ctx, req.Options, req.Rows)
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// decodeSaveRequest reads a save body. Numbers are kept as json.Number so
// integers survive without float rounding.
func decodeSaveRequest(body io.Reader) (saveRequest, int64, error) {
	var req saveRequest
	br := newBodyReader(body)
	dec := json.NewDecoder(br)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, br.BytesRead(), fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if dec.More() {
		return req, br.BytesRead(), fmt.Errorf("%w: trailing data after JSON object", errInvalidBody)
	}
	return req, br.BytesRead(), nil
}

// handleListDatasets returns a page of datasets.
//
// Query: search, user, sort (created|updated), dir, start, limit.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Query.Timeout)
	defer cancel()

	list, err := s.service.ListDatasets(ctx, core.ListParams{
		Search:  q.Get("search"),
		UserRef: q.Get("user"),
		Sort:    core.DatasetSort(q.Get("sort"), q.Get("dir")),
		Start:   parseIntParam(r, "start", 0),
		Limit:   parseIntParam(r, "limit", 0),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleFetchDataset returns a dataset and a page of its rows.
//
// Query: import, sort, dir, start, limit, total, plus the filters described
// on parseRowFilters.
func (s *Server) handleFetchDataset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Query.Timeout)
	defer cancel()

	set, err := s.service.FetchDataset(ctx, core.FetchParams{
		DatasetID: chi.URLParam(r, "id"),
		ImportID:  q.Get("import"),
		Filters:   parseRowFilters(q),
		Sort:      core.RowSort(q.Get("sort"), q.Get("dir")),
		Start:     parseIntParam(r, "start", 0),
		Limit:     parseIntParam(r, "limit", 0),
		WithTotal: parseBoolParam(r, "total"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// handleSaveStatus reports save slot usage.
func (s *Server) handleSaveStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.saves.Status())
}

// handleHealth checks the storage engine.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Query.Timeout)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		respondError(w, r, errors.Join(errors.New("health check failed"), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
