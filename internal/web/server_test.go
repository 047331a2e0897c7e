package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetstore/internal/config"
	"github.com/JonMunkholm/sheetstore/internal/core"
	"github.com/JonMunkholm/sheetstore/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second, MaxBodySize: 1 << 20},
		Query:  config.QueryConfig{DefaultLimit: 100, MaxLimit: 1000, Timeout: 5 * time.Second},
		Ingest: config.IngestConfig{BatchSize: 10, MaxConcurrent: 2, MaxWaitTime: 50 * time.Millisecond, Timeout: 5 * time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

type testServer struct {
	*Server
	saves *core.SaveLimiter
}

func newTestServer(t *testing.T, cfg *config.Config) testServer {
	t.Helper()
	svc, err := core.NewService(memory.New(), core.WithBatchSize(cfg.Ingest.BatchSize))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	saves := core.NewSaveLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	srv := NewServer(svc, saves, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testServer{Server: srv, saves: saves}
}

func (ts testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

const saveBody = `{
	"options": {"filename": "parts.xlsx", "user_ref": "alice", "data_pk": "sku"},
	"rows": [
		{"sku": "A1", "name": "Widget", "qty": 10, "price": 2.50},
		{"sku": "B2", "name": "Gadget", "qty": 3, "price": 7.25},
		{"sku": "C3", "name": "widget pro", "qty": 12345678901234, "when": "2024-05-01"}
	]
}`

func TestSaveAndFetch(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(t, http.MethodPost, "/api/datasets", saveBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first save status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	res := decode[core.SaveResult](t, rec)
	if res.Count != 3 || res.Mode != "replace_all" || !res.Created {
		t.Errorf("first save = %+v, want 3 rows replace_all created", res)
	}

	rec = ts.do(t, http.MethodPost, "/api/datasets", saveBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("resave status = %d, want %d", rec.Code, http.StatusOK)
	}
	if again := decode[core.SaveResult](t, rec); again.DatasetID != res.DatasetID {
		t.Errorf("resave dataset = %s, want %s", again.DatasetID, res.DatasetID)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"Widget", "Gadget", "widget pro"}},
		{"simple filter", "?f=name&v=wid&o=starts", []string{"Widget", "widget pro"}},
		{"bracket filter", "?filter[qty]=gt:5&sort=qty&dir=desc", []string{"widget pro", "Widget"}},
		{"bracket eq without op", "?filter[sku]=B2", []string{"Gadget"}},
		{"typed filter", "?filter[when]=gte:2024-01-01&type[when]=date", []string{"widget pro"}},
		{"combined", "?f=name&v=wid&o=starts&filter[qty]=lt:100", []string{"Widget"}},
		{"paged", "?sort=sku&start=1&limit=1", []string{"Gadget"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/datasets/"+res.DatasetID+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
			}
			set := decode[core.RowSet](t, rec)
			var names []string
			for _, row := range set.Rows {
				name, _ := row["name"].(string)
				names = append(names, name)
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("rows = %v, want %v", names, tt.want)
			}
		})
	}

	rec = ts.do(t, http.MethodGet, "/api/datasets/"+res.DatasetID+"?limit=1&total=true", "")
	set := decode[core.RowSet](t, rec)
	if set.Total != 3 || len(set.Rows) != 1 {
		t.Errorf("total = %d rows = %d, want 3 and 1", set.Total, len(set.Rows))
	}
	if set.Rows[0]["qty"] != float64(10) {
		t.Errorf("qty = %v (%T), want 10", set.Rows[0]["qty"], set.Rows[0]["qty"])
	}
	if _, ok := set.Rows[0]["dataset_id"]; ok {
		t.Errorf("row = %v, want payload only", set.Rows[0])
	}
}

func TestSave_LargeIntegerKeepsPrecision(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(t, http.MethodPost, "/api/datasets", saveBody)
	res := decode[core.SaveResult](t, rec)

	rec = ts.do(t, http.MethodGet, "/api/datasets/"+res.DatasetID+"?filter[sku]=C3", "")
	if !strings.Contains(rec.Body.String(), `"qty":12345678901234`) {
		t.Errorf("body = %s, want exact qty", rec.Body)
	}
}

func TestFetch_Errors(t *testing.T) {
	ts := newTestServer(t, testConfig())
	tests := []struct {
		name     string
		target   string
		wantCode string
		status   int
	}{
		{"malformed id", "/api/datasets/not-a-uuid", "DS002", http.StatusNotFound},
		{"unknown id", "/api/datasets/0190f5c2-0000-7000-8000-000000000001", "DS001", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decode[ErrorResponse](t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestSave_InvalidBody(t *testing.T) {
	ts := newTestServer(t, testConfig())
	for _, body := range []string{`{`, `[]`, `{"options":{}} {}`} {
		rec := ts.do(t, http.MethodPost, "/api/datasets", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q status = %d, want 400", body, rec.Code)
		}
		if got := decode[ErrorResponse](t, rec); got.Code != "REQ001" {
			t.Errorf("body %q code = %q, want REQ001", body, got.Code)
		}
	}
}

func TestSave_TooManyConcurrent(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.MaxConcurrent = 1
	ts := newTestServer(t, cfg)

	if err := ts.saves.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer ts.saves.Release()

	rec := ts.do(t, http.MethodPost, "/api/datasets", saveBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "DS004" {
		t.Errorf("code = %q, want DS004", got.Code)
	}
}

func TestListDatasets(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.do(t, http.MethodPost, "/api/datasets", saveBody)
	ts.do(t, http.MethodPost, "/api/datasets", `{"options":{"filename":"Budget.csv","user_ref":"bob"},"rows":[]}`)

	tests := []struct {
		query string
		want  int64
	}{
		{"", 2},
		{"?search=budget", 1},
		{"?user=ali", 1},
		{"?search=parts&user=bob", 0},
	}
	for _, tt := range tests {
		rec := ts.do(t, http.MethodGet, "/api/datasets"+tt.query, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("list%s status = %d", tt.query, rec.Code)
		}
		if list := decode[core.DatasetList](t, rec); list.Total != tt.want || int64(len(list.Rows)) != tt.want {
			t.Errorf("list%s total = %d rows = %d, want %d", tt.query, list.Total, len(list.Rows), tt.want)
		}
	}

	rec := ts.do(t, http.MethodGet, "/api/datasets?sort=created&dir=asc&limit=1", "")
	list := decode[core.DatasetList](t, rec)
	if len(list.Rows) != 1 || list.Rows[0]["name"] != "parts.xlsx" {
		t.Errorf("oldest dataset = %v, want parts.xlsx", list.Rows)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, SaveLimit: 1}
	ts := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if rec := ts.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "REQ004" {
		t.Errorf("code = %q, want REQ004", got.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig())
	if rec := ts.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	ts.do(t, http.MethodPost, "/api/datasets", saveBody)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	for _, name := range []string{"sheetstore_datasets_saved_total", "sheetstore_http_request_seconds"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("/metrics missing %s", name)
		}
	}

	rec = ts.do(t, http.MethodGet, "/api/saves/status", "")
	if st := decode[core.SaveLimiterStatus](t, rec); st.MaxConcurrent != 2 || st.Active != 0 {
		t.Errorf("save status = %+v, want max 2 active 0", st)
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("header %s missing", h)
		}
	}
}
