package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/duckmesh/reportdesk/internal/chart"
	"github.com/duckmesh/reportdesk/internal/config"
	"github.com/duckmesh/reportdesk/internal/dashboard"
	"github.com/duckmesh/reportdesk/internal/designer"
	"github.com/duckmesh/reportdesk/internal/export"
	"github.com/duckmesh/reportdesk/internal/nl2sql"
	"github.com/duckmesh/reportdesk/internal/query"
	"github.com/duckmesh/reportdesk/internal/report"
	"github.com/duckmesh/reportdesk/internal/resultset"
	"github.com/duckmesh/reportdesk/internal/semantic"
	"github.com/duckmesh/reportdesk/internal/storage"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "reportdesk-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestReadinessConfigChecks(t *testing.T) {
	cfg := testConfig(t)
	if err := CombineReadinessChecks(CheckStoreDSN(cfg), CheckObjectStoreConfig(cfg))(context.Background()); err != nil {
		t.Fatalf("readiness error = %v", err)
	}
	cfg.ObjectStore.Bucket = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	cfg.Store.DSN = ""
	if err := CheckStoreDSN(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

func TestMissingDependenciesAnswerNotImplemented(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})
	cases := []struct {
		method, path, body, code string
	}{
		{http.MethodPost, "/v1/ask", `{"question":"q"}`, "QUERY_NOT_CONFIGURED"},
		{http.MethodPost, "/v1/sql", `{"sql":"SELECT 1"}`, "QUERY_NOT_CONFIGURED"},
		{http.MethodPost, "/v1/designer/preview", `{"sql":"SELECT 1"}`, "DESIGNER_NOT_CONFIGURED"},
		{http.MethodGet, "/v1/reports", "", "REPORT_NOT_CONFIGURED"},
		{http.MethodGet, "/v1/reports/r1/export", "", "EXPORT_NOT_CONFIGURED"},
		{http.MethodPost, "/v1/reports/r1/archive", "", "ARCHIVE_NOT_CONFIGURED"},
		{http.MethodGet, "/v1/reports/r1/chart.png", "", "CHART_NOT_CONFIGURED"},
		{http.MethodGet, "/v1/dashboards", "", "DASHBOARD_NOT_CONFIGURED"},
	}
	for _, tc := range cases {
		rr := serve(h, tc.method, tc.path, tc.body)
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s %s status = %d", tc.method, tc.path, rr.Code)
		}
		if body := decodeBody(t, rr); body["error_code"] != tc.code {
			t.Fatalf("%s %s error_code = %v, want %s", tc.method, tc.path, body["error_code"], tc.code)
		}
	}
}

func TestInvalidJSONIsRejected(t *testing.T) {
	h, _ := newTestServer(t)
	rr := serve(h, http.MethodPost, "/v1/sql", `{"sql":"SELECT 1","unknown":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "INVALID_JSON" {
		t.Fatalf("body = %v", body)
	}
}

func TestErrorEnvelopeCarriesTraceID(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/reports/missing", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "REPORT_NOT_FOUND" || body["trace_id"] != "trace-123" {
		t.Fatalf("body = %v", body)
	}
}

func TestWriteDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown report", &dashboard.UnknownReportError{ReportID: "r9"}, http.StatusUnprocessableEntity, "UNKNOWN_REPORT"},
		{"report missing", fmt.Errorf("load: %w", report.ErrNotFound), http.StatusNotFound, "REPORT_NOT_FOUND"},
		{"dashboard missing", dashboard.ErrNotFound, http.StatusNotFound, "DASHBOARD_NOT_FOUND"},
		{"invalid", fmt.Errorf("%w: name is required", report.ErrInvalid), http.StatusBadRequest, "INVALID_REQUEST"},
		{"write sql", query.ErrNotReadOnly, http.StatusBadRequest, "SQL_NOT_ALLOWED"},
		{"format", export.ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
		{"mismatch", &chart.RenderSpecMismatchError{Column: "profit", Role: chart.RoleY}, http.StatusUnprocessableEntity, "SPEC_MISMATCH"},
		{"invalid spec", fmt.Errorf("%w: bad", chart.ErrInvalidSpec), http.StatusUnprocessableEntity, "INVALID_SPEC"},
		{"upstream", &semantic.UpstreamQueryError{Op: semantic.OpExecute, Err: errors.New("boom")}, http.StatusBadGateway, "UPSTREAM_QUERY_FAILED"},
		{"timeout", &semantic.UpstreamQueryError{Op: semantic.OpTranslate, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(context.Background(), rr, tc.err)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			if body := decodeBody(t, rr); body["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
			}
		})
	}
}

const (
	salesSQL   = "SELECT order_date, region, revenue FROM orders"
	totalSQL   = "SELECT sum(revenue) AS total FROM orders"
	brokenSQL  = "SELECT * FROM missing_table"
	slowSQL    = "SELECT * FROM orders ORDER BY random()"
	salesAsk   = "revenue by day and region"
	unknownAsk = "what is the meaning of life"
	deniedAsk  = "show me every customer email"
)

type testFixture struct {
	queries *fakeQueries
	repo    *memoryRepository
	store   *memoryStore
}

func newTestServer(t *testing.T) (http.Handler, *testFixture) {
	t.Helper()
	fixture := &testFixture{
		queries: newFakeQueries(),
		repo:    newMemoryRepository(),
		store:   newMemoryStore(),
	}
	charts := chart.NewEngine(chart.NewRenderer(chart.DefaultMaxKPITiles))
	reports := report.NewManager(fixture.repo)
	h := NewHandler(testConfig(t), Dependencies{
		Queries:    fixture.queries,
		Charts:     charts,
		Designer:   designer.NewService(fixture.queries, charts, reports),
		Reports:    reports,
		Dashboards: dashboard.NewAssembler(fixture.repo, reports, fixture.queries, charts, 2, nil),
		Archiver:   export.NewArchiver(fixture.store, fixture.store, "exports", time.Minute),
		Now: func() time.Time {
			return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		},
	})
	return h, fixture
}

type fakeQueries struct {
	translate bool
	questions map[string]string
	results   map[string]query.Result
}

func newFakeQueries() *fakeQueries {
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeQueries{
		translate: true,
		questions: map[string]string{salesAsk: salesSQL},
		results: map[string]query.Result{
			salesSQL: {
				ResultSet: resultset.ResultSet{
					Columns: []resultset.Column{
						{Name: "order_date", DatabaseType: "DATE"},
						{Name: "region", DatabaseType: "VARCHAR"},
						{Name: "revenue", DatabaseType: "DOUBLE"},
					},
					Rows: [][]any{
						{day, "north", 10.0},
						{day, "south", 5.0},
						{day.AddDate(0, 0, 1), "north", 7.5},
					},
				},
				Duration: 12 * time.Millisecond,
			},
			totalSQL: {
				ResultSet: resultset.ResultSet{
					Columns: []resultset.Column{{Name: "total", DatabaseType: "DOUBLE"}},
					Rows:    [][]any{{22.5}},
				},
				Truncated: true,
			},
		},
	}
}

func (f *fakeQueries) CanTranslate() bool { return f.translate }

func (f *fakeQueries) RunQuery(ctx context.Context, question string, execute bool) (semantic.Answer, error) {
	if question == deniedAsk {
		return semantic.Answer{}, &semantic.UpstreamQueryError{
			Op:  semantic.OpTranslate,
			Err: fmt.Errorf("translate: %w", &nl2sql.StatusError{StatusCode: http.StatusUnauthorized, Message: "invalid api key"}),
		}
	}
	sqlText, ok := f.questions[question]
	if !ok {
		return semantic.Answer{}, &semantic.UpstreamQueryError{Op: semantic.OpTranslate, Err: errors.New("model refused the question")}
	}
	answer := semantic.Answer{
		Question:       question,
		SQL:            sqlText,
		Interpretation: "daily revenue per region",
	}
	if !execute {
		return answer, nil
	}
	result, err := f.RunSQL(ctx, sqlText)
	if err != nil {
		return semantic.Answer{}, err
	}
	answer.Result = result
	answer.Executed = true
	return answer, nil
}

func (f *fakeQueries) RunSQL(_ context.Context, sqlText string) (query.Result, error) {
	switch sqlText {
	case brokenSQL:
		return query.Result{}, &semantic.UpstreamQueryError{Op: semantic.OpExecute, Err: errors.New("Catalog Error: table missing_table does not exist")}
	case slowSQL:
		return query.Result{}, &semantic.UpstreamQueryError{Op: semantic.OpExecute, Err: context.DeadlineExceeded}
	}
	result, ok := f.results[sqlText]
	if !ok {
		return query.Result{}, fmt.Errorf("unexpected sql %q", sqlText)
	}
	result.ResultSet = result.ResultSet.Clone()
	return result, nil
}

type memoryRepository struct {
	mu         sync.Mutex
	reports    map[string]report.Report
	dashboards map[string]dashboard.Dashboard
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{reports: map[string]report.Report{}, dashboards: map[string]dashboard.Dashboard{}}
}

func (m *memoryRepository) InsertReport(_ context.Context, in report.Report) (report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[in.ID] = in
	return in, nil
}

func (m *memoryRepository) UpdateReport(_ context.Context, in report.Report) (report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.reports[in.ID]
	if !ok {
		return report.Report{}, report.ErrNotFound
	}
	in.CreatedAt = existing.CreatedAt
	m.reports[in.ID] = in
	return in, nil
}

func (m *memoryRepository) GetReport(_ context.Context, id string) (report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.reports[id]
	if !ok {
		return report.Report{}, report.ErrNotFound
	}
	return rep, nil
}

func (m *memoryRepository) ListReports(context.Context) ([]report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]report.Report, 0, len(m.reports))
	for _, rep := range m.reports {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepository) DeleteReport(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reports[id]
	delete(m.reports, id)
	return ok, nil
}

func (m *memoryRepository) InsertDashboard(_ context.Context, in dashboard.Dashboard) (dashboard.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dashboards[in.ID] = in
	return in, nil
}

func (m *memoryRepository) SetDashboardReports(_ context.Context, id string, reportIDs []string, updatedAt time.Time) (dashboard.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dashboards[id]
	if !ok {
		return dashboard.Dashboard{}, dashboard.ErrNotFound
	}
	d.ReportIDs = append([]string(nil), reportIDs...)
	d.UpdatedAt = updatedAt
	m.dashboards[id] = d
	return d, nil
}

func (m *memoryRepository) GetDashboard(_ context.Context, id string) (dashboard.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dashboards[id]
	if !ok {
		return dashboard.Dashboard{}, dashboard.ErrNotFound
	}
	return d, nil
}

func (m *memoryRepository) ListDashboards(context.Context) ([]dashboard.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]dashboard.Dashboard, 0, len(m.dashboards))
	for _, d := range m.dashboards {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepository) DeleteDashboard(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dashboards[id]
	delete(m.dashboards, id)
	return ok, nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.ObjectInfo, 0)
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix+"/") {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("reportdesk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response error = %v, body=%s", err, rr.Body.String())
	}
	return body
}

func mustJSON(t *testing.T, value any) string {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return string(data)
}
