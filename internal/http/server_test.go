package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"board/internal/core"
	"board/internal/services"
	"board/internal/storage/memory"
)

var testNow = time.Date(2024, 7, 31, 12, 0, 0, 0, time.UTC)

func seedJobs() []core.Job {
	return []core.Job{
		{
			ID: "a1", JobNumber: "J-100", Client: "Acme", Facility: core.Steel,
			JobValue: 3000, Pieces: 4, TestFit: core.FlagYes, Rush: core.FlagNo,
			Schedule: []string{"2024-07-01", "2024-07-02", "2024-07-03", "2024-07-04 (Test Fit)"},
		},
		{
			ID: "b2", JobNumber: "J-200", Client: "Birch", Facility: core.Vinyl,
			JobValue: 500, TestFit: core.FlagNo, Rush: core.FlagYes,
			Schedule: []string{"2024-07-02"},
		},
		{
			ID: "c3", JobNumber: "J-200", Client: "Birch", Facility: core.Vinyl,
			TestFit: core.FlagNo, Rush: core.FlagNo, Schedule: []string{},
		},
	}
}

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memory.New(seedJobs()...)
	svc := services.NewJobService(store, nil, services.WithClock(func() time.Time { return testNow }))
	opts.Now = func() time.Time { return testNow }
	srv := NewServer(":0", svc, services.NewImportService(svc), opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || rr.Body.String() != Banner {
		t.Fatalf("index = %d %q", rr.Code, rr.Body.String())
	}
	if rr := ts.do(t, http.MethodGet, "/nowhere", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rr.Code)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<div id=root></div>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "static"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "static", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, Options{StaticDir: dir})

	rr := ts.do(t, http.MethodGet, "/calendar-view/2024", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "id=root") {
		t.Fatalf("client route = %d %q", rr.Code, rr.Body.String())
	}
	rr = ts.do(t, http.MethodGet, "/static/app.js", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "console.log(1)" {
		t.Fatalf("asset = %d %q", rr.Code, rr.Body.String())
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age") {
		t.Errorf("asset Cache-Control = %q", cc)
	}
}

type downStore struct{ *memory.Store }

func (downStore) Ping(context.Context) error { return errors.New("no reachable servers") }

func (downStore) ListJobs(context.Context) ([]core.Job, error) {
	return nil, errors.New("no reachable servers")
}

func TestStoreUnavailable(t *testing.T) {
	svc := services.NewJobService(downStore{memory.New()}, nil)
	srv := NewServer(":0", svc, services.NewImportService(svc), Options{})
	defer srv.Shutdown(context.Background())
	ts := &testServer{Server: srv}

	if rr := ts.do(t, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d", rr.Code)
	}
	rr := ts.do(t, http.MethodGet, "/jobdetails", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("list status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "reachable") {
		t.Errorf("storage detail leaked: %s", rr.Body.String())
	}
}

func TestJobCRUD(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/jobdetails", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if list := decode[[]core.Job](t, rr); len(list) != 3 {
		t.Fatalf("list len = %d", len(list))
	}

	rr = ts.do(t, http.MethodPost, "/jobdetails", `{"JobNumber":" J-300 ","Client":"Cedar","JobValue":1200,"Facility":"aluminum"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d body %s", rr.Code, rr.Body.String())
	}
	created := decode[core.Job](t, rr)
	if created.ID == "" || created.JobNumber != "J-300" || created.Facility != core.Aluminum {
		t.Fatalf("created = %+v", created)
	}
	if created.Schedule == nil || len(created.Schedule) != 0 {
		t.Errorf("Schedule = %#v, want empty list", created.Schedule)
	}

	rr = ts.do(t, http.MethodGet, "/jobdetails/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = ts.do(t, http.MethodPut, "/jobdetails/"+created.ID, `{"Color":"Bronze","Pieces":8}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d body %s", rr.Code, rr.Body.String())
	}
	if updated := decode[core.Job](t, rr); updated.Color != "Bronze" || updated.Pieces != 8 || updated.Client != "Cedar" {
		t.Fatalf("updated = %+v", updated)
	}

	rr = ts.do(t, http.MethodDelete, "/jobdetails/"+created.ID, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"deletedCount":1`) {
		t.Fatalf("delete = %d %s", rr.Code, rr.Body.String())
	}

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/jobdetails/" + created.ID, ""},
		{http.MethodPut, "/jobdetails/" + created.ID, `{"Color":"Red"}`},
		{http.MethodDelete, "/jobdetails/" + created.ID, ""},
	} {
		if rr := ts.do(t, tc.method, tc.path, tc.body); rr.Code != http.StatusNotFound {
			t.Errorf("%s %s after delete = %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestCreateJobValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"JobNumber":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"missing job number", `{"Client":"Acme"}`, http.StatusUnprocessableEntity},
		{"negative value", `{"JobNumber":"J-9","JobValue":-1}`, http.StatusUnprocessableEntity},
		{"bad schedule entry", `{"JobNumber":"J-9","Schedule":["someday"]}`, http.StatusUnprocessableEntity},
		{"bad required by date", `{"JobNumber":"J-9","RequiredByDate":"soon"}`, http.StatusBadRequest},
		{"test fit entry without test fit", `{"JobNumber":"J-9","Schedule":["2024-07-09 (Test Fit)"]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/jobdetails", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestScheduleEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodPut, "/jobdetails/J-100/add-to-schedule", `{"date":"2024-07-10"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("add status = %d body %s", rr.Code, rr.Body.String())
	}
	if j := decode[core.Job](t, rr); !j.HasEntry("2024-07-10") {
		t.Fatalf("schedule after add = %v", j.Schedule)
	}

	rr = ts.do(t, http.MethodPut, "/jobdetails/J-100/remove-from-schedule", `{"date":"2024-07-10"}`)
	if j := decode[core.Job](t, rr); rr.Code != http.StatusOK || j.HasEntry("2024-07-10") {
		t.Fatalf("remove = %d %v", rr.Code, j.Schedule)
	}

	// toggling twice restores the schedule
	rr = ts.do(t, http.MethodPut, "/jobdetails/J-100/toggle-schedule", `{"date":"2024-07-15"}`)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Schedule-Op") != "add" {
		t.Fatalf("toggle on = %d op %q", rr.Code, rr.Header().Get("X-Schedule-Op"))
	}
	rr = ts.do(t, http.MethodPut, "/jobdetails/J-100/toggle-schedule", `{"date":"2024-07-15"}`)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Schedule-Op") != "remove" {
		t.Fatalf("toggle off = %d op %q", rr.Code, rr.Header().Get("X-Schedule-Op"))
	}
	if j := decode[core.Job](t, rr); len(j.Schedule) != 4 {
		t.Fatalf("schedule after double toggle = %v", j.Schedule)
	}

	rr = ts.do(t, http.MethodPut, "/jobdetails/J-100/schedule-test-fit", `{"date":"2024-07-20"}`)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Schedule-Entry") != "2024-07-20 (Test Fit)" {
		t.Fatalf("test fit = %d entry %q", rr.Code, rr.Header().Get("X-Schedule-Entry"))
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"test fit on a no test fit job", "/jobdetails/J-200/schedule-test-fit", `{"date":"2024-07-20"}`, http.StatusConflict},
		{"test fit on an installed day", "/jobdetails/J-100/schedule-test-fit", `{"date":"2024-07-01"}`, http.StatusConflict},
		{"test fit entry added to a no test fit job", "/jobdetails/J-200/add-to-schedule", `{"date":"2024-07-20 (Test Fit)"}`, http.StatusConflict},
		{"test fit cleared while entries remain", "/jobdetails/a1", `{"TestFit":"no"}`, http.StatusUnprocessableEntity},
		{"unknown job", "/jobdetails/J-999/add-to-schedule", `{"date":"2024-07-01"}`, http.StatusNotFound},
		{"unknown job toggle", "/jobdetails/J-999/toggle-schedule", `{"date":"2024-07-01"}`, http.StatusNotFound},
		{"missing date", "/jobdetails/J-100/add-to-schedule", `{}`, http.StatusUnprocessableEntity},
		{"invalid date", "/jobdetails/J-100/toggle-schedule", `{"date":"next week"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := ts.do(t, http.MethodPut, tt.path, tt.body); rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestCalendarEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/calendar/days/2024-07-02", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("day status = %d", rr.Code)
	}
	day := decode[core.DaySummary](t, rr)
	// 3000/3 for J-100 plus the whole 500 of J-200
	if day.Total != 1500 || len(day.Jobs) != 2 {
		t.Fatalf("day = total %v, %d hits", day.Total, len(day.Jobs))
	}

	if rr := ts.do(t, http.MethodGet, "/calendar/days/not-a-day", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad day status = %d", rr.Code)
	}

	rr = ts.do(t, http.MethodGet, "/calendar", "")
	if rr.Code != http.StatusOK || rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("month = %d cache %q", rr.Code, rr.Header().Get("X-Cache"))
	}
	month := decode[core.MonthSummary](t, rr)
	if month.Year != 2024 || month.Month != 7 || len(month.Days) != 31 || month.LeadingBlanks != 0 {
		t.Fatalf("month = %d-%d days %d blanks %d", month.Year, month.Month, len(month.Days), month.LeadingBlanks)
	}
	if month.Total != 3500 {
		t.Errorf("month total = %v, want 3500", month.Total)
	}

	if rr := ts.do(t, http.MethodGet, "/calendar?year=2024&month=7", ""); rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second month read cache = %q", rr.Header().Get("X-Cache"))
	}
	ts.do(t, http.MethodPut, "/jobdetails/J-100/add-to-schedule", `{"date":"2024-07-22"}`)
	if rr := ts.do(t, http.MethodGet, "/calendar?year=2024&month=7", ""); rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("month read after write cache = %q", rr.Header().Get("X-Cache"))
	}

	if rr := ts.do(t, http.MethodGet, "/calendar?month=13", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad month status = %d", rr.Code)
	}
}

// monthWriter runs write once while the month grid is being built.
type monthWriter struct {
	*services.JobService
	write func()
}

func (m *monthWriter) Month(ctx context.Context, year int, month time.Month) (core.MonthSummary, error) {
	sum, err := m.JobService.Month(ctx, year, month)
	if m.write != nil {
		write := m.write
		m.write = nil
		write()
	}
	return sum, err
}

func TestMonthBuiltAcrossWriteIsNotCached(t *testing.T) {
	svc := services.NewJobService(memory.New(seedJobs()...), nil, services.WithClock(func() time.Time { return testNow }))
	mw := &monthWriter{JobService: svc}
	srv := NewServer(":0", mw, services.NewImportService(svc), Options{Now: func() time.Time { return testNow }})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts := &testServer{Server: srv}

	mw.write = func() {
		rr := ts.do(t, http.MethodPost, "/jobdetails", `{"JobNumber":"J-500","JobValue":700,"Schedule":["2024-07-22"]}`)
		if rr.Code != http.StatusOK {
			t.Errorf("create during month build = %d %s", rr.Code, rr.Body.String())
		}
	}
	rr := ts.do(t, http.MethodGet, "/calendar", "")
	if rr.Code != http.StatusOK || decode[core.MonthSummary](t, rr).Total != 3500 {
		t.Fatalf("first month = %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodGet, "/calendar", "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("month after concurrent write cache = %q", rr.Header().Get("X-Cache"))
	}
	if month := decode[core.MonthSummary](t, rr); month.Total != 4200 {
		t.Errorf("month total = %v, want 4200", month.Total)
	}
	if rr := ts.do(t, http.MethodGet, "/calendar", ""); rr.Header().Get("X-Cache") != "HIT" {
		t.Errorf("quiet month read cache = %q", rr.Header().Get("X-Cache"))
	}
}

func TestCleanupAndBulkDelete(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/jobdetails/stale", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("stale status = %d", rr.Code)
	}
	stale := decode[staleResponse](t, rr)
	if stale.Cutoff.String() != "2024-07-17" || len(stale.Jobs) != 2 {
		t.Fatalf("stale = cutoff %s, %d jobs", stale.Cutoff, len(stale.Jobs))
	}
	if rr := ts.do(t, http.MethodGet, "/jobdetails/stale?days=60", ""); len(decode[staleResponse](t, rr).Jobs) != 0 {
		t.Fatalf("stale with 60 days = %s", rr.Body.String())
	}

	rr = ts.do(t, http.MethodPost, "/jobdetails/bulk-delete", `{"ids":["c3","missing"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("bulk delete status = %d", rr.Code)
	}
	bulk := decode[services.BulkResult](t, rr)
	if len(bulk.Deleted) != 1 || bulk.Deleted[0] != "c3" || len(bulk.Failed) != 1 || bulk.Failed[0].ID != "missing" {
		t.Fatalf("bulk = %+v", bulk)
	}

	rr = ts.do(t, http.MethodPost, "/jobdetails/cleanup", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rr.Code)
	}
	if res := decode[services.BulkResult](t, rr); len(res.Deleted) != 2 {
		t.Fatalf("cleanup = %+v", res)
	}
	if list := decode[[]core.Job](t, ts.do(t, http.MethodGet, "/jobdetails", "")); len(list) != 0 {
		t.Fatalf("jobs left = %d", len(list))
	}
}

func TestDuplicates(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/jobdetails/duplicates", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	groups := decode[[]core.DuplicateGroup](t, rr)
	if len(groups) != 1 || groups[0].JobNumber != "J-200" || len(groups[0].IDs) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
}

func upload(t *testing.T, ts *testServer, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t, Options{UploadMaxBytes: 4096})

	csv := "JobNumber,Client,Facility,JobValue,Pieces,RequiredByDate,Color,TestFit,Rush,Schedule\n" +
		"J-100,Acme,Steel,100,1,,,no,no,\n" +
		"J-400,Dune,Aluminum,900,2,2024-08-01,White,yes,no,2024-08-05\n"
	rr := upload(t, ts, "jobs.csv", csv)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d body %s", rr.Code, rr.Body.String())
	}
	res := decode[services.ImportResult](t, rr)
	if res.Inserted != 1 || len(res.SkippedJobs) != 1 || res.SkippedJobs[0] != "J-100" {
		t.Fatalf("import = %+v", res)
	}

	if rr := upload(t, ts, "legacy.xls", "binary"); rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("xls status = %d", rr.Code)
	}
	if rr := upload(t, ts, "big.csv", strings.Repeat("x", 8192)); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rr = httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("non multipart status = %d", rr.Code)
	}
}

func TestCORSAndMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(t, http.MethodGet, "/jobdetails", "")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	rr = ts.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	for _, name := range []string{"http_requests_total", "calendar_cache_hits_total", "rate_limit_rejections_total", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), "# TYPE "+name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: 2})

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, ts.do(t, http.MethodGet, "/healthz", "").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
