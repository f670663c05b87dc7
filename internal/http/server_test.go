package http

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"scontrini/internal/cache"
	"scontrini/internal/core"
	"scontrini/internal/llm"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
	"scontrini/internal/store"
	"scontrini/internal/store/memory"
)

var testNow = time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake")

type fakeExtractor struct {
	mu    sync.Mutex
	items []receipt.RawItem
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string, []core.Category) ([]receipt.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items, f.err
}

type staticLLM struct{ reply string }

func (s staticLLM) Generate(context.Context, llm.Request) (string, error) { return s.reply, nil }
func (staticLLM) Close() error                                          { return nil }

type unreachableStore struct{ *memory.Store }

func (unreachableStore) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	srv       *Server
	store     *memory.Store
	extractor *fakeExtractor
}

func categories(ids ...string) []core.Category {
	out := make([]core.Category, len(ids))
	for i, id := range ids {
		out[i] = core.Category{ID: id, Name: strings.ToUpper(id[:1]) + id[1:]}
	}
	return out
}

func newTestServer(t *testing.T, cats []core.Category, items ...receipt.RawItem) *testServer {
	t.Helper()
	st := memory.New(cats)
	return buildTestServer(t, st, st, 1000, items...)
}

func buildTestServer(t *testing.T, mem *memory.Store, st store.Store, uploadRPM int, items ...receipt.RawItem) *testServer {
	t.Helper()
	ex := &fakeExtractor{items: items}

	expenses := services.NewExpenseService(st, nil)
	expenses.SetClock(func() time.Time { return testNow })
	cats := services.NewCategoryService(st)
	receipts := services.NewReceiptService(
		receipt.NewPipeline(ex),
		receipt.NewSuggester(staticLLM{reply: `{"categoryId":"grocery"}`}, time.Minute),
		cats,
		expenses,
		time.Minute,
	)
	caches := cache.NewManager()
	caches.Register("reviews", receipts.Reviews())

	srv, err := NewServer(":0", Deps{
		Expenses:       expenses,
		Categories:     cats,
		Receipts:       receipts,
		Caches:         caches,
		RateLimitRPM:   1000,
		UploadLimitRPM: uploadRPM,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	srv.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testServer{srv: srv, store: mem, extractor: ex}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) form(t *testing.T, method, target string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(t, req)
}

func (ts *testServer) upload(t *testing.T, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="receipt"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/receipts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, req)
}

var reviewIDPattern = regexp.MustCompile(`id="review-([0-9a-f-]{36})"`)

func reviewID(t *testing.T, body string) string {
	t.Helper()
	m := reviewIDPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no review id in body: %s", body)
	}
	return m[1]
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"))

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, want := range []string{"Scan a receipt", `value="grocery"`, `value="2024-03-15"`} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}

	for _, path := range []string{"/healthz", "/readyz", "/static/app.css"} {
		rr := ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s status=%d", path, rr.Code)
		}
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d, want 404", rr.Code)
	}
}

func TestReadyz_StoreDown(t *testing.T) {
	mem := memory.New(categories("other"))
	ts := buildTestServer(t, mem, unreachableStore{mem}, 1000)

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Errorf("readyz body = %s", rr.Body.String())
	}
}

func TestScanReceipt_ReviewAndCommit(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"),
		receipt.RawItem{Description: "Milk", Amount: core.Money{Cents: 350}, CategoryID: "nonexistent"},
		receipt.RawItem{Description: "Bread", Amount: core.Money{Cents: 200}, CategoryID: "grocery"},
	)

	rr := ts.upload(t, "receipt.png", "application/octet-stream", pngBytes)
	if rr.Code != http.StatusOK {
		t.Fatalf("scan status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Review 2 items", "Milk", "Bread", "€5,50"} {
		if !strings.Contains(body, want) {
			t.Errorf("review body missing %q", want)
		}
	}
	id := reviewID(t, body)

	rr = ts.do(t, httptest.NewRequest(http.MethodPost, "/receipts/"+id+"/commit", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("commit status=%d body=%s", rr.Code, rr.Body.String())
	}
	if trig := rr.Header().Get("HX-Trigger"); !strings.Contains(trig, `"expenses:changed"`) || !strings.Contains(trig, `"count":2`) {
		t.Errorf("HX-Trigger = %s", trig)
	}

	saved, _ := ts.store.ListExpenses(context.Background(), store.ExpenseFilter{})
	if len(saved) != 2 {
		t.Fatalf("stored %d expenses, want 2", len(saved))
	}
	for _, e := range saved {
		if !e.Date.Equal(testNow) {
			t.Errorf("expense date = %v, want commit time", e.Date)
		}
		if e.Description == "Milk" && e.CategoryID != "other" {
			t.Errorf("Milk category = %q, want other", e.CategoryID)
		}
	}

	// The session is closed once committed.
	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/receipts/"+id, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("review after commit status=%d, want 404", rr.Code)
	}
}

func TestScanReceipt_NoItems(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"))

	rr := ts.upload(t, "receipt.png", "image/png", pngBytes)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No items found") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestScanReceipt_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		cats        []core.Category
		contentType string
		data        []byte
		extractErr  error
		wantStatus  int
		wantCalls   int
	}{
		{"unsupported type", categories("other"), "text/plain", []byte("hello"), nil, http.StatusUnsupportedMediaType, 0},
		{"empty file", categories("other"), "image/png", nil, nil, http.StatusBadRequest, 0},
		{"too large", categories("other"), "image/png", make([]byte, receipt.MaxFileSize+1), nil, http.StatusRequestEntityTooLarge, 0},
		{"no categories", []core.Category{}, "image/png", pngBytes, nil, http.StatusConflict, 0},
		{
			"extraction transport failure", categories("other"), "image/png", pngBytes,
			&receipt.ExtractionError{Kind: receipt.Transport, Err: errors.New("timeout")},
			http.StatusBadGateway, 1,
		},
		{
			"schema invalid answer", categories("other"), "image/png", pngBytes,
			&receipt.ExtractionError{Kind: receipt.SchemaInvalid, Err: errors.New(`missing "amount"`)},
			http.StatusBadGateway, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.cats)
			ts.extractor.err = tt.extractErr

			rr := ts.upload(t, "receipt", tt.contentType, tt.data)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d; body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if ts.extractor.calls != tt.wantCalls {
				t.Errorf("extractor calls = %d, want %d", ts.extractor.calls, tt.wantCalls)
			}
			if got := ts.srv.receipts.Reviews().Size(); got != 0 {
				t.Errorf("%d review sessions staged, want 0", got)
			}
		})
	}
}

func TestReviewActions(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"),
		receipt.RawItem{Description: "Milk", Amount: core.Money{Cents: 350}, CategoryID: "grocery"},
		receipt.RawItem{Description: "Batteries", Amount: core.Money{Cents: 899}, CategoryID: "other"},
	)
	id := reviewID(t, ts.upload(t, "r.png", "image/png", pngBytes).Body.String())
	item := func(i, action string) string { return "/receipts/" + id + "/items/" + i + "/" + action }

	rr := ts.do(t, httptest.NewRequest(http.MethodPost, item("0", "edit"), nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), item("0", "save")) {
		t.Fatalf("edit status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodPost, "/receipts/"+id+"/commit", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("commit while editing status=%d, want 409", rr.Code)
	}

	rr = ts.form(t, http.MethodPost, item("0", "save"), url.Values{
		"description": {"Milk"}, "amount": {"-5"}, "categoryId": {"grocery"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("save negative amount status=%d, want 422", rr.Code)
	}

	rr = ts.form(t, http.MethodPost, item("0", "save"), url.Values{
		"description": {"Whole milk"}, "amount": {"3,80"}, "categoryId": {"grocery"},
	})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Whole milk") {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodPost, item("1", "remove"), nil))
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "Batteries") {
		t.Fatalf("remove status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodPost, item("1", "edit"), nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("edit removed item status=%d, want 409", rr.Code)
	}
	rr = ts.do(t, httptest.NewRequest(http.MethodPost, item("7", "edit"), nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("edit out of range status=%d, want 404", rr.Code)
	}
	rr = ts.do(t, httptest.NewRequest(http.MethodPost, item("0", "explode"), nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown action status=%d, want 400", rr.Code)
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodPost, "/receipts/"+id+"/commit", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("commit status=%d body=%s", rr.Code, rr.Body.String())
	}
	saved, _ := ts.store.ListExpenses(context.Background(), store.ExpenseFilter{})
	if len(saved) != 1 || saved[0].Description != "Whole milk" || saved[0].Amount.Cents != 380 {
		t.Errorf("saved = %+v", saved)
	}
}

func TestDiscardReview(t *testing.T) {
	ts := newTestServer(t, categories("other"),
		receipt.RawItem{Description: "Tea", Amount: core.Money{Cents: 150}, CategoryID: "other"},
	)
	id := reviewID(t, ts.upload(t, "r.png", "image/png", pngBytes).Body.String())

	rr := ts.do(t, httptest.NewRequest(http.MethodDelete, "/receipts/"+id, nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), "review:closed") {
		t.Fatalf("discard status=%d trigger=%s", rr.Code, rr.Header().Get("HX-Trigger"))
	}
	rr = ts.do(t, httptest.NewRequest(http.MethodPost, "/receipts/"+id+"/commit", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("commit after discard status=%d, want 404", rr.Code)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"))

	rr := ts.form(t, http.MethodPost, "/expenses", url.Values{
		"description": {"Coffee"}, "amount": {"1,20"}, "categoryId": {"other"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.form(t, http.MethodPost, "/expenses", url.Values{
		"description": {"Coffee"}, "amount": {"abc"}, "categoryId": {"other"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid amount status=%d, want 422", rr.Code)
	}
	rr = ts.form(t, http.MethodPost, "/expenses", url.Values{
		"description": {"Coffee"}, "amount": {"1"}, "categoryId": {"missing"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown category status=%d, want 422", rr.Code)
	}

	saved, _ := ts.store.ListExpenses(context.Background(), store.ExpenseFilter{})
	if len(saved) != 1 {
		t.Fatalf("stored %d expenses, want 1", len(saved))
	}
	id := saved[0].ID

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/expenses?range=today", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Coffee") || !strings.Contains(rr.Body.String(), "€1,20") {
		t.Fatalf("list status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/expenses?range=lastMonth", nil))
	if strings.Contains(rr.Body.String(), "Coffee") {
		t.Error("last month list contains today's expense")
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/expenses/"+id+"/edit", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="1.20"`) {
		t.Errorf("edit form status=%d body=%s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodPut, "/expenses/"+id, strings.NewReader(`{"amount": "2.40", "categoryId": "grocery"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = ts.do(t, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "€2,40") {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, _ := ts.store.GetExpense(context.Background(), id)
	if got.ID != id || got.CategoryID != "grocery" || got.Description != "Coffee" {
		t.Errorf("updated expense = %+v", got)
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodDelete, "/expenses/"+id, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = ts.do(t, httptest.NewRequest(http.MethodDelete, "/expenses/"+id, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d, want 404", rr.Code)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"))

	rr := ts.form(t, http.MethodPost, "/categories", url.Values{"name": {"Pet Food"}, "icon": {"paw"}})
	if rr.Code != http.StatusCreated || !strings.Contains(rr.Body.String(), "category-pet-food") {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "categories:changed") {
		t.Error("categories:changed not triggered")
	}

	rr = ts.form(t, http.MethodPost, "/categories", url.Values{"name": {"pet food"}})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate status=%d, want 409", rr.Code)
	}
	rr = ts.form(t, http.MethodPost, "/categories", url.Values{"name": {"   "}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank name status=%d, want 422", rr.Code)
	}

	rr = ts.form(t, http.MethodPut, "/categories/pet-food", url.Values{"name": {"Pets"}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `value="Pets"`) {
		t.Errorf("rename status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/categories/options?all=1", nil))
	if !strings.Contains(rr.Body.String(), "All categories") || !strings.Contains(rr.Body.String(), `value="pet-food"`) {
		t.Errorf("filter options body=%s", rr.Body.String())
	}

	// A referenced category cannot go.
	ts.form(t, http.MethodPost, "/expenses", url.Values{
		"description": {"Kibble"}, "amount": {"12"}, "categoryId": {"pet-food"},
	})
	rr = ts.do(t, httptest.NewRequest(http.MethodDelete, "/categories/pet-food", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("delete referenced status=%d, want 409", rr.Code)
	}
	cats, _ := ts.store.GetCategories(context.Background())
	if !core.HasCategory(cats, "pet-food") {
		t.Error("referenced category was removed")
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodDelete, "/categories/grocery", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("delete unused status=%d", rr.Code)
	}
	rr = ts.do(t, httptest.NewRequest(http.MethodDelete, "/categories/ghost", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete unknown status=%d, want 404", rr.Code)
	}
}

func TestSuggest(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"))

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/suggest?description=Milk", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != `{"categoryId":"grocery"}` {
		t.Errorf("suggest status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, httptest.NewRequest(http.MethodGet, "/suggest", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty description status=%d, want 422", rr.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t, categories("grocery", "other"))
	for _, v := range []url.Values{
		{"description": {"Apples"}, "amount": {"3"}, "categoryId": {"grocery"}},
		{"description": {"Bus"}, "amount": {"2"}, "categoryId": {"other"}, "date": {"2024-02-10"}},
	} {
		if rr := ts.form(t, http.MethodPost, "/expenses", v); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	tests := []struct {
		query      string
		wantStatus int
		wantTotal  string
	}{
		{"range=thisMonth", http.StatusOK, "€3,00"},
		{"range=lastMonth", http.StatusOK, "€2,00"},
		{"from=2024-02-01&to=2024-03-31", http.StatusOK, "€5,00"},
		{"range=fortnight", http.StatusBadRequest, ""},
		{"from=2024-03-31&to=2024-02-01", http.StatusBadRequest, ""},
		{"range=custom&from=yesterday", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/summary?"+tt.query, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantTotal != "" && !strings.Contains(rr.Body.String(), tt.wantTotal) {
				t.Errorf("body missing %s: %s", tt.wantTotal, rr.Body.String())
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, categories("other"),
		receipt.RawItem{Description: "Tea", Amount: core.Money{Cents: 150}, CategoryID: "other"},
	)
	ts.upload(t, "r.png", "image/png", pngBytes)

	rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{"receipts_scanned_total 1", `cache_entries{type="reviews"} 1`, "http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestUploadRateLimit(t *testing.T) {
	mem := memory.New(categories("other"))
	ts := buildTestServer(t, mem, mem, 1)

	if rr := ts.upload(t, "r.png", "image/png", pngBytes); rr.Code != http.StatusOK {
		t.Fatalf("first upload status=%d", rr.Code)
	}
	rr := ts.upload(t, "r.png", "image/png", pngBytes)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}

	// Other routes keep their own budget.
	if rr := ts.do(t, httptest.NewRequest(http.MethodGet, "/categories", nil)); rr.Code != http.StatusOK {
		t.Errorf("categories status=%d after upload limit", rr.Code)
	}
}

func TestNewServer_RequiresServices(t *testing.T) {
	if _, err := NewServer(":0", Deps{}); err == nil {
		t.Error("NewServer(empty deps) = nil error")
	}
}
