package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"scontrini/internal/core"
	"scontrini/internal/sheets"
)

// fakeSheets is a minimal Sheets API backed by in-memory sheets.
type fakeSheets struct {
	mu       sync.Mutex
	sheetIDs map[string]int64
	values   map[string][][]any
	batch    []gsheet.BatchUpdateSpreadsheetRequest
	appended map[string][][]any
}

func newFakeSheets(existing map[string][][]any) *fakeSheets {
	f := &fakeSheets{sheetIDs: map[string]int64{}, values: existing, appended: map[string][][]any{}}
	if f.values == nil {
		f.values = map[string][][]any{}
	}
	var n int64
	for title := range existing {
		n++
		f.sheetIDs[title] = n
	}
	return f
}

func sheetOf(rng string) string {
	title, _, _ := strings.Cut(rng, "!")
	return strings.ReplaceAll(strings.Trim(title, "'"), "''", "'")
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.batch = append(f.batch, req)
		resp := gsheet.BatchUpdateSpreadsheetResponse{}
		for _, q := range req.Requests {
			if q.AddSheet != nil {
				id := int64(len(f.sheetIDs) + 100)
				f.sheetIDs[q.AddSheet.Properties.Title] = id
				resp.Replies = append(resp.Replies, &gsheet.Response{
					AddSheet: &gsheet.AddSheetResponse{Properties: &gsheet.SheetProperties{SheetId: id, Title: q.AddSheet.Properties.Title}},
				})
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	case strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := strings.TrimSuffix(path[strings.Index(path, "/values/")+len("/values/"):], ":append")
		title := sheetOf(rng)
		f.appended[title] = append(f.appended[title], vr.Values...)
		_ = json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
			Updates: &gsheet.UpdateValuesResponse{UpdatedRange: rng},
		})
	case strings.Contains(path, "/values/") && r.Method == http.MethodGet:
		title := sheetOf(path[strings.Index(path, "/values/")+len("/values/"):])
		_ = json.NewEncoder(w).Encode(gsheet.ValueRange{Values: f.values[title]})
	case strings.Contains(path, "/values/"):
		_ = json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{})
	default:
		ss := gsheet.Spreadsheet{}
		for title, id := range f.sheetIDs {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: title, SheetId: id}})
		}
		_ = json.NewEncoder(w).Encode(ss)
	}
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)
	return NewWithService(svc, "sheet-id", "Expenses")
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	_, err := newSheetsService(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = newSheetsService(context.Background(), "", "/does/not/exist.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestAppendRows_GroupsByYearAndCreatesSheets(t *testing.T) {
	f := newFakeSheets(map[string][][]any{"2024 Expenses": nil})
	c := newTestClient(t, f)

	ref, err := c.AppendRows(context.Background(), []sheets.Row{
		{Date: time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC), Description: "Milk", Amount: core.Money{Cents: 350}, Category: "Grocery", ExpenseID: "a"},
		{Date: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), Description: "Bus", Amount: core.Money{Cents: 200}, Category: "Transportation", ExpenseID: "b"},
	})
	require.NoError(t, err)
	assert.Contains(t, ref, "2024 Expenses")
	assert.Contains(t, ref, "2025 Expenses")

	require.Len(t, f.appended["2024 Expenses"], 1)
	row := f.appended["2024 Expenses"][0]
	assert.Equal(t, []any{"2024-12-31", "Milk", 3.5, "Grocery", "a"}, row)

	require.Len(t, f.batch, 1, "only the missing 2025 sheet is created")
	assert.Equal(t, "2025 Expenses", f.batch[0].Requests[0].AddSheet.Properties.Title)
}

func TestDeleteByExpenseID(t *testing.T) {
	f := newFakeSheets(map[string][][]any{
		"2024 Expenses": {{"ID"}, {"a"}, {"b"}},
		"Notes":         {{"b"}},
	})
	c := newTestClient(t, f)

	found, err := c.DeleteByExpenseID(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, found)

	require.Len(t, f.batch, 1)
	rng := f.batch[0].Requests[0].DeleteDimension.Range
	assert.Equal(t, f.sheetIDs["2024 Expenses"], rng.SheetId)
	assert.Equal(t, int64(2), rng.StartIndex)
	assert.Equal(t, int64(3), rng.EndIndex)

	found, err = c.DeleteByExpenseID(context.Background(), "zzz")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Expenses", 2024, "2024 Expenses"},
		{"  Expenses ", 2025, "2025 Expenses"},
		{"2023 Expenses", 2024, "2023 Expenses"},
		{"", 2024, ""},
		{"1800 Expenses", 2024, "2024 1800 Expenses"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestIsExpenseSheet(t *testing.T) {
	c := NewWithService(nil, "id", "Expenses")
	assert.True(t, c.isExpenseSheet("Expenses"))
	assert.True(t, c.isExpenseSheet("2024 Expenses"))
	assert.False(t, c.isExpenseSheet("2024 Dashboard"))
	assert.False(t, c.isExpenseSheet("abcd Expenses"))
}

func TestA1QuotesTitles(t *testing.T) {
	assert.Equal(t, "'2024 Expenses'!A:E", a1("2024 Expenses", "A:E"))
	assert.Equal(t, "'Bob''s'!E:E", a1("Bob's", "E:E"))
}

func TestNilService(t *testing.T) {
	c := NewWithService(nil, "id", "")
	assert.Equal(t, "Expenses", c.sheetBase)

	_, err := c.AppendRows(context.Background(), []sheets.Row{{ExpenseID: "x"}})
	assert.Error(t, err)
	_, err = c.DeleteByExpenseID(context.Background(), "x")
	assert.Error(t, err)
}
