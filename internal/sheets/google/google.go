package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"scontrini/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client appends expense rows to one sheet per year ("2024 Expenses") of a
// spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu     sync.Mutex
	titles map[string]int64 // sheet title -> sheet id, nil until loaded
}

var _ sheets.Exporter = (*Client)(nil)

// Config selects the spreadsheet and the service account credentials.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	base := strings.TrimSpace(sheetName)
	if base == "" {
		base = "Expenses"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     base,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsJSON, credentialsFile string) (*gsheet.Service, error) {
	var raw []byte
	switch {
	case strings.TrimSpace(credentialsJSON) != "":
		raw = []byte(credentialsJSON)
	case strings.TrimSpace(credentialsFile) != "":
		var err error
		raw, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(raw),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendRows writes rows grouped by the year of their date, creating the
// yearly sheet with a header row when it does not exist yet.
func (c *Client) AppendRows(ctx context.Context, rows []sheets.Row) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return "", nil
	}

	byYear := map[int][][]any{}
	for _, r := range rows {
		y := r.Date.Year()
		byYear[y] = append(byYear[y], []any{
			r.Date.Format("2006-01-02"),
			r.Description,
			r.Amount.Euros(),
			r.Category,
			r.ExpenseID,
		})
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	var refs []string
	for _, y := range years {
		title := yearPrefixedName(c.sheetBase, y)
		if err := c.ensureSheet(ctx, title); err != nil {
			return "", err
		}
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1(title, "A:E"),
			&gsheet.ValueRange{Values: byYear[y]}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("append to sheet %s: %w", title, err)
		}
		ref := title
		if resp != nil && resp.Updates != nil && resp.Updates.UpdatedRange != "" {
			ref = resp.Updates.UpdatedRange
		}
		refs = append(refs, ref)
	}
	return strings.Join(refs, ","), nil
}

// DeleteByExpenseID scans the id column of every yearly sheet and deletes
// the first matching row.
func (c *Client) DeleteByExpenseID(ctx context.Context, id string) (bool, error) {
	if c.svc == nil {
		return false, errors.New("sheets service not initialized")
	}
	titles, err := c.loadTitles(ctx)
	if err != nil {
		return false, err
	}

	names := make([]string, 0, len(titles))
	for title := range titles {
		if c.isExpenseSheet(title) {
			names = append(names, title)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, title := range names {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1(title, "E:E")).Context(ctx).Do()
		if err != nil {
			return false, fmt.Errorf("read ids from %s: %w", title, err)
		}
		for i, row := range resp.Values {
			if len(row) == 0 || strings.TrimSpace(fmt.Sprint(row[0])) != id {
				continue
			}
			req := &gsheet.BatchUpdateSpreadsheetRequest{
				Requests: []*gsheet.Request{{
					DeleteDimension: &gsheet.DeleteDimensionRequest{
						Range: &gsheet.DimensionRange{
							SheetId:    titles[title],
							Dimension:  "ROWS",
							StartIndex: int64(i),
							EndIndex:   int64(i + 1),
						},
					},
				}},
			}
			if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
				return false, fmt.Errorf("delete row %d from %s: %w", i+1, title, err)
			}
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	titles, err := c.loadTitles(ctx)
	if err != nil {
		return err
	}
	if _, ok := titles[title]; ok {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	var sheetID int64
	if resp != nil && len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	header := make([]any, len(sheets.Header))
	for i, h := range sheets.Header {
		header[i] = h
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1(title, "A1:E1"),
		&gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header to %s: %w", title, err)
	}

	c.mu.Lock()
	c.titles[title] = sheetID
	c.mu.Unlock()
	slog.InfoContext(ctx, "Created yearly expenses sheet", "sheet", title)
	return nil
}

func (c *Client) loadTitles(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	if c.titles != nil {
		out := make(map[string]int64, len(c.titles))
		for k, v := range c.titles {
			out[k] = v
		}
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	titles := map[string]int64{}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles[s.Properties.Title] = s.Properties.SheetId
		}
	}

	c.mu.Lock()
	c.titles = titles
	c.mu.Unlock()

	out := make(map[string]int64, len(titles))
	for k, v := range titles {
		out[k] = v
	}
	return out, nil
}

// isExpenseSheet matches "<base>" and "<year> <base>".
func (c *Client) isExpenseSheet(title string) bool {
	if title == c.sheetBase {
		return true
	}
	if len(title) < 5 || title[4] != ' ' {
		return false
	}
	if _, err := strconv.Atoi(title[:4]); err != nil {
		return false
	}
	return title[5:] == c.sheetBase
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// a1 quotes the sheet title for A1 notation.
func a1(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cells)
}
