package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scontrini/internal/core"
	"scontrini/internal/services"
)

const (
	dateLayout = "2006-01-02"

	// maxFormBody bounds non-upload request bodies.
	maxFormBody = 64 << 10
)

// fieldGetter is satisfied by url.Values and RequestBodyParser.
type fieldGetter interface {
	Get(key string) string
}

// ParseRange reads range, from and to from the query. from/to without a
// range preset mean a custom range; no parameters at all mean this month.
func ParseRange(query url.Values, now time.Time) (core.DateRange, error) {
	preset := core.RangePreset(strings.TrimSpace(query.Get("range")))
	fromStr := strings.TrimSpace(query.Get("from"))
	toStr := strings.TrimSpace(query.Get("to"))

	if preset == "" {
		if fromStr == "" && toStr == "" {
			preset = core.RangeThisMonth
		} else {
			preset = core.RangeCustom
		}
	}

	var from, to time.Time
	if preset == core.RangeCustom {
		var err error
		if from, err = parseDate(fromStr, now.Location()); err != nil {
			return core.DateRange{}, fmt.Errorf("%w: from: %v", core.ErrInvalidRange, err)
		}
		if to, err = parseDate(toStr, now.Location()); err != nil {
			return core.DateRange{}, fmt.Errorf("%w: to: %v", core.ErrInvalidRange, err)
		}
	}
	return core.ResolveRange(preset, now, from, to)
}

// parseDate parses a YYYY-MM-DD date in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, loc)
}

// parseAmount accepts "12.34" and "12,34".
func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, core.NewUserError("Invalid amount", err)
	}
	return core.Money{Cents: cents}, nil
}

// parseExpenseDraft reads a new expense. A missing date is left zero so
// the service stamps it.
func parseExpenseDraft(f fieldGetter, loc *time.Location) (core.ExpenseDraft, error) {
	amount, err := parseAmount(f.Get("amount"))
	if err != nil {
		return core.ExpenseDraft{}, err
	}
	draft := core.ExpenseDraft{
		Amount:      amount,
		Description: f.Get("description"),
		CategoryID:  f.Get("categoryId"),
	}
	if v := f.Get("date"); v != "" {
		d, err := parseDate(v, loc)
		if err != nil {
			return core.ExpenseDraft{}, core.NewUserError("Invalid date", err)
		}
		draft.Date = d
	}
	return draft, nil
}

// parseExpensePatch reads the fields present in an update. Empty fields
// are left unchanged.
func parseExpensePatch(f fieldGetter, loc *time.Location) (services.ExpensePatch, error) {
	var patch services.ExpensePatch
	if v := f.Get("amount"); v != "" {
		amount, err := parseAmount(v)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if v := f.Get("description"); v != "" {
		patch.Description = &v
	}
	if v := f.Get("categoryId"); v != "" {
		patch.CategoryID = &v
	}
	if v := f.Get("date"); v != "" {
		d, err := parseDate(v, loc)
		if err != nil {
			return patch, core.NewUserError("Invalid date", err)
		}
		patch.Date = &d
	}
	return patch, nil
}

// parseItemDraft reads the edited fields of a review item.
func parseItemDraft(f fieldGetter) (core.ExtractedItem, error) {
	amount, err := parseAmount(f.Get("amount"))
	if err != nil {
		return core.ExtractedItem{}, err
	}
	return core.ExtractedItem{
		Description: f.Get("description"),
		Amount:      amount,
		CategoryID:  f.Get("categoryId"),
	}, nil
}

// parseIndex reads a non-negative path index.
func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, core.NewUserError("Invalid item index", errors.New("index must be a non-negative integer"))
	}
	return i, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once, up to maxFormBody bytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBody))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// formValues sanitizes r.Form lookups.
type formValues url.Values

func (f formValues) Get(key string) string {
	return sanitizeInput(url.Values(f).Get(key))
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Malformed request")
	}
	return nil
}
