package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"scontrini/internal/core"
	"scontrini/internal/llm"
)

// RawItem is one line item as returned by the model, before reconciliation.
type RawItem struct {
	Description string
	Amount      core.Money
	CategoryID  string
}

// ErrorKind classifies extraction failures.
type ErrorKind int

const (
	// Transport means the model could not be reached or did not answer.
	Transport ErrorKind = iota + 1
	// SchemaInvalid means the answer was not the expected item list.
	SchemaInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case Transport:
		return "transport"
	case SchemaInvalid:
		return "schema_invalid"
	default:
		return "unknown"
	}
}

// ExtractionError reports a failed extraction. No items survive it.
type ExtractionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Kind == SchemaInvalid {
		return fmt.Sprintf("invalid AI output: %v", e.Err)
	}
	return fmt.Sprintf("processing failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is an ExtractionError of kind k.
func IsExtractionError(err error, k ErrorKind) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == k
}

// Extractor turns a receipt data URI into raw line items.
type Extractor interface {
	Extract(ctx context.Context, dataURI string, categories []core.Category) ([]RawItem, error)
}

// LLMExtractor implements Extractor with a generative model.
type LLMExtractor struct {
	client llm.Client
}

func NewLLMExtractor(client llm.Client) *LLMExtractor {
	return &LLMExtractor{client: client}
}

func (e *LLMExtractor) Extract(ctx context.Context, dataURI string, categories []core.Category) ([]RawItem, error) {
	mime, data, err := ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	text, err := e.client.Generate(ctx, llm.Request{
		System: extractionSystem,
		Prompt: ExtractionPrompt(core.CategoryIDs(categories)),
		Media:  &llm.Media{MIMEType: mime, Data: data},
		JSON:   true,
	})
	if err != nil {
		return nil, &ExtractionError{Kind: Transport, Err: err}
	}

	items, err := DecodeItems(text)
	if err != nil {
		slog.WarnContext(ctx, "Model returned unusable receipt data", "component", "receipt", "error", err, "response_length", len(text))
		return nil, err
	}
	return items, nil
}

// DecodeItems parses a model answer into raw items. The answer must be a JSON
// array of objects with a string "description" and a numeric "amount";
// "categoryId" is optional. Any violation rejects the whole answer.
func DecodeItems(text string) ([]RawItem, error) {
	cleaned := llm.CleanJSON(text)

	var raw []map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&raw); err != nil {
		return nil, &ExtractionError{Kind: SchemaInvalid, Err: fmt.Errorf("not a JSON array of objects: %w", err)}
	}
	if raw == nil {
		return nil, &ExtractionError{Kind: SchemaInvalid, Err: errors.New("null instead of array")}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ExtractionError{Kind: SchemaInvalid, Err: errors.New("trailing data after array")}
	}

	items := make([]RawItem, 0, len(raw))
	for i, obj := range raw {
		item, err := decodeItem(obj)
		if err != nil {
			return nil, &ExtractionError{Kind: SchemaInvalid, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(obj map[string]json.RawMessage) (RawItem, error) {
	if obj == nil {
		return RawItem{}, errors.New("not an object")
	}

	var item RawItem
	desc, ok := obj["description"]
	if !ok {
		return RawItem{}, errors.New(`missing "description"`)
	}
	if err := json.Unmarshal(desc, &item.Description); err != nil {
		return RawItem{}, errors.New(`"description" is not a string`)
	}
	item.Description = strings.TrimSpace(item.Description)

	amount, ok := obj["amount"]
	if !ok {
		return RawItem{}, errors.New(`missing "amount"`)
	}
	amount = bytes.TrimSpace(amount)
	if len(amount) == 0 || !(amount[0] == '-' || (amount[0] >= '0' && amount[0] <= '9')) {
		return RawItem{}, errors.New(`"amount" is not a number`)
	}
	var f float64
	err := json.Unmarshal(amount, &f)
	if err != nil {
		return RawItem{}, errors.New(`"amount" is not a number`)
	}
	if item.Amount, err = core.MoneyFromFloat(f); err != nil {
		return RawItem{}, errors.New(`"amount" is out of range`)
	}

	if cat, ok := obj["categoryId"]; ok && string(bytes.TrimSpace(cat)) != "null" {
		if err := json.Unmarshal(cat, &item.CategoryID); err != nil {
			return RawItem{}, errors.New(`"categoryId" is not a string`)
		}
	}
	return item, nil
}
