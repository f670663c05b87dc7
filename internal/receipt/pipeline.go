package receipt

import (
	"context"
	"log/slog"

	"scontrini/internal/core"
)

// Status is the outcome of a successful pipeline run.
type Status int

const (
	StatusItems Status = iota + 1
	StatusNoItems
)

// Result carries the reconciled items of one receipt.
type Result struct {
	Status Status
	Items  []core.ExtractedItem
}

// Pipeline runs extraction followed by reconciliation.
type Pipeline struct {
	extractor Extractor
}

func NewPipeline(extractor Extractor) *Pipeline {
	return &Pipeline{extractor: extractor}
}

// Process extracts and reconciles the items of a receipt data URI.
// ErrNoCategories is returned before the model is called.
func (p *Pipeline) Process(ctx context.Context, dataURI string, categories []core.Category) (Result, error) {
	if len(categories) == 0 {
		return Result{}, ErrNoCategories
	}

	raw, err := p.extractor.Extract(ctx, dataURI, categories)
	if err != nil {
		return Result{}, err
	}
	if len(raw) == 0 {
		slog.InfoContext(ctx, "No items found on receipt", "component", "receipt")
		return Result{Status: StatusNoItems}, nil
	}

	items, err := Reconcile(raw, categories)
	if err != nil {
		return Result{}, err
	}
	slog.InfoContext(ctx, "Receipt items extracted", "component", "receipt", "item_count", len(items))
	return Result{Status: StatusItems, Items: items}, nil
}

// Scan ingests a file and processes it.
func (p *Pipeline) Scan(ctx context.Context, mime string, data []byte, categories []core.Category) (Result, error) {
	uri, err := Ingest(mime, data)
	if err != nil {
		return Result{}, err
	}
	return p.Process(ctx, uri, categories)
}
