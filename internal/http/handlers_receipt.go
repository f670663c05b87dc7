package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"scontrini/internal/core"
	applog "scontrini/internal/log"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
)

const (
	uploadField = "receipt"

	// Multipart framing on top of the file itself.
	uploadOverhead = 1 << 20
	uploadMemory   = 1 << 20
)

type committedView struct {
	Expenses   []core.Expense
	Categories []core.Category
	Total      core.Money
}

// handleScanReceipt validates the upload, runs extraction and opens a
// review session. An empty extraction renders the "no items" partial.
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	mime, data, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, applog.OpScan, err)
		return
	}

	res, err := s.receipts.Scan(r.Context(), mime, data)
	if err != nil {
		var extractionErr *receipt.ExtractionError
		if errors.As(err, &extractionErr) {
			s.count(&s.metrics.extractionFailed, 1)
		}
		writeError(w, r, applog.OpScan, err)
		return
	}
	s.count(&s.metrics.receiptsScanned, 1)

	logger := applog.NewStructuredLogger(applog.FromContext(r.Context()))
	if res.Status == receipt.StatusNoItems {
		s.count(&s.metrics.receiptsEmpty, 1)
		logger.LogReceiptScanned(r.Context(), "", 0, mime, len(data))
		s.render(w, r, NewHTMXResponse().
			TriggerNotification(NotificationInfo, "No items found on this receipt", 4000), "no_items", nil)
		return
	}
	logger.LogReceiptScanned(r.Context(), res.Review.ID, len(res.Review.Items), mime, len(data))

	s.renderReview(w, r, NewHTMXResponse(), res.Review)
}

// readUpload extracts the receipt file and its effective MIME type.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, receipt.MaxFileSize+uploadOverhead)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, receipt.ErrFileTooLarge
		}
		return "", nil, core.NewUserError("Malformed upload", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, receipt.ErrEmptyFile
		}
		return "", nil, core.NewUserError("Malformed upload", err)
	}
	defer file.Close()

	if header.Size > receipt.MaxFileSize {
		return "", nil, receipt.ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, receipt.MaxFileSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return receipt.DetectType(header.Header.Get("Content-Type"), data), data, nil
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	rev, err := s.receipts.Review(r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpReview, err)
		return
	}
	s.renderReview(w, r, NewHTMXResponse(), rev)
}

// handleReviewAction applies edit, save, cancel or remove to one item.
func (s *Server) handleReviewAction(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		writeError(w, r, applog.OpReview, err)
		return
	}
	action := services.ReviewAction(r.PathValue("action"))

	var draft *core.ExtractedItem
	if action == services.ActionSave {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
		if resp := ParseFormOrFail(r); resp != nil {
			resp.Write(w)
			return
		}
		item, err := parseItemDraft(formValues(r.PostForm))
		if err != nil {
			writeError(w, r, applog.OpReview, err)
			return
		}
		draft = &item
	}

	rev, err := s.receipts.Transition(r.Context(), r.PathValue("id"), index, action, draft)
	if err != nil {
		writeError(w, r, applog.OpReview, err)
		return
	}
	s.renderReview(w, r, NewHTMXResponse(), rev)
}

// handleCommitReview saves every remaining item as one batch.
func (s *Server) handleCommitReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	created, err := s.receipts.Commit(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpCommit, err)
		return
	}
	s.count(&s.metrics.expensesCommitted, len(created))

	total := core.Summarize(created).Total
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogBatchCommitted(r.Context(), id, len(created), total.Cents)

	categories, err := s.categories.ListCategories(r.Context())
	if err != nil {
		// Saved already; render without names rather than fail.
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to load categories after commit",
			applog.FieldError, err)
	}

	s.render(w, r, NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerExpensesChanged(len(created)).
		TriggerReviewClosed(id).
		TriggerSuccessNotification(fmt.Sprintf("Saved %d expenses (%s)", len(created), formatEuros(total))),
		"committed", committedView{Expenses: created, Categories: categories, Total: total})
}

func (s *Server) handleDiscardReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.receipts.Discard(id)
	NewHTMXResponse().
		TriggerReviewClosed(id).
		TriggerNotification(NotificationInfo, "Receipt discarded", 3000).
		Write(w)
}

func (s *Server) renderReview(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, rev receipt.Review) {
	categories, err := s.categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, applog.OpReview, err)
		return
	}
	s.render(w, r, b, "review", newReviewView(rev, categories))
}
