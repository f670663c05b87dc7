package http

import (
	"errors"
	"net/http"

	"scontrini/internal/core"
	applog "scontrini/internal/log"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
	"scontrini/internal/store"
)

const (
	msgInternal       = "Something went wrong, please try again"
	msgExtractionDown = "Could not process the receipt, please try again"
	msgExtractionBad  = "The receipt could not be read, please try again with a clearer image"
)

var (
	notFoundErrors = []error{store.ErrNotFound, services.ErrReviewNotFound, receipt.ErrItemIndex}
	conflictErrors = []error{
		receipt.ErrNoCategories,
		store.ErrCategoryInUse,
		store.ErrDuplicateCategory,
		receipt.ErrStillEditing,
		receipt.ErrInvalidTransition,
	}
	invalidErrors = []error{
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrDescriptionLong,
		core.ErrEmptyCategory,
		core.ErrUnknownCategory,
		core.ErrZeroDate,
		core.ErrEmptyName,
		core.ErrNameTooLong,
		receipt.ErrNothingToCommit,
		store.ErrEmptyBatch,
	}
	badRequestErrors = []error{
		receipt.ErrEmptyFile,
		receipt.ErrInvalidDataURI,
		core.ErrInvalidRange,
		services.ErrUnknownAction,
	}
)

// statusFor maps an error to a status code and a message safe to show.
func statusFor(err error) (int, string) {
	var (
		extractionErr *receipt.ExtractionError
		itemErr       *receipt.ItemError
		batchErr      *services.BatchItemError
		userErr       *core.UserError
	)

	switch {
	case errors.Is(err, receipt.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, receipt.ErrFileTooLarge.Error()
	case errors.Is(err, receipt.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, receipt.ErrUnsupportedType.Error()
	case errors.As(err, &extractionErr):
		if extractionErr.Kind == receipt.SchemaInvalid {
			return http.StatusBadGateway, msgExtractionBad
		}
		return http.StatusBadGateway, msgExtractionDown
	case errors.As(err, &itemErr):
		return http.StatusUnprocessableEntity, itemErr.Error()
	case errors.As(err, &batchErr):
		if isAny(batchErr.Err, invalidErrors) {
			return http.StatusUnprocessableEntity, batchErr.Error()
		}
		return http.StatusInternalServerError, msgInternal
	}

	if target := matchAny(err, notFoundErrors); target != nil {
		return http.StatusNotFound, target.Error()
	}
	if target := matchAny(err, conflictErrors); target != nil {
		return http.StatusConflict, target.Error()
	}
	if target := matchAny(err, invalidErrors); target != nil {
		if errors.As(err, &userErr) {
			return http.StatusUnprocessableEntity, userErr.UserMessage
		}
		return http.StatusUnprocessableEntity, target.Error()
	}
	if target := matchAny(err, badRequestErrors); target != nil {
		return http.StatusBadRequest, target.Error()
	}
	if errors.As(err, &userErr) {
		return http.StatusBadRequest, userErr.UserMessage
	}
	return http.StatusInternalServerError, msgInternal
}

func matchAny(err error, targets []error) error {
	for _, t := range targets {
		if errors.Is(err, t) {
			return t
		}
	}
	return nil
}

func isAny(err error, targets []error) bool {
	return matchAny(err, targets) != nil
}

// writeError logs err and renders it as an HTMX error fragment.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)

	logger := applog.FromContext(r.Context())
	args := applog.NewFields().
		WithOperation(op).
		WithError(err).
		ToSlice()
	args = append(args, applog.FieldStatusCode, status)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", args...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", args...)
	}

	ErrorResponse(status, msg).Write(w)
}
