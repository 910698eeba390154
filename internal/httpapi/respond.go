package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// decodeBody reads a JSON request body. Numbers stay json.Number so
// efforts reach the domain without a float round trip.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrBadRequest, err)
	}
	return nil
}

// errorResponse classifies err into a status and wire body. Unclassified
// errors become an opaque 500.
func errorResponse(err error) (int, contract.ErrorResponse) {
	var body contract.ErrorResponse
	var rowErr *domain.RowError
	if errors.As(err, &rowErr) {
		body.ItemID = rowErr.ItemID
	}

	var fieldErrs domain.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		body.Error = contract.CodeValidationFailed
		body.Errors = fieldErrs
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrConflict):
		body.Error = contract.CodeStaleObject
		body.Message = "the row was changed by someone else; reload and retry"
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrNotFound):
		body.Error = contract.CodeNotFound
		body.Message = err.Error()
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrForbidden):
		body.Error = contract.CodeForbidden
		body.Message = err.Error()
		return http.StatusForbidden, body
	case errors.Is(err, domain.ErrBadRequest):
		body.Error = contract.CodeBadRequest
		body.Message = err.Error()
		return http.StatusBadRequest, body
	}
	return http.StatusInternalServerError, contract.ErrorResponse{
		Error:   contract.CodeInternal,
		Message: "internal server error",
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}
