package gridclient

import (
	"errors"
	"fmt"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
)

var (
	// ErrServerUnavailable indicates the grid server is unreachable.
	ErrServerUnavailable = errors.New("grid server unavailable")

	// ErrTimeout indicates a request exceeded the configured timeout.
	ErrTimeout = errors.New("grid request timed out")
)

// APIError is a non-2xx answer from the server. It unwraps to the domain
// sentinel matching its code, so callers classify it with errors.Is.
type APIError struct {
	Status int
	Body   contract.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Body.Error, e.Body.Message)
	}
	return fmt.Sprintf("server returned %d %s", e.Status, e.Body.Error)
}

func (e *APIError) Unwrap() error {
	switch e.Body.Error {
	case contract.CodeStaleObject:
		return domain.ErrConflict
	case contract.CodeValidationFailed:
		return domain.ErrValidation
	case contract.CodeForbidden:
		return domain.ErrForbidden
	case contract.CodeNotFound:
		return domain.ErrNotFound
	case contract.CodeBadRequest:
		return domain.ErrBadRequest
	}
	return nil
}
