package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound means the referenced item, project or row no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the actor lacks the permission the operation needs.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict means the client-known version no longer matches the stored one.
	ErrConflict = errors.New("stale object")
	// ErrValidation means one or more fields were rejected.
	ErrValidation = errors.New("validation failed")
	// ErrBadRequest means the request shape itself is malformed.
	ErrBadRequest = errors.New("bad request")
)

// FieldErrors collects per-field validation messages.
type FieldErrors map[string][]string

// Add records a message for field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Err returns nil when no messages were recorded.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(fe[f], ", ")))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (fe FieldErrors) Unwrap() error { return ErrValidation }

// RowError attaches the failing row to an error raised inside a bulk operation.
type RowError struct {
	ItemID string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %s: %v", e.ItemID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
