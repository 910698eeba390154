package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = domain.ErrNotFound

const dateLayout = domain.DateLayout

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// parseNullableTime parses a sql.NullString into a *time.Time using the given layout.
// Returns nil if the value is NULL, empty, or fails to parse.
func parseNullableTime(s sql.NullString, layout string) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(layout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableTimeToString converts a *time.Time to a value suitable for storage.
// Returns nil (SQL NULL) if the pointer is nil, otherwise returns the formatted string.
func nullableTimeToString(t *time.Time, layout string) any {
	if t == nil {
		return nil
	}
	return t.Format(layout)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func parseTimestamps(createdAt, updatedAt string) (time.Time, time.Time, error) {
	c, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	u, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, u, nil
}

// nowUTC returns the current time in the stored timestamp layout.
func nowUTC() string {
	return time.Now().UTC().Format(timestampLayout)
}

func notFound(entity string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return fmt.Errorf("scanning %s: %w", entity, err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scopedQuery appends "WHERE column = ?" when projectID is set so one
// listing serves both a single project and the whole grid.
func scopedQuery(base, column, projectID, tail string) (string, []any) {
	if projectID == "" {
		return base + " " + tail, nil
	}
	return base + " WHERE " + column + " = ? " + tail, []any{projectID}
}

type scanner interface {
	Scan(dest ...any) error
}
