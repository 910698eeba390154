package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Project struct {
	ID        string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time

	Estimate  decimal.Decimal
	Scheduled decimal.Decimal
	Check     decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Milestone is a dated span inside a project. It carries no totals.
type Milestone struct {
	ID            string
	ProjectID     string
	Name          string
	StartDate     *time.Time
	EffectiveDate *time.Time
}

// Category classifies items. The lowest position is a project's default.
type Category struct {
	ID        string
	ProjectID string
	Name      string
	Position  int
}

// RowKind identifies what a grid row represents.
type RowKind string

const (
	RowItem      RowKind = "item"
	RowProject   RowKind = "project"
	RowMilestone RowKind = "milestone"
)

// ValidateDateRange rejects a range whose start falls after its end.
func ValidateDateRange(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return fmt.Errorf("%w: start date %s is after end date %s",
			ErrBadRequest, start.Format(DateLayout), end.Format(DateLayout))
	}
	return nil
}
