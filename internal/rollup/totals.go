// Package rollup derives item, project and person totals from snapshots of
// their child rows. Nothing here touches storage; callers load the rows,
// call these functions and persist the result.
package rollup

import (
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/shopspring/decimal"
)

// ItemTotal holds the derived columns of a work item.
type ItemTotal struct {
	Scheduled decimal.Decimal
	Check     decimal.Decimal
}

// ProjectTotal holds the derived columns of a project.
type ProjectTotal struct {
	Scheduled decimal.Decimal
	Check     decimal.Decimal
}

// Sum adds values exactly.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ItemTotals computes scheduled effort as the sum of the item's entries and
// check as scheduled minus estimate.
func ItemTotals(estimate decimal.Decimal, entries []domain.DailyEntry) ItemTotal {
	scheduled := decimal.Zero
	for _, e := range entries {
		scheduled = scheduled.Add(e.Effort)
	}
	return ItemTotal{Scheduled: scheduled, Check: scheduled.Sub(estimate)}
}

// ProjectTotals sums the scheduled effort of every item in a project.
func ProjectTotals(estimate decimal.Decimal, itemScheduled []decimal.Decimal) ProjectTotal {
	scheduled := Sum(itemScheduled)
	return ProjectTotal{Scheduled: scheduled, Check: scheduled.Sub(estimate)}
}

// PersonTotal sums one person's entries for a day, clamped into the same
// range as a single entry.
func PersonTotal(efforts []decimal.Decimal) decimal.Decimal {
	return domain.ClampEffort(Sum(efforts))
}
