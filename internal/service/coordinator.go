package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/rollup"
	"github.com/shopspring/decimal"
)

// upsertEntry stores the normalized effort for item on date and returns the
// recomputations the write requires.
func upsertEntry(ctx context.Context, entries repository.EntryRepo, item *domain.WorkItem, date time.Time, raw any) (decimal.Decimal, *rollup.Plan, error) {
	effort := domain.NormalizeEffort(raw)
	if err := entries.Upsert(ctx, domain.DailyEntry{ItemID: item.ID, Date: date, Effort: effort}); err != nil {
		return decimal.Zero, nil, err
	}
	return effort, rollup.EntryWritten(item, date), nil
}

// settle runs the recomputations in plan in dependency order: items first,
// then projects (including those whose item totals just moved), then
// person totals. It must run inside the transaction of the triggering write.
func settle(ctx context.Context, r *repository.Repos, plan *rollup.Plan) (rollup.Stats, error) {
	var stats rollup.Stats
	work := &rollup.Plan{}
	work.Merge(plan)

	for _, id := range work.Items() {
		item, err := r.WorkItems.GetByID(ctx, id)
		if err != nil {
			return stats, fmt.Errorf("recomputing item %s: %w", id, err)
		}
		entries, err := r.Entries.ListByItem(ctx, id)
		if err != nil {
			return stats, err
		}
		totals := rollup.ItemTotals(item.Estimate, entries)
		if err := r.WorkItems.UpdateTotals(ctx, id, totals.Scheduled, totals.Check); err != nil {
			return stats, err
		}
		stats.Items++
		if !totals.Scheduled.Equal(item.Scheduled) {
			work.AddProject(item.ProjectID)
		}
	}

	for _, id := range work.Projects() {
		project, err := r.Projects.GetByID(ctx, id)
		if err != nil {
			return stats, fmt.Errorf("recomputing project %s: %w", id, err)
		}
		scheduled, err := r.WorkItems.ScheduledByProject(ctx, id)
		if err != nil {
			return stats, err
		}
		totals := rollup.ProjectTotals(project.Estimate, scheduled)
		if err := r.Projects.UpdateTotals(ctx, id, totals.Scheduled, totals.Check); err != nil {
			return stats, err
		}
		stats.Projects++
	}

	for _, pd := range work.Persons() {
		efforts, err := r.Entries.AssignedEfforts(ctx, pd.PersonID, pd.Date)
		if err != nil {
			return stats, err
		}
		total := domain.PersonDailyTotal{PersonID: pd.PersonID, Date: pd.Date, Effort: rollup.PersonTotal(efforts)}
		if err := r.PersonTotals.Upsert(ctx, total); err != nil {
			return stats, err
		}
		stats.Persons++
	}
	return stats, nil
}
