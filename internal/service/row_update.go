package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/rbac"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/rollup"
)

const noChangeNote = "no change"

type rowService struct {
	mutator
}

// NewRowService returns the optimistic row-update gate.
func NewRowService(uow db.UnitOfWork, opts ...Option) RowService {
	return &rowService{mutator{uow: uow, options: buildOptions(opts)}}
}

func (s *rowService) UpdateRow(ctx context.Context, actor Actor, req RowUpdate) (res *RowResult, err error) {
	fields := map[string]any{"item_id": req.ItemID, "actor_id": actor.ID}
	defer observe(ctx, s.observer, "update-row", time.Now(), fields, &err)

	if req.ItemID == "" {
		return nil, fmt.Errorf("item id is required: %w", domain.ErrBadRequest)
	}
	names, cells := splitRow(req)

	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		item, err := r.WorkItems.GetByID(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if !rbac.Can(actor.Role, rbac.ActionEditItem) {
			return fmt.Errorf("editing item %s: %w", item.ID, domain.ErrForbidden)
		}
		if req.Version == nil {
			return fmt.Errorf("version is required: %w", domain.ErrBadRequest)
		}

		allowed, ignored := rbac.Filter(actor.Role, domain.RowItem, names)
		fe := domain.FieldErrors{}
		var patch domain.ItemPatch
		for _, f := range allowed {
			if err := patch.Set(f, req.Fields[f]); err != nil {
				fe.Add(f, err.Error())
			}
		}
		dates := make(map[string]time.Time, len(cells))
		for key := range cells {
			if !domain.IsDateKey(key) {
				fe.Add(key, "is not a valid date")
				continue
			}
			d, _ := domain.ParseDate(key)
			dates[key] = d
		}

		previousAssignee := item.AssigneeID
		changed := patch.Apply(item)
		for f, msgs := range item.Validate() {
			if slices.Contains(allowed, f) {
				fe[f] = append(fe[f], msgs...)
			}
		}
		if err := checkReferences(ctx, r, item, changed, fe); err != nil {
			return err
		}
		if err := fe.Err(); err != nil {
			return err
		}

		ok, err := r.WorkItems.UpdateGuarded(ctx, item, *req.Version)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("item %s at version %d: %w", item.ID, *req.Version, domain.ErrConflict)
		}

		plan := &rollup.Plan{}
		if slices.Contains(changed, domain.FieldEstimate) {
			plan.Merge(rollup.EstimateChanged(item))
		}
		results := make(map[string]FieldResult, len(allowed)+len(dates)+3)
		keys := make([]string, 0, len(dates))
		for key := range dates {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			effort, p, err := upsertEntry(ctx, r.Entries, item, dates[key], cells[key])
			if err != nil {
				return err
			}
			plan.Merge(p)
			results[key] = FieldResult{OK: true, Value: effort}
		}
		if slices.Contains(changed, domain.FieldAssignee) {
			entries, err := r.Entries.ListByItem(ctx, item.ID)
			if err != nil {
				return err
			}
			plan.Merge(rollup.AssigneeChanged(previousAssignee, item.AssigneeID, rollup.EntryDates(entries)))
		}

		stats, err := settle(ctx, r, plan)
		if err != nil {
			return err
		}
		fresh, err := r.WorkItems.GetByID(ctx, item.ID)
		if err != nil {
			return err
		}
		touched.Add(fresh.ProjectID)

		for _, f := range allowed {
			fr := FieldResult{OK: true, Value: fresh.FieldValue(f)}
			if !slices.Contains(changed, f) {
				fr.Note = noChangeNote
			}
			results[f] = fr
		}
		for _, f := range []string{domain.FieldScheduled, domain.FieldCheck, domain.FieldVersion} {
			results[f] = FieldResult{OK: true, Value: fresh.FieldValue(f)}
		}
		res = &RowResult{
			ItemID:              fresh.ID,
			Version:             fresh.Version,
			Results:             results,
			IgnoredByPermission: ignored,
			Stats:               stats,
		}
		fields["version"] = fresh.Version
		fields["entries"] = len(keys)
		fields["ignored"] = len(ignored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// splitRow separates item columns from date cells. Date-shaped keys sent
// among the fields count as cells; server-owned columns are dropped.
func splitRow(req RowUpdate) ([]string, map[string]any) {
	cells := make(map[string]any, len(req.Entries))
	for k, v := range req.Entries {
		cells[k] = v
	}
	names := make([]string, 0, len(req.Fields))
	for k, v := range req.Fields {
		switch {
		case domain.IsServerField(k):
		case domain.IsDateKey(k):
			cells[k] = v
		default:
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names, cells
}

// checkReferences verifies that changed foreign keys point at rows that
// exist and, for category and milestone, belong to the item's project.
func checkReferences(ctx context.Context, r *repository.Repos, item *domain.WorkItem, changed []string, fe domain.FieldErrors) error {
	if slices.Contains(changed, domain.FieldAssignee) && item.AssigneeID != nil {
		if _, err := r.People.GetByID(ctx, *item.AssigneeID); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			fe.Add(domain.FieldAssignee, "does not exist")
		}
	}
	if slices.Contains(changed, domain.FieldCategory) && item.CategoryID != nil {
		c, err := r.Categories.GetByID(ctx, *item.CategoryID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			fe.Add(domain.FieldCategory, "does not exist")
		case err != nil:
			return err
		case c.ProjectID != item.ProjectID:
			fe.Add(domain.FieldCategory, "is not valid for this project")
		}
	}
	if slices.Contains(changed, domain.FieldMilestone) && item.MilestoneID != nil {
		m, err := r.Milestones.GetByID(ctx, *item.MilestoneID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			fe.Add(domain.FieldMilestone, "does not exist")
		case err != nil:
			return err
		case m.ProjectID != item.ProjectID:
			fe.Add(domain.FieldMilestone, "is not valid for this project")
		}
	}
	return nil
}

func (s *rowService) UpdateProjectEstimate(ctx context.Context, actor Actor, projectID string, raw any) (res *ProjectEstimateResult, err error) {
	defer observe(ctx, s.observer, "update-project-estimate", time.Now(),
		map[string]any{"project_id": projectID, "actor_id": actor.ID}, &err)

	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		project, err := r.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if !rbac.Can(actor.Role, rbac.ActionEditProject) {
			return fmt.Errorf("editing project %s: %w", project.ID, domain.ErrForbidden)
		}
		estimate, err := domain.ParseEffort(raw)
		if err == nil {
			err = domain.ValidateEstimate(estimate, domain.MaxProjectEffort)
		}
		if err != nil {
			fe := domain.FieldErrors{}
			fe.Add(domain.FieldEstimate, err.Error())
			return fe
		}
		if err := r.Projects.UpdateEstimate(ctx, project.ID, estimate, project.Scheduled.Sub(estimate)); err != nil {
			return err
		}
		var plan rollup.Plan
		plan.AddProject(project.ID)
		if _, err := settle(ctx, r, &plan); err != nil {
			return err
		}
		fresh, err := r.Projects.GetByID(ctx, project.ID)
		if err != nil {
			return err
		}
		touched.Add(fresh.ID)
		res = &ProjectEstimateResult{
			ProjectID: fresh.ID,
			Estimate:  fresh.Estimate,
			Scheduled: fresh.Scheduled,
			Check:     fresh.Check,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
