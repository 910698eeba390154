package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/rbac"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/rollup"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxCreateCount caps a single bulk-create request.
const MaxCreateCount = 100

type itemService struct {
	mutator
}

func NewItemService(uow db.UnitOfWork, opts ...Option) ItemService {
	return &itemService{mutator{uow: uow, options: buildOptions(opts)}}
}

func (s *itemService) CreateItems(ctx context.Context, actor Actor, projectID string, count int) (ids []string, err error) {
	defer observe(ctx, s.observer, "create-items", time.Now(),
		map[string]any{"project_id": projectID, "count": count}, &err)

	if count < 0 || count > MaxCreateCount {
		return nil, fmt.Errorf("count must be between 0 and %d: %w", MaxCreateCount, domain.ErrBadRequest)
	}
	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		project, err := r.Projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if !rbac.Can(actor.Role, rbac.ActionCreateItem) {
			return fmt.Errorf("adding items to project %s: %w", project.ID, domain.ErrForbidden)
		}
		if count == 0 {
			return nil
		}
		var categoryID *string
		category, err := r.Categories.FirstByProject(ctx, project.ID)
		switch {
		case err == nil:
			categoryID = &category.ID
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		base := s.now().UTC()
		plan := &rollup.Plan{}
		for i := range count {
			at := base.Add(time.Duration(i) * time.Microsecond)
			w := &domain.WorkItem{
				ID:         uuid.New().String(),
				ProjectID:  project.ID,
				CategoryID: categoryID,
				Subject:    domain.DefaultSubject,
				CreatedAt:  at,
				UpdatedAt:  at,
			}
			if err := r.WorkItems.Create(ctx, w); err != nil {
				return err
			}
			plan.Merge(rollup.ItemAdded(w))
			ids = append(ids, w.ID)
		}
		if _, err := settle(ctx, r, plan); err != nil {
			return err
		}
		touched.Add(project.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CopyItems duplicates each source item's editable columns. Daily entries
// are not copied, so a copy starts with nothing scheduled. Any missing
// source fails the whole batch with a per-source error.
func (s *itemService) CopyItems(ctx context.Context, actor Actor, itemIDs []string) (res *CopyResult, err error) {
	defer observe(ctx, s.observer, "copy-items", time.Now(),
		map[string]any{"count": len(itemIDs)}, &err)

	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("no items to copy: %w", domain.ErrBadRequest)
	}
	if !rbac.Can(actor.Role, rbac.ActionCreateItem) {
		return nil, fmt.Errorf("copying items: %w", domain.ErrForbidden)
	}
	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		found, err := r.WorkItems.ExistingIDs(ctx, itemIDs)
		if err != nil {
			return err
		}
		fe := domain.FieldErrors{}
		for _, id := range itemIDs {
			if !found[id] {
				fe.Add(id, "not found")
			}
		}
		if err := fe.Err(); err != nil {
			return err
		}

		base := s.now().UTC()
		plan := &rollup.Plan{}
		res = &CopyResult{}
		for i, id := range itemIDs {
			src, err := r.WorkItems.GetByID(ctx, id)
			if err != nil {
				return &domain.RowError{ItemID: id, Err: err}
			}
			at := base.Add(time.Duration(i) * time.Microsecond)
			cp := *src
			cp.ID = uuid.New().String()
			cp.Scheduled = decimal.Zero
			cp.Check = decimal.Zero.Sub(cp.Estimate)
			cp.Version = 0
			cp.CreatedAt = at
			cp.UpdatedAt = at
			if err := r.WorkItems.Create(ctx, &cp); err != nil {
				return &domain.RowError{ItemID: id, Err: err}
			}
			plan.Merge(rollup.ItemAdded(&cp))
			touched.Add(cp.ProjectID)
			res.Created = append(res.Created, CopyPair{SourceID: id, CopyID: cp.ID})
		}
		_, err = settle(ctx, r, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteItems removes item rows and their entries. Control rows are
// rejected before anything is deleted.
func (s *itemService) DeleteItems(ctx context.Context, actor Actor, rows []RowRef) (res *DeleteResult, err error) {
	fields := map[string]any{"count": len(rows)}
	defer observe(ctx, s.observer, "delete-items", time.Now(), fields, &err)

	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to delete: %w", domain.ErrBadRequest)
	}
	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.Kind != "" && row.Kind != domain.RowItem {
			return nil, &domain.RowError{
				ItemID: row.ID,
				Err:    fmt.Errorf("%s rows cannot be deleted: %w", row.Kind, domain.ErrBadRequest),
			}
		}
		if row.ID == "" {
			return nil, fmt.Errorf("row without id: %w", domain.ErrBadRequest)
		}
		if !seen[row.ID] {
			seen[row.ID] = true
			ids = append(ids, row.ID)
		}
	}
	if !rbac.Can(actor.Role, rbac.ActionDeleteItem) {
		return nil, fmt.Errorf("deleting items: %w", domain.ErrForbidden)
	}

	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		plan := &rollup.Plan{}
		for _, id := range ids {
			item, err := r.WorkItems.GetByID(ctx, id)
			if err != nil {
				return &domain.RowError{ItemID: id, Err: err}
			}
			entries, err := r.Entries.ListByItem(ctx, id)
			if err != nil {
				return err
			}
			if err := r.WorkItems.Delete(ctx, id); err != nil {
				return &domain.RowError{ItemID: id, Err: err}
			}
			plan.Merge(rollup.ItemRemoved(item, rollup.EntryDates(entries)))
			touched.Add(item.ProjectID)
		}
		stats, err := settle(ctx, r, plan)
		if err != nil {
			return err
		}
		res = &DeleteResult{Deleted: ids, Stats: stats}
		fields["persons_recomputed"] = stats.Persons
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Recolor sets color on every listed item under the optimistic lock. One
// stale or missing row rolls back the whole batch.
func (s *itemService) Recolor(ctx context.Context, actor Actor, itemIDs []string, versions []int, color domain.Color) (res *RecolorResult, err error) {
	defer observe(ctx, s.observer, "recolor-items", time.Now(),
		map[string]any{"count": len(itemIDs), "color": int(color)}, &err)

	if len(itemIDs) == 0 || len(itemIDs) != len(versions) {
		return nil, fmt.Errorf("got %d item ids and %d versions: %w", len(itemIDs), len(versions), domain.ErrBadRequest)
	}
	if !color.Valid() {
		fe := domain.FieldErrors{}
		fe.Add(domain.FieldColor, "is not included in the list")
		return nil, fe
	}
	if !rbac.Can(actor.Role, rbac.ActionEditItem) {
		return nil, fmt.Errorf("recoloring items: %w", domain.ErrForbidden)
	}

	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		res = &RecolorResult{Versions: make(map[string]int, len(itemIDs))}
		for i, id := range itemIDs {
			// Repeated ids keep the first version given.
			if _, seen := res.Versions[id]; seen {
				continue
			}
			item, err := r.WorkItems.GetByID(ctx, id)
			if err != nil {
				return &domain.RowError{ItemID: id, Err: err}
			}
			if item.Version != versions[i] {
				return &domain.RowError{ItemID: id, Err: domain.ErrConflict}
			}
			if item.Color == color {
				res.Skipped = append(res.Skipped, id)
				res.Versions[id] = item.Version
				continue
			}
			item.Color = color
			ok, err := r.WorkItems.UpdateGuarded(ctx, item, versions[i])
			if err != nil {
				return err
			}
			if !ok {
				return &domain.RowError{ItemID: id, Err: domain.ErrConflict}
			}
			res.Versions[id] = item.Version
			touched.Add(item.ProjectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
