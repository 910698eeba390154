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
)

type layoutService struct {
	mutator
}

func NewLayoutService(uow db.UnitOfWork, opts ...Option) LayoutService {
	return &layoutService{mutator{uow: uow, options: buildOptions(opts)}}
}

// Reorder stores the actor's display ranks. Unknown item ids are dropped.
// Ranks carry no version: each viewer's order drifts independently.
func (s *layoutService) Reorder(ctx context.Context, actor Actor, ranks []Rank) (applied int, err error) {
	fields := map[string]any{"actor_id": actor.ID, "requested": len(ranks)}
	defer observe(ctx, s.observer, "reorder", time.Now(), fields, &err)

	if !rbac.Can(actor.Role, rbac.ActionReorder) {
		return 0, fmt.Errorf("reordering: %w", domain.ErrForbidden)
	}
	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		for _, rk := range ranks {
			item, err := r.WorkItems.GetByID(ctx, rk.ItemID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := r.SortOrders.Upsert(ctx, domain.SortOrder{PersonID: actor.ID, ItemID: item.ID, Rank: rk.Rank}); err != nil {
				return err
			}
			applied++
			touched.Add(item.ProjectID)
		}
		return nil
	})
	fields["applied"] = applied
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// UpdateProjectDates sets a project's span. Last write wins.
func (s *layoutService) UpdateProjectDates(ctx context.Context, actor Actor, projectID string, start, end *time.Time) (err error) {
	defer observe(ctx, s.observer, "update-project-dates", time.Now(),
		map[string]any{"project_id": projectID}, &err)

	if err := domain.ValidateDateRange(start, end); err != nil {
		return err
	}
	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		if _, err := r.Projects.GetByID(ctx, projectID); err != nil {
			return err
		}
		if !rbac.Can(actor.Role, rbac.ActionEditProject) {
			return fmt.Errorf("editing project %s: %w", projectID, domain.ErrForbidden)
		}
		if err := r.Projects.UpdateDates(ctx, projectID, start, end); err != nil {
			return err
		}
		touched.Add(projectID)
		return nil
	})
	return err
}

// UpdateMilestoneDates sets a milestone's span. Last write wins.
func (s *layoutService) UpdateMilestoneDates(ctx context.Context, actor Actor, milestoneID string, start, effective *time.Time) (err error) {
	defer observe(ctx, s.observer, "update-milestone-dates", time.Now(),
		map[string]any{"milestone_id": milestoneID}, &err)

	if err := domain.ValidateDateRange(start, effective); err != nil {
		return err
	}
	_, err = s.run(ctx, actor.ID, func(ctx context.Context, r *repository.Repos, touched *touchSet) error {
		m, err := r.Milestones.GetByID(ctx, milestoneID)
		if err != nil {
			return err
		}
		if !rbac.Can(actor.Role, rbac.ActionEditMilestone) {
			return fmt.Errorf("editing milestone %s: %w", milestoneID, domain.ErrForbidden)
		}
		if err := r.Milestones.UpdateDates(ctx, m.ID, start, effective); err != nil {
			return err
		}
		touched.Add(m.ProjectID)
		return nil
	})
	return err
}
