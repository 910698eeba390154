package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/rbac"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/shopspring/decimal"
)

type syncService struct {
	repos *repository.Repos
	options
}

// NewSyncService serves the poll protocol. Reads run outside any
// transaction: the staleness record is read before the data, so a write
// racing the snapshot only causes one more reload.
func NewSyncService(conn db.DBTX, opts ...Option) SyncService {
	s := &syncService{repos: repository.New(conn), options: buildOptions(opts)}
	if s.reader == nil {
		s.reader = s.repos.Staleness
	}
	return s
}

func (s *syncService) LastUpdate(ctx context.Context, projectID string) (domain.StalenessRecord, error) {
	return s.reader.LastUpdate(ctx, domain.ScopeFor(projectID))
}

func (s *syncService) Snapshot(ctx context.Context, actor Actor, projectID string) (snap *Snapshot, err error) {
	fields := map[string]any{"project_id": projectID, "actor_id": actor.ID}
	defer observe(ctx, s.observer, "snapshot", time.Now(), fields, &err)

	if !rbac.Can(actor.Role, rbac.ActionRead) {
		return nil, fmt.Errorf("reading grid: %w", domain.ErrForbidden)
	}
	r := s.repos
	snap = &Snapshot{}
	if snap.Staleness, err = r.Staleness.LastUpdate(ctx, domain.ScopeFor(projectID)); err != nil {
		return nil, err
	}
	if projectID != "" {
		p, err := r.Projects.GetByID(ctx, projectID)
		if err != nil {
			return nil, err
		}
		snap.Projects = []*domain.Project{p}
	} else if snap.Projects, err = r.Projects.List(ctx); err != nil {
		return nil, err
	}
	if snap.Milestones, err = r.Milestones.ListByProject(ctx, projectID); err != nil {
		return nil, err
	}

	items, err := r.WorkItems.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries, err := r.Entries.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]map[string]decimal.Decimal, len(items))
	for _, e := range entries {
		if byItem[e.ItemID] == nil {
			byItem[e.ItemID] = make(map[string]decimal.Decimal)
		}
		byItem[e.ItemID][e.Date.Format(domain.DateLayout)] = e.Effort
	}
	ranks, err := r.SortOrders.ListByPerson(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	orderByRank(items, ranks)
	snap.Items = make([]ItemRow, 0, len(items))
	for _, it := range items {
		cells := byItem[it.ID]
		if cells == nil {
			cells = map[string]decimal.Decimal{}
		}
		snap.Items = append(snap.Items, ItemRow{Item: it, Entries: cells})
	}

	if snap.PersonTotals, err = r.PersonTotals.List(ctx); err != nil {
		return nil, err
	}
	if snap.People, err = r.People.List(ctx); err != nil {
		return nil, err
	}
	fields["items"] = len(snap.Items)
	return snap, nil
}

// orderByRank sorts ranked items first by rank; unranked items keep their
// creation order after them.
func orderByRank(items []*domain.WorkItem, ranks map[string]int) {
	key := func(id string) int {
		if r, ok := ranks[id]; ok {
			return r
		}
		return math.MaxInt
	}
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i].ID) < key(items[j].ID)
	})
}

type actorResolver struct {
	people repository.PersonRepo
}

// NewActorResolver maps a person id from the request to an Actor. Unknown
// people are forbidden rather than not found.
func NewActorResolver(conn db.DBTX) ActorResolver {
	return &actorResolver{people: repository.NewSQLPersonRepo(conn)}
}

func (a *actorResolver) ResolveActor(ctx context.Context, personID string) (Actor, error) {
	if personID == "" {
		return Actor{}, fmt.Errorf("no person on request: %w", domain.ErrForbidden)
	}
	p, err := a.people.GetByID(ctx, personID)
	if errors.Is(err, domain.ErrNotFound) {
		return Actor{}, fmt.Errorf("unknown person %s: %w", personID, domain.ErrForbidden)
	}
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: p.ID, Role: rbac.Normalize(p.Role)}, nil
}
