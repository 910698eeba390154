package repository

import (
	"context"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/shopspring/decimal"
)

type PersonRepo interface {
	Create(ctx context.Context, p *domain.Person) error
	GetByID(ctx context.Context, id string) (*domain.Person, error)
	List(ctx context.Context) ([]*domain.Person, error)
}

type ProjectRepo interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
	UpdateEstimate(ctx context.Context, id string, estimate, check decimal.Decimal) error
	UpdateTotals(ctx context.Context, id string, scheduled, check decimal.Decimal) error
	UpdateDates(ctx context.Context, id string, start, end *time.Time) error
}

type CategoryRepo interface {
	Create(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	FirstByProject(ctx context.Context, projectID string) (*domain.Category, error)
}

type MilestoneRepo interface {
	Create(ctx context.Context, m *domain.Milestone) error
	GetByID(ctx context.Context, id string) (*domain.Milestone, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.Milestone, error)
	UpdateDates(ctx context.Context, id string, start, effective *time.Time) error
}

type WorkItemRepo interface {
	Create(ctx context.Context, w *domain.WorkItem) error
	GetByID(ctx context.Context, id string) (*domain.WorkItem, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.WorkItem, error)
	UpdateGuarded(ctx context.Context, w *domain.WorkItem, expectedVersion int) (bool, error)
	UpdateTotals(ctx context.Context, id string, scheduled, check decimal.Decimal) error
	ScheduledByProject(ctx context.Context, projectID string) ([]decimal.Decimal, error)
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	Delete(ctx context.Context, id string) error
}

type EntryRepo interface {
	Upsert(ctx context.Context, e domain.DailyEntry) error
	ListByItem(ctx context.Context, itemID string) ([]domain.DailyEntry, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.DailyEntry, error)
	AssignedEfforts(ctx context.Context, personID string, date time.Time) ([]decimal.Decimal, error)
}

type PersonTotalRepo interface {
	Upsert(ctx context.Context, t domain.PersonDailyTotal) error
	Get(ctx context.Context, personID string, date time.Time) (domain.PersonDailyTotal, error)
	List(ctx context.Context) ([]domain.PersonDailyTotal, error)
}

type StalenessRepo interface {
	Touch(ctx context.Context, scope, actorID string, at time.Time) (domain.StalenessRecord, error)
	LastUpdate(ctx context.Context, scope string) (domain.StalenessRecord, error)
}

type SortOrderRepo interface {
	Upsert(ctx context.Context, o domain.SortOrder) error
	ListByPerson(ctx context.Context, personID string) (map[string]int, error)
}

// Repos bundles every repository over one connection or transaction.
type Repos struct {
	People       PersonRepo
	Projects     ProjectRepo
	Categories   CategoryRepo
	Milestones   MilestoneRepo
	WorkItems    WorkItemRepo
	Entries      EntryRepo
	PersonTotals PersonTotalRepo
	Staleness    StalenessRepo
	SortOrders   SortOrderRepo
}

// New builds the SQL repositories over conn.
func New(conn db.DBTX) *Repos {
	return &Repos{
		People:       NewSQLPersonRepo(conn),
		Projects:     NewSQLProjectRepo(conn),
		Categories:   NewSQLCategoryRepo(conn),
		Milestones:   NewSQLMilestoneRepo(conn),
		WorkItems:    NewSQLWorkItemRepo(conn),
		Entries:      NewSQLEntryRepo(conn),
		PersonTotals: NewSQLPersonTotalRepo(conn),
		Staleness:    NewSQLStalenessRepo(conn),
		SortOrders:   NewSQLSortOrderRepo(conn),
	}
}
