package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/rbac"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// fixture is a seeded grid: one project with a default category and a few
// people of different roles.
type fixture struct {
	db      *sql.DB
	uow     db.UnitOfWork
	repos   *repository.Repos
	project *domain.Project
	other   *domain.Project
	member  *domain.Person
	manager *domain.Person
	viewer  *domain.Person
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	f := &fixture{
		db:      database,
		uow:     testutil.NewTestUoW(database),
		repos:   repository.New(database),
		project: testutil.NewTestProject("Apollo"),
		other:   testutil.NewTestProject("Zephyr"),
		member:  testutil.NewTestPerson("Mia"),
		manager: testutil.NewTestPerson("Max", testutil.WithRole("manager")),
		viewer:  testutil.NewTestPerson("Vic", testutil.WithRole("viewer")),
	}
	ctx := context.Background()
	require.NoError(t, f.repos.Projects.Create(ctx, f.project))
	require.NoError(t, f.repos.Projects.Create(ctx, f.other))
	for _, p := range []*domain.Person{f.member, f.manager, f.viewer} {
		require.NoError(t, f.repos.People.Create(ctx, p))
	}
	return f
}

func (f *fixture) person(t *testing.T, name string) *domain.Person {
	t.Helper()
	p := testutil.NewTestPerson(name)
	require.NoError(t, f.repos.People.Create(context.Background(), p))
	return p
}

func (f *fixture) item(t *testing.T, subject string, opts ...testutil.WorkItemOption) *domain.WorkItem {
	t.Helper()
	w := testutil.NewTestWorkItem(f.project.ID, subject, opts...)
	require.NoError(t, f.repos.WorkItems.Create(context.Background(), w))
	return w
}

func (f *fixture) reload(t *testing.T, id string) *domain.WorkItem {
	t.Helper()
	w, err := f.repos.WorkItems.GetByID(context.Background(), id)
	require.NoError(t, err)
	return w
}

func (f *fixture) personTotal(t *testing.T, personID, date string) string {
	t.Helper()
	total, err := f.repos.PersonTotals.Get(context.Background(), personID, testutil.Date(date))
	if err != nil {
		require.ErrorIs(t, err, domain.ErrNotFound)
		return "0.00"
	}
	return total.Effort.StringFixed(2)
}

func (f *fixture) projectTotals(t *testing.T) (scheduled, check string) {
	t.Helper()
	p, err := f.repos.Projects.GetByID(context.Background(), f.project.ID)
	require.NoError(t, err)
	return p.Scheduled.StringFixed(2), p.Check.StringFixed(2)
}

func (f *fixture) staleness(t *testing.T, scope string) domain.StalenessRecord {
	t.Helper()
	rec, err := f.repos.Staleness.LastUpdate(context.Background(), scope)
	require.NoError(t, err)
	return rec
}

func actorOf(p *domain.Person) Actor {
	return Actor{ID: p.ID, Role: rbac.Normalize(p.Role)}
}

func version(n int) *int { return &n }

// recordingPublisher captures what the mutator publishes after commit.
type recordingPublisher struct {
	mu      sync.Mutex
	records []domain.StalenessRecord
	// cancelable counts publishes made on a context that can still be canceled.
	cancelable int
}

func (p *recordingPublisher) Publish(ctx context.Context, recs ...domain.StalenessRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, recs...)
	if ctx.Done() != nil {
		p.cancelable++
	}
	return nil
}

func (p *recordingPublisher) scopes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r.Scope)
	}
	return out
}
