package service

import (
	"context"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/repository"
)

// StalenessPublisher mirrors committed staleness markers to a faster
// read path. Failures are reported but never undo the commit.
type StalenessPublisher interface {
	Publish(ctx context.Context, records ...domain.StalenessRecord) error
}

// StalenessReader answers staleness probes.
type StalenessReader interface {
	LastUpdate(ctx context.Context, scope string) (domain.StalenessRecord, error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ...domain.StalenessRecord) error { return nil }

// Option configures the mutating services.
type Option func(*options)

type options struct {
	publisher StalenessPublisher
	reader    StalenessReader
	observer  UseCaseObserver
	now       func() time.Time
}

func WithStalenessPublisher(p StalenessPublisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithStalenessReader serves probes from r instead of the database.
func WithStalenessReader(r StalenessReader) Option {
	return func(o *options) {
		if r != nil {
			o.reader = r
		}
	}
}

func WithObserver(obs UseCaseObserver) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		publisher: noopPublisher{},
		observer:  NoopUseCaseObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// touchSet collects the projects a mutation affected.
type touchSet struct {
	projects []string
	seen     map[string]bool
}

func (t *touchSet) Add(projectID string) {
	if projectID == "" {
		return
	}
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	if t.seen[projectID] {
		return
	}
	t.seen[projectID] = true
	t.projects = append(t.projects, projectID)
}

func (t *touchSet) scopes() []string {
	return append(append([]string{}, t.projects...), domain.GlobalScope)
}

// mutator runs a write inside one transaction and, when fn reports at
// least one affected project, touches the staleness marker of each of them
// and of the global key before commit.
type mutator struct {
	uow db.UnitOfWork
	options
}

func (m *mutator) run(ctx context.Context, actorID string,
	fn func(ctx context.Context, r *repository.Repos, touched *touchSet) error,
) ([]domain.StalenessRecord, error) {
	var records []domain.StalenessRecord
	err := m.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := repository.New(tx)
		var touched touchSet
		if err := fn(ctx, r, &touched); err != nil {
			return err
		}
		if len(touched.projects) == 0 {
			return nil
		}
		at := m.now().UTC()
		for _, scope := range touched.scopes() {
			rec, err := r.Staleness.Touch(ctx, scope, actorID, at)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		// The write is committed; a caller hanging up must not leave the
		// cache serving the previous marker.
		if err := m.publisher.Publish(context.WithoutCancel(ctx), records...); err != nil {
			m.observer.ObserveUseCase(ctx, UseCaseEvent{
				Name:      "publish-staleness",
				StartedAt: time.Now(),
				Err:       err,
			})
		}
	}
	return records, nil
}
