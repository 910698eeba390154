package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateRow_EntriesRollUpAndReassignmentMovesLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.person(t, "Xavier")
	y := f.person(t, "Yara")
	a := f.item(t, "A", testutil.WithEstimate("5.00"), testutil.WithAssignee(x.ID))
	svc := NewRowService(f.uow)

	res, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  a.ID,
		Version: version(0),
		Entries: map[string]any{"2025-10-01": "2.00", "2025-10-02": 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, "3.50", res.Results[domain.FieldScheduled].Value.(decimal.Decimal).StringFixed(2))
	assert.Equal(t, "-1.50", res.Results[domain.FieldCheck].Value.(decimal.Decimal).StringFixed(2))
	assert.Equal(t, "2.00", res.Results["2025-10-01"].Value.(decimal.Decimal).StringFixed(2))

	got := f.reload(t, a.ID)
	assert.Equal(t, "3.50", got.Scheduled.StringFixed(2))
	assert.Equal(t, "-1.50", got.Check.StringFixed(2))
	assert.Equal(t, "2.00", f.personTotal(t, x.ID, "2025-10-01"))
	assert.Equal(t, "1.50", f.personTotal(t, x.ID, "2025-10-02"))
	scheduled, check := f.projectTotals(t)
	assert.Equal(t, "3.50", scheduled)
	assert.Equal(t, "3.50", check)

	res, err = svc.UpdateRow(ctx, actorOf(f.manager), RowUpdate{
		ItemID:  a.ID,
		Version: version(1),
		Fields:  map[string]any{domain.FieldAssignee: y.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Stats.Persons)
	assert.Equal(t, "0.00", f.personTotal(t, x.ID, "2025-10-01"))
	assert.Equal(t, "0.00", f.personTotal(t, x.ID, "2025-10-02"))
	assert.Equal(t, "2.00", f.personTotal(t, y.ID, "2025-10-01"))
	assert.Equal(t, "1.50", f.personTotal(t, y.ID, "2025-10-02"))
}

func TestUpdateRow_RepeatedUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Repeat", testutil.WithEstimate("1.00"))
	svc := NewRowService(f.uow)

	cells := map[string]any{"2025-10-01": "4.25", "2025-10-03": "0.75"}
	_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{ItemID: item.ID, Version: version(0), Entries: cells})
	require.NoError(t, err)
	first := f.reload(t, item.ID)

	_, err = svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{ItemID: item.ID, Version: version(1), Entries: cells})
	require.NoError(t, err)
	second := f.reload(t, item.ID)

	assert.Equal(t, "5.00", second.Scheduled.StringFixed(2))
	assert.True(t, first.Scheduled.Equal(second.Scheduled))
	assert.True(t, first.Check.Equal(second.Check))
	assert.Equal(t, 2, second.Version)
}

func TestUpdateRow_ClampsAndRoundsEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.person(t, "Pat")
	item := f.item(t, "Clamp", testutil.WithAssignee(p.ID))
	svc := NewRowService(f.uow)

	res, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Entries: map[string]any{
			"2025-10-01": "1500.00",
			"2025-10-02": -5,
			"2025-10-03": "0.005",
			"2025-10-04": "0.004",
			"2025-10-05": "lots",
		},
	})
	require.NoError(t, err)

	want := map[string]string{
		"2025-10-01": "999.99",
		"2025-10-02": "0.00",
		"2025-10-03": "0.01",
		"2025-10-04": "0.00",
		"2025-10-05": "0.00",
	}
	for day, v := range want {
		assert.Equal(t, v, res.Results[day].Value.(decimal.Decimal).StringFixed(2), day)
		assert.Equal(t, v, f.personTotal(t, p.ID, day), day)
	}
	assert.Equal(t, "1000.00", f.reload(t, item.ID).Scheduled.StringFixed(2))
}

func TestUpdateRow_PersonTotalIsClamped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.person(t, "Busy")
	one := f.item(t, "One", testutil.WithAssignee(p.ID))
	two := f.item(t, "Two", testutil.WithAssignee(p.ID))
	svc := NewRowService(f.uow)

	for _, it := range []*domain.WorkItem{one, two} {
		_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
			ItemID: it.ID, Version: version(0), Entries: map[string]any{"2025-10-01": "600"},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, "999.99", f.personTotal(t, p.ID, "2025-10-01"))
}

func TestUpdateRow_ReassignmentConservesDailyLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	people := []*domain.Person{f.person(t, "P1"), f.person(t, "P2"), f.person(t, "P3")}
	svc := NewRowService(f.uow)

	var items []*domain.WorkItem
	for i, effort := range []string{"1.25", "3.00", "0.50", "7.75"} {
		it := f.item(t, fmt.Sprintf("item-%d", i), testutil.WithAssignee(people[i%len(people)].ID))
		_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
			ItemID: it.ID, Version: version(0), Entries: map[string]any{"2025-10-01": effort, "2025-10-02": "1"},
		})
		require.NoError(t, err)
		items = append(items, it)
	}

	sumFor := func(day string) decimal.Decimal {
		total := decimal.Zero
		for _, p := range people {
			total = total.Add(testutil.Dec(f.personTotal(t, p.ID, day)))
		}
		return total
	}
	entriesFor := func(day string) decimal.Decimal {
		entries, err := f.repos.Entries.ListByProject(ctx, f.project.ID)
		require.NoError(t, err)
		total := decimal.Zero
		for _, e := range entries {
			if e.Date.Format(domain.DateLayout) == day {
				total = total.Add(e.Effort)
			}
		}
		return total
	}

	moves := []struct{ item, to int }{{0, 1}, {1, 2}, {3, 0}, {0, 2}, {2, 2}}
	for _, m := range moves {
		current := f.reload(t, items[m.item].ID)
		_, err := svc.UpdateRow(ctx, actorOf(f.manager), RowUpdate{
			ItemID:  current.ID,
			Version: version(current.Version),
			Fields:  map[string]any{domain.FieldAssignee: people[m.to].ID},
		})
		require.NoError(t, err)
		for _, day := range []string{"2025-10-01", "2025-10-02"} {
			assert.True(t, sumFor(day).Equal(entriesFor(day)), "day %s after move %+v", day, m)
		}
	}
}

func TestUpdateRow_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Race")
	svc := NewRowService(f.uow)

	_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(0), Fields: map[string]any{domain.FieldSubject: "First"},
	})
	require.NoError(t, err)

	_, err = svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Fields:  map[string]any{domain.FieldSubject: "Second"},
		Entries: map[string]any{"2025-10-01": "8"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.False(t, errors.Is(err, domain.ErrValidation))

	got := f.reload(t, item.ID)
	assert.Equal(t, "First", got.Subject)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Scheduled.IsZero())
	entries, err := f.repos.Entries.ListByItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestUpdateRow_ConcurrentWritersSingleWinner races writers holding the same
// version. Exactly one commits and the item's totals reflect only its cells.
func TestUpdateRow_ConcurrentWritersSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Contended", testutil.WithAssignee(f.member.ID))
	svc := NewRowService(f.uow)

	const writers = 6
	var wins atomic.Int32
	var winner atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
				ItemID:  item.ID,
				Version: version(0),
				Entries: map[string]any{"2025-10-01": n, "2025-10-02": n},
			})
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(int32(n))
			case errors.Is(err, domain.ErrConflict):
			default:
				t.Errorf("writer %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	n := int64(winner.Load())
	got := f.reload(t, item.ID)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Scheduled.Equal(decimal.NewFromInt(2*n)), "scheduled %s for winner %d", got.Scheduled, n)
	assert.Equal(t, decimal.NewFromInt(n).StringFixed(2), f.personTotal(t, f.member.ID, "2025-10-01"))
}

func TestUpdateRow_ReportsFieldsIgnoredByPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Scoped")
	svc := NewRowService(f.uow)

	res, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Fields: map[string]any{
			domain.FieldSubject:  "Renamed",
			domain.FieldAssignee: f.manager.ID,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldAssignee}, res.IgnoredByPermission)
	assert.Equal(t, "Renamed", res.Results[domain.FieldSubject].Value)
	assert.NotContains(t, res.Results, domain.FieldAssignee)

	got := f.reload(t, item.ID)
	assert.Nil(t, got.AssigneeID)
	assert.Equal(t, "Renamed", got.Subject)
}

func TestUpdateRow_ValidationFailurePerField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Valid")
	svc := NewRowService(f.uow)

	_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Fields: map[string]any{
			domain.FieldSubject:  "  ",
			domain.FieldEstimate: "1000",
		},
		Entries: map[string]any{"2025-02-30": "1"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	var fe domain.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe, domain.FieldSubject)
	assert.Contains(t, fe, domain.FieldEstimate)
	assert.Contains(t, fe, "2025-02-30")

	got := f.reload(t, item.ID)
	assert.Equal(t, 0, got.Version)
	assert.Equal(t, "Valid", got.Subject)
}

func TestUpdateRow_RejectsForeignCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	foreign := testutil.NewTestCategory(f.other.ID, "Elsewhere", 0)
	require.NoError(t, f.repos.Categories.Create(ctx, foreign))
	item := f.item(t, "Cat")

	_, err := NewRowService(f.uow).UpdateRow(ctx, actorOf(f.manager), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Fields:  map[string]any{domain.FieldCategory: foreign.ID, domain.FieldAssignee: "ghost"},
	})
	var fe domain.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []string{"is not valid for this project"}, fe[domain.FieldCategory])
	assert.Equal(t, []string{"does not exist"}, fe[domain.FieldAssignee])
}

func TestUpdateRow_GateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Gate")
	svc := NewRowService(f.uow)

	t.Run("unknown item", func(t *testing.T) {
		_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{ItemID: "missing", Version: version(0)})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
	t.Run("viewer", func(t *testing.T) {
		_, err := svc.UpdateRow(ctx, actorOf(f.viewer), RowUpdate{ItemID: item.ID, Version: version(0)})
		assert.True(t, errors.Is(err, domain.ErrForbidden))
	})
	t.Run("missing version", func(t *testing.T) {
		_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{ItemID: item.ID})
		assert.True(t, errors.Is(err, domain.ErrBadRequest))
	})
	t.Run("missing id", func(t *testing.T) {
		_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{Version: version(0)})
		assert.True(t, errors.Is(err, domain.ErrBadRequest))
	})

	assert.Equal(t, int64(0), f.staleness(t, f.project.ID).Revision)
}

func TestUpdateRow_DateOnlyEditAdvancesVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Dates")
	svc := NewRowService(f.uow)

	res, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(0), Entries: map[string]any{"2025-10-06": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, 1, res.Results[domain.FieldVersion].Value)

	_, err = svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(0), Entries: map[string]any{"2025-10-06": "3"},
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestUpdateRow_DateKeysAmongFieldsAreCells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Legacy")

	res, err := NewRowService(f.uow).UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Fields: map[string]any{
			"2025-10-07":            "1.5",
			domain.FieldScheduled:   "99",
			domain.FieldDoneRatio:   40,
			domain.FieldVersion:     7,
			domain.FieldSubject:     "Legacy",
			domain.FieldColor:       float64(domain.ColorRed),
			domain.FieldDescription: "",
		},
	})
	require.NoError(t, err)
	assert.Empty(t, res.IgnoredByPermission)
	assert.Equal(t, "1.50", res.Results["2025-10-07"].Value.(decimal.Decimal).StringFixed(2))
	assert.Equal(t, noChangeNote, res.Results[domain.FieldSubject].Note)
	assert.Equal(t, noChangeNote, res.Results[domain.FieldDescription].Note)
	assert.Empty(t, res.Results[domain.FieldDoneRatio].Note)
	assert.Equal(t, int(domain.ColorRed), res.Results[domain.FieldColor].Value)

	got := f.reload(t, item.ID)
	assert.Equal(t, "1.50", got.Scheduled.StringFixed(2))
	assert.Equal(t, 40, got.DoneRatio)
}

func TestUpdateRow_FailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Fragile", testutil.WithEstimate("2.00"), testutil.WithAssignee(f.member.ID))
	uow := &testutil.FailOnNthExecUoW{
		DB:     f.db,
		FailOn: 1,
		Match:  "person_daily_totals",
		Err:    errors.New("disk full"),
	}
	pub := &recordingPublisher{}

	_, err := NewRowService(uow, WithStalenessPublisher(pub)).UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID:  item.ID,
		Version: version(0),
		Fields:  map[string]any{domain.FieldSubject: "Changed"},
		Entries: map[string]any{"2025-10-01": "3"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	got := f.reload(t, item.ID)
	assert.Equal(t, "Fragile", got.Subject)
	assert.Equal(t, 0, got.Version)
	assert.True(t, got.Scheduled.IsZero())
	entries, err := f.repos.Entries.ListByItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int64(0), f.staleness(t, domain.GlobalScope).Revision)
	assert.Empty(t, pub.scopes())
}

func TestUpdateRow_TouchesProjectAndGlobalOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Probe")
	pub := &recordingPublisher{}
	clock := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	svc := NewRowService(f.uow, WithStalenessPublisher(pub), WithClock(func() time.Time { return clock }))

	before := f.staleness(t, f.project.ID)
	_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(0), Entries: map[string]any{"2025-10-01": "1"},
	})
	require.NoError(t, err)
	first := f.staleness(t, f.project.ID)
	assert.True(t, first.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, f.member.ID, first.ActorID)

	// Same clock reading: the marker still moves forward.
	_, err = svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(1), Entries: map[string]any{"2025-10-01": "2"},
	})
	require.NoError(t, err)
	second := f.staleness(t, f.project.ID)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, int64(2), second.Revision)

	assert.Equal(t, int64(2), f.staleness(t, domain.GlobalScope).Revision)
	assert.Equal(t, int64(0), f.staleness(t, f.other.ID).Revision)
	assert.Equal(t, []string{f.project.ID, domain.GlobalScope, f.project.ID, domain.GlobalScope}, pub.scopes())
}

func TestUpdateRow_PublishOutlivesRequestContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	item := f.item(t, "Detached")
	pub := &recordingPublisher{}

	_, err := NewRowService(f.uow, WithStalenessPublisher(pub)).UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(0), Fields: map[string]any{domain.FieldSubject: "Still detached"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{f.project.ID, domain.GlobalScope}, pub.scopes())
	assert.Zero(t, pub.cancelable)
}

func TestUpdateProjectEstimate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "Booked")
	svc := NewRowService(f.uow)
	_, err := svc.UpdateRow(ctx, actorOf(f.member), RowUpdate{
		ItemID: item.ID, Version: version(0), Entries: map[string]any{"2025-10-01": "4"},
	})
	require.NoError(t, err)

	res, err := svc.UpdateProjectEstimate(ctx, actorOf(f.manager), f.project.ID, "10.5")
	require.NoError(t, err)
	assert.Equal(t, "10.50", res.Estimate.StringFixed(2))
	assert.Equal(t, "4.00", res.Scheduled.StringFixed(2))
	assert.Equal(t, "-6.50", res.Check.StringFixed(2))
	scheduled, check := f.projectTotals(t)
	assert.Equal(t, "4.00", scheduled)
	assert.Equal(t, "-6.50", check)

	_, err = svc.UpdateProjectEstimate(ctx, actorOf(f.member), f.project.ID, "1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = svc.UpdateProjectEstimate(ctx, actorOf(f.manager), f.project.ID, "100000")
	var fe domain.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe, domain.FieldEstimate)

	_, err = svc.UpdateProjectEstimate(ctx, actorOf(f.manager), "nope", "1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
