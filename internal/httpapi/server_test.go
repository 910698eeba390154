package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/service"
	"github.com/alexanderramin/workgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	handler http.Handler
	repos   *repository.Repos
	project *domain.Project
	member  *domain.Person
	viewer  *domain.Person
}

func newAPIFixture(t *testing.T, ready func(context.Context) error) *apiFixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	f := &apiFixture{
		repos:   repository.New(database),
		project: testutil.NewTestProject("Apollo"),
		member:  testutil.NewTestPerson("Mia"),
		viewer:  testutil.NewTestPerson("Vic", testutil.WithRole("viewer")),
	}
	ctx := context.Background()
	require.NoError(t, f.repos.Projects.Create(ctx, f.project))
	require.NoError(t, f.repos.People.Create(ctx, f.member))
	require.NoError(t, f.repos.People.Create(ctx, f.viewer))

	f.handler = NewHandler(Services{
		Rows:   service.NewRowService(uow),
		Items:  service.NewItemService(uow),
		Layout: service.NewLayoutService(uow),
		Sync:   service.NewSyncService(database),
		Actors: service.NewActorResolver(database),
		Ready:  ready,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *apiFixture) item(t *testing.T, subject string, opts ...testutil.WorkItemOption) *domain.WorkItem {
	t.Helper()
	w := testutil.NewTestWorkItem(f.project.ID, subject, opts...)
	require.NoError(t, f.repos.WorkItems.Create(context.Background(), w))
	return w
}

func (f *apiFixture) do(t *testing.T, method, path, person string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if person != "" {
		req.Header.Set(PersonHeader, person)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out), "body: %s", rec.Body.String())
	return out
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/ready", "", nil).Code)

	down := newAPIFixture(t, func(context.Context) error { return errors.New("database is gone") })
	rec := down.do(t, "GET", "/api/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdateRow_ReturnsAuthoritativeValues(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Design", testutil.WithEstimate("10"), testutil.WithAssignee(f.member.ID))

	rec := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID, map[string]any{
		"version": 0,
		"fields":  map[string]any{"subject": "Design review"},
		"entries": map[string]any{"2026-03-02": "8", "2026-03-03": 1.5},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[contract.RowResponse](t, rec)
	assert.True(t, res.OK)
	assert.Equal(t, w.ID, res.ID)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, "Design review", res.Results["subject"].Value)
	assert.Equal(t, json.Number("9.50"), res.Results["scheduled_effort"].Value)
	assert.Equal(t, json.Number("-0.50"), res.Results["check_value"].Value)
	assert.Empty(t, res.IgnoredByPermission)
}

func TestUpdateRow_LegacyShape(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Build")

	rec := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID,
		`{"lock_version": 0, "attributes": {"subject": "Build it", "2026-03-04": "2.5", "version": 99}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[contract.RowResponse](t, rec)
	assert.Equal(t, "Build it", res.Results["subject"].Value)
	assert.Equal(t, json.Number("2.50"), res.Results["scheduled_effort"].Value)
}

func TestUpdateRow_StaleVersionIsConflict(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Test")

	first := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID,
		map[string]any{"version": 0, "fields": map[string]any{"subject": "one"}})
	require.Equal(t, http.StatusOK, first.Code)

	rec := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID,
		map[string]any{"version": 0, "fields": map[string]any{"subject": "two"}})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[contract.ErrorResponse](t, rec)
	assert.Equal(t, contract.CodeStaleObject, body.Error)
	assert.Equal(t, w.ID, body.ItemID)
}

func TestUpdateRow_ValidationFailed(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Ship")

	rec := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID,
		map[string]any{"version": 0, "fields": map[string]any{"subject": "  ", "done_ratio": 150}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[contract.ErrorResponse](t, rec)
	assert.Equal(t, contract.CodeValidationFailed, body.Error)
	assert.Contains(t, body.Errors, "subject")
	assert.Contains(t, body.Errors, "done_ratio")
}

func TestUpdateRow_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Ship")

	cases := map[string]struct {
		path   string
		person string
		body   any
		status int
		code   string
	}{
		"missing person":  {"/api/items/" + w.ID + "/row", "", map[string]any{"version": 0}, http.StatusForbidden, contract.CodeForbidden},
		"unknown person":  {"/api/items/" + w.ID + "/row", "nobody", map[string]any{"version": 0}, http.StatusForbidden, contract.CodeForbidden},
		"viewer":          {"/api/items/" + w.ID + "/row", f.viewer.ID, map[string]any{"version": 0}, http.StatusForbidden, contract.CodeForbidden},
		"missing item":    {"/api/items/nope/row", f.member.ID, map[string]any{"version": 0}, http.StatusNotFound, contract.CodeNotFound},
		"missing version": {"/api/items/" + w.ID + "/row", f.member.ID, map[string]any{"fields": map[string]any{}}, http.StatusBadRequest, contract.CodeBadRequest},
		"malformed body":  {"/api/items/" + w.ID + "/row", f.member.ID, `{"version":`, http.StatusBadRequest, contract.CodeBadRequest},
		"empty body":      {"/api/items/" + w.ID + "/row", f.member.ID, "", http.StatusBadRequest, contract.CodeBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, "POST", tc.path, tc.person, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode[contract.ErrorResponse](t, rec).Error)
		})
	}
}

func TestDeleteItems_RejectsControlRows(t *testing.T) {
	f := newAPIFixture(t, nil)
	manager := testutil.NewTestPerson("Max", testutil.WithRole("manager"))
	require.NoError(t, f.repos.People.Create(context.Background(), manager))
	w := f.item(t, "Keep")

	rec := f.do(t, "POST", "/api/items/delete", manager.ID, contract.DeleteRequest{Rows: []contract.RowRef{
		{ID: w.ID, Kind: "item"},
		{ID: f.project.ID, Kind: "project"},
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, f.project.ID, decode[contract.ErrorResponse](t, rec).ItemID)

	_, err := f.repos.WorkItems.GetByID(context.Background(), w.ID)
	require.NoError(t, err)

	rec = f.do(t, "POST", "/api/items/delete", manager.ID, contract.DeleteRequest{Rows: []contract.RowRef{{ID: w.ID}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{w.ID}, decode[contract.DeleteResponse](t, rec).Deleted)
}

func TestCreateCopyAndRecolor(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, "POST", "/api/projects/"+f.project.ID+"/items", f.member.ID, contract.CreateItemsRequest{Count: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[contract.CreateItemsResponse](t, rec)
	require.Len(t, created.IDs, 2)

	rec = f.do(t, "POST", "/api/items/copy", f.member.ID, contract.CopyRequest{ItemIDs: created.IDs[:1]})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	copied := decode[contract.CopyResponse](t, rec)
	require.Len(t, copied.Items, 1)
	assert.Equal(t, created.IDs[0], copied.Items[0].SourceID)
	assert.NotEqual(t, created.IDs[0], copied.Items[0].ID)

	rec = f.do(t, "POST", "/api/items/color", f.member.ID, contract.RecolorRequest{
		ItemIDs: created.IDs, Versions: []int{0}, Color: int(domain.ColorRed),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "POST", "/api/items/color", f.member.ID, contract.RecolorRequest{
		ItemIDs: created.IDs, Versions: []int{0, 0}, Color: int(domain.ColorRed),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recolored := decode[contract.RecolorResponse](t, rec)
	assert.Equal(t, 1, recolored.Versions[created.IDs[0]])
	assert.Empty(t, recolored.Skipped)
}

func TestProjectDates(t *testing.T) {
	f := newAPIFixture(t, nil)
	manager := testutil.NewTestPerson("Max", testutil.WithRole("manager"))
	require.NoError(t, f.repos.People.Create(context.Background(), manager))
	path := "/api/projects/" + f.project.ID + "/dates"

	rec := f.do(t, "POST", path, manager.ID, `{"start_date": "2026-13-01", "end_date": null}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[contract.ErrorResponse](t, rec).Errors, "start_date")

	rec = f.do(t, "POST", path, manager.ID, `{"start_date": "2026-05-01", "end_date": "2026-04-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "POST", path, manager.ID, `{"start_date": "2026-04-01", "end_date": "2026-05-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p, err := f.repos.Projects.GetByID(context.Background(), f.project.ID)
	require.NoError(t, err)
	require.NotNil(t, p.EndDate)
	assert.Equal(t, "2026-05-01", p.EndDate.Format(domain.DateLayout))
}

func TestStalenessProbe_AdvancesAfterWrite(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Probe")
	path := "/api/staleness?project_id=" + f.project.ID

	rec := f.do(t, "GET", path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	before := decode[contract.Staleness](t, rec)
	assert.Equal(t, f.project.ID, before.Scope)
	assert.Zero(t, before.Revision)
	assert.Zero(t, before.TimestampUS)

	write := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID,
		map[string]any{"version": 0, "entries": map[string]any{"2026-03-02": 1}})
	require.Equal(t, http.StatusOK, write.Code)

	after := decode[contract.Staleness](t, f.do(t, "GET", path, "", nil))
	assert.True(t, after.Changed(before))
	assert.Equal(t, f.member.ID, after.ActorID)
	assert.Positive(t, after.TimestampUS)

	global := decode[contract.Staleness](t, f.do(t, "GET", "/api/staleness", "", nil))
	assert.Equal(t, domain.GlobalScope, global.Scope)
	assert.Equal(t, int64(1), global.Revision)
}

func TestSnapshot(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.item(t, "Snap", testutil.WithAssignee(f.member.ID))
	write := f.do(t, "POST", "/api/items/"+w.ID+"/row", f.member.ID,
		map[string]any{"version": 0, "entries": map[string]any{"2026-03-02": "3.25"}})
	require.Equal(t, http.StatusOK, write.Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, "GET", "/api/snapshot", "", nil).Code)

	rec := f.do(t, "GET", "/api/snapshot?project_id="+f.project.ID, f.viewer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[contract.Snapshot](t, rec)

	require.Len(t, snap.Projects, 1)
	assert.Equal(t, json.Number("3.25"), snap.Projects[0].ScheduledEffort)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, json.Number("3.25"), snap.Items[0].Entries["2026-03-02"])
	assert.Equal(t, 1, snap.Items[0].Version)
	require.Len(t, snap.PersonTotals, 1)
	assert.Equal(t, contract.PersonTotal{PersonID: f.member.ID, Date: "2026-03-02", Effort: "3.25"}, snap.PersonTotals[0])
	assert.Len(t, snap.People, 2)
	assert.Equal(t, int64(1), snap.Staleness.Revision)
}

func TestReorder(t *testing.T) {
	f := newAPIFixture(t, nil)
	a := f.item(t, "A")
	b := f.item(t, "B")

	rec := f.do(t, "POST", "/api/sort-orders", f.viewer.ID, contract.ReorderRequest{Order: []contract.RankEntry{
		{ItemID: b.ID, Rank: 1},
		{ItemID: a.ID, Rank: 2},
		{ItemID: "gone", Rank: 3},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[contract.ReorderResponse](t, rec).Applied)

	snap := decode[contract.Snapshot](t, f.do(t, "GET", "/api/snapshot?project_id="+f.project.ID, f.viewer.ID, nil))
	require.Len(t, snap.Items, 2)
	assert.Equal(t, b.ID, snap.Items[0].ID)
}

func TestErrorResponse_HidesInternalDetail(t *testing.T) {
	status, body := errorResponse(errors.New("pq: connection refused to 10.0.0.3"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, contract.CodeInternal, body.Error)
	assert.NotContains(t, body.Message, "10.0.0.3")
}
