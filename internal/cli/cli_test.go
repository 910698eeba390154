package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexanderramin/workgrid/internal/config"
	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/httpapi"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/service"
	"github.com/alexanderramin/workgrid/internal/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() (*App, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &App{
		Config: config.Config{
			Addr:            "127.0.0.1:0",
			ShutdownTimeout: time.Second,
			DatabaseURL:     ":memory:",
			StalenessTTL:    time.Second,
			LogFormat:       config.LogText,
			LogLevel:        slog.LevelWarn,
			PollInterval:    time.Second,
		},
		Out: &out,
		Err: &errOut,
	}, &out, &errOut
}

// runCmd executes the root command with args.
func runCmd(t *testing.T, app *App, args ...string) error {
	t.Helper()
	cmd := NewRootCmd(app)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

type gridServer struct {
	url    string
	repos  *repository.Repos
	person *domain.Person
	item   *domain.WorkItem
}

func newGridServer(t *testing.T) *gridServer {
	t.Helper()
	database := testutil.NewTestDB(t)
	uow := testutil.NewTestUoW(database)
	repos := repository.New(database)
	ctx := context.Background()

	project := testutil.NewTestProject("Apollo")
	mia := testutil.NewTestPerson("Mia")
	require.NoError(t, repos.Projects.Create(ctx, project))
	require.NoError(t, repos.People.Create(ctx, mia))
	item := testutil.NewTestWorkItem(project.ID, "Design", testutil.WithEstimate("5"), testutil.WithAssignee(mia.ID))
	require.NoError(t, repos.WorkItems.Create(ctx, item))

	srv := httptest.NewServer(httpapi.NewHandler(httpapi.Services{
		Rows:   service.NewRowService(uow),
		Items:  service.NewItemService(uow),
		Layout: service.NewLayoutService(uow),
		Sync:   service.NewSyncService(database),
		Actors: service.NewActorResolver(database),
	}, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return &gridServer{url: srv.URL, repos: repos, person: mia, item: item}
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	app, _, _ := testApp()
	root := NewRootCmd(app)
	for _, name := range []string{"serve", "probe", "watch", "edit"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRootCmd_RejectsBadLogFormat(t *testing.T) {
	app, _, _ := testApp()
	err := runCmd(t, app, "--log-format", "xml", "probe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestLogger_FormatSelection(t *testing.T) {
	app, _, errOut := testApp()

	app.Config.LogFormat = config.LogJSON
	app.Logger().Warn("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(errOut.Bytes())))

	errOut.Reset()
	app.Config.LogFormat = config.LogAuto
	app.IsTerminal = func() bool { return true }
	app.Logger().Warn("hello")
	assert.Contains(t, errOut.String(), "msg=hello")

	errOut.Reset()
	app.IsTerminal = func() bool { return false }
	app.Logger().Warn("hello")
	assert.Contains(t, errOut.String(), `"msg":"hello"`)
}

func TestLogLevelFlag(t *testing.T) {
	app, _, _ := testApp()
	root := NewRootCmd(app)
	require.NoError(t, root.PersistentFlags().Set("log-level", "debug"))
	assert.Equal(t, slog.LevelDebug, app.Config.LogLevel)
	assert.Error(t, root.PersistentFlags().Set("log-level", "loud"))
}

func TestProbeCmd(t *testing.T) {
	gs := newGridServer(t)

	app, out, _ := testApp()
	require.NoError(t, runCmd(t, app, "probe", "--server", gs.url))
	assert.Contains(t, out.String(), "never updated")

	out.Reset()
	require.NoError(t, runCmd(t, app, "probe", "--server", gs.url, "--project", gs.item.ProjectID, "--json"))
	var st contract.Staleness
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, gs.item.ProjectID, st.Scope)
	assert.Zero(t, st.Revision)
}

func TestWatchCmd_Once(t *testing.T) {
	gs := newGridServer(t)
	app, out, _ := testApp()

	require.NoError(t, runCmd(t, app, "watch", "--once", "--server", gs.url, "--person", gs.person.ID))
	assert.Contains(t, out.String(), "Design")
	assert.Contains(t, out.String(), "Apollo")
}

func TestEditCmd(t *testing.T) {
	gs := newGridServer(t)
	app, out, _ := testApp()

	require.NoError(t, runCmd(t, app, "edit", "--server", gs.url, "--person", gs.person.ID,
		"--item", gs.item.ID, "2026-03-02=2", "2026-03-03=1.5"))
	assert.Contains(t, out.String(), "saved  version 1  scheduled 3.50  check -1.50")

	stored, err := gs.repos.WorkItems.GetByID(context.Background(), gs.item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
}

func TestEditCmd_ReportsRefusedRow(t *testing.T) {
	gs := newGridServer(t)
	app, out, _ := testApp()

	err := runCmd(t, app, "edit", "--server", gs.url, "--person", gs.person.ID,
		"--item", gs.item.ID, "subject=")
	require.Error(t, err)
	assert.Contains(t, out.String(), "subject")
}

func TestEditCmd_BadArgument(t *testing.T) {
	gs := newGridServer(t)
	app, _, _ := testApp()

	err := runCmd(t, app, "edit", "--server", gs.url, "--person", gs.person.ID, "--item", gs.item.ID, "subject")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELD=VALUE")
}

func TestRunServe(t *testing.T) {
	mr := miniredis.RunT(t)

	app, _, _ := testApp()
	app.Config.RedisURL = "redis://" + mr.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, app, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/api/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/api/staleness")
	require.NoError(t, err)
	var st contract.Staleness
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, domain.GlobalScope, st.Scope)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
