package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alexanderramin/workgrid/internal/cli/formatter"
	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/gridclient"
	"github.com/spf13/cobra"
)

// addClientFlags binds the connection flags shared by client commands.
func addClientFlags(cmd *cobra.Command, app *App, verbose *bool) {
	cmd.Flags().StringVar(&app.Config.ServerURL, "server", app.Config.ServerURL, "Grid server base URL")
	cmd.Flags().StringVar(&app.Config.PersonID, "person", app.Config.PersonID, "Acting person id")
	cmd.Flags().BoolVarP(verbose, "verbose", "v", false, "Log every server call to stderr")
}

func (a *App) newClient(verbose bool) *gridclient.Client {
	cfg := gridclient.DefaultClientConfig()
	cfg.BaseURL = a.Config.ServerURL
	cfg.PersonID = a.Config.PersonID
	var observer gridclient.Observer = gridclient.NoopObserver{}
	if verbose {
		observer = gridclient.NewLogObserver(a.Err)
	}
	return gridclient.NewClient(cfg, observer)
}

func newProbeCmd(app *App) *cobra.Command {
	var (
		projectID string
		asJSON    bool
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show when a project, or the whole grid, last changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.newClient(verbose).LastUpdate(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(app.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintln(app.Out, formatter.FormatStaleness(st, time.Now()))
			return nil
		},
	}
	addClientFlags(cmd, app, &verbose)
	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: all projects)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw marker as JSON")
	return cmd
}

// snapshotRecorder keeps the latest snapshot fetched through it so the
// watch loop can render what the poller just loaded.
type snapshotRecorder struct {
	*gridclient.Client

	mu   sync.Mutex
	last *contract.Snapshot
}

func (r *snapshotRecorder) Snapshot(ctx context.Context, projectID string) (*contract.Snapshot, error) {
	snap, err := r.Client.Snapshot(ctx, projectID)
	if err == nil {
		r.mu.Lock()
		r.last = snap
		r.mu.Unlock()
	}
	return snap, err
}

func (r *snapshotRecorder) latest() *contract.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newWatchCmd(app *App) *cobra.Command {
	var (
		projectID string
		once      bool
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the grid and reprint it whenever it changes on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source := &snapshotRecorder{Client: app.newClient(verbose)}
			render := func(contract.Staleness) {
				if snap := source.latest(); snap != nil {
					fmt.Fprintln(app.Out, formatter.FormatGrid(snap))
					fmt.Fprintln(app.Out, formatter.FormatStaleness(snap.Staleness, time.Now()))
				}
			}
			poller := gridclient.NewPoller(source, gridclient.NewGrid(), projectID, app.Config.PollInterval,
				gridclient.WithReloadHook(render),
				gridclient.WithPollerLogger(app.Logger()),
			)
			if once {
				return poller.Reload(ctx)
			}
			err := poller.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addClientFlags(cmd, app, &verbose)
	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: all projects)")
	cmd.Flags().DurationVar(&app.Config.PollInterval, "interval", app.Config.PollInterval, "Staleness poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "Print the grid once and exit")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var (
		projectID string
		itemID    string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "edit FIELD=VALUE...",
		Short: "Change cells of one row the way a paste into the grid would",
		Example: `  workgrid edit --item 3f2a... subject="Design v2" 2026-03-02=4
  workgrid edit --item 3f2a... estimated_effort=12.5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := app.newClient(verbose)
			grid := gridclient.NewGrid()
			poller := gridclient.NewPoller(client, grid, projectID, app.Config.PollInterval,
				gridclient.WithPollerLogger(app.Logger()))
			if err := poller.Reload(ctx); err != nil {
				return err
			}
			row, ok := grid.RowOf(itemID)
			if !ok {
				return fmt.Errorf("item %s is not in the grid", itemID)
			}

			cells, err := parseCells(row, args)
			if err != nil {
				return err
			}
			// Applied as a load so only the explicit send below reaches the server.
			changes := grid.Apply(cells, gridclient.SourceLoad)
			if len(changes) == 0 {
				fmt.Fprintln(app.Out, "nothing to change")
				return nil
			}
			pipeline := gridclient.NewPipeline(grid, client,
				gridclient.WithLogger(app.Logger()),
				gridclient.WithTallyReload(poller.ReloadTallies),
			)
			res := pipeline.HandleChanges(ctx, changes, gridclient.SourcePaste)
			if len(res.Failures) > 0 {
				fmt.Fprintln(app.Out, formatter.FormatFailures(res.Failures))
				return fmt.Errorf("%d row(s) not saved", len(res.Failures))
			}
			fmt.Fprintf(app.Out, "saved  version %d  scheduled %v  check %v\n",
				grid.Version(row), grid.Value(row, "scheduled_effort"), grid.Value(row, "check_value"))
			return nil
		},
	}
	addClientFlags(cmd, app, &verbose)
	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: all projects)")
	cmd.Flags().StringVar(&itemID, "item", "", "Item id of the row to change")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

// parseCells turns FIELD=VALUE arguments into cells of one row. An empty
// value clears the cell.
func parseCells(row int, args []string) ([]gridclient.Cell, error) {
	cells := make([]gridclient.Cell, 0, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected FIELD=VALUE, got %q", arg)
		}
		var v any = value
		if value == "" {
			v = nil
		}
		cells = append(cells, gridclient.Cell{Row: row, Field: field, Value: v})
	}
	return cells, nil
}
