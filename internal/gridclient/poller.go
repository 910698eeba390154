package gridclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexanderramin/workgrid/internal/contract"
)

// SnapshotSource is the server side the poller talks to.
type SnapshotSource interface {
	LastUpdate(ctx context.Context, projectID string) (contract.Staleness, error)
	Snapshot(ctx context.Context, projectID string) (*contract.Snapshot, error)
}

// Poller reloads the grid whenever the staleness marker moves.
type Poller struct {
	source    SnapshotSource
	grid      *Grid
	projectID string
	interval  time.Duration
	logger    *slog.Logger
	onReload  func(contract.Staleness)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithReloadHook is called after every reload with the new marker.
func WithReloadHook(fn func(contract.Staleness)) PollerOption {
	return func(p *Poller) { p.onReload = fn }
}

func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPoller(source SnapshotSource, grid *Grid, projectID string, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		source:    source,
		grid:      grid,
		projectID: projectID,
		interval:  interval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loads the grid once and then polls until ctx is done. Probe and
// reload failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Reload(ctx); err != nil {
		p.logger.WarnContext(ctx, "initial grid load failed", "error", err)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				p.logger.WarnContext(ctx, "staleness poll failed", "error", err)
			}
		}
	}
}

// Poll probes once and reloads when the marker differs from the one the
// grid was loaded at.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	current, err := p.source.LastUpdate(ctx, p.projectID)
	if err != nil {
		return false, err
	}
	if !current.Changed(p.grid.Staleness()) {
		return false, nil
	}
	if err := p.Reload(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Reload discards the grid and fetches the full snapshot.
func (p *Poller) Reload(ctx context.Context) error {
	snap, err := p.source.Snapshot(ctx, p.projectID)
	if err != nil {
		return err
	}
	p.grid.Load(snap)
	p.logger.DebugContext(ctx, "grid reloaded",
		"project_id", p.projectID,
		"revision", snap.Staleness.Revision,
		"items", len(snap.Items),
	)
	if p.onReload != nil {
		p.onReload(snap.Staleness)
	}
	return nil
}

// ReloadTallies refreshes only the daily tallies. It is the pipeline's
// after-batch callback.
func (p *Poller) ReloadTallies(ctx context.Context) error {
	snap, err := p.source.Snapshot(ctx, p.projectID)
	if err != nil {
		return err
	}
	p.grid.SetTotals(snap.PersonTotals)
	return nil
}
