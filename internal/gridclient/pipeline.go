package gridclient

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
)

// RowUpdater sends one row's changes to the server.
type RowUpdater interface {
	UpdateRow(ctx context.Context, itemID string, req contract.RowRequest) (*contract.RowResponse, error)
}

// RowFailure is a row whose changes the server (or the local pre-check)
// refused. The grid keeps the attempted values until the next reload.
type RowFailure struct {
	Row                 int
	ItemID              string
	Code                string
	Message             string
	Errors              map[string][]string
	IgnoredByPermission []string
	Err                 error
}

// Conflict reports whether another writer won the race for this row.
func (f RowFailure) Conflict() bool { return errors.Is(f.Err, domain.ErrConflict) }

// BatchResult summarizes one HandleChanges call.
type BatchResult struct {
	Sent     int
	Applied  int
	Failures []RowFailure
	// Ignored lists fields the server dropped for lack of permission, by item.
	Ignored map[string][]string
}

// Pipeline turns grid edits into one request per row.
type Pipeline struct {
	grid          *Grid
	rows          RowUpdater
	reloadTallies func(ctx context.Context) error
	logger        *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTallyReload runs fn after every batch that reached the server.
func WithTallyReload(fn func(ctx context.Context) error) PipelineOption {
	return func(p *Pipeline) { p.reloadTallies = fn }
}

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPipeline(grid *Grid, rows RowUpdater, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{grid: grid, rows: rows, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach wires the pipeline to the grid's change hook.
func (p *Pipeline) Attach(ctx context.Context) {
	p.grid.OnChange(func(changes []Change, source Source) {
		p.HandleChanges(ctx, changes, source)
	})
}

type pendingRow struct {
	row     int
	itemID  string
	fields  map[string]any
	entries map[string]any
}

// HandleChanges groups changes per row in first-seen order and sends them.
// Rows are sent one after another; a failing row does not stop the batch.
func (p *Pipeline) HandleChanges(ctx context.Context, changes []Change, source Source) BatchResult {
	var result BatchResult
	if len(changes) == 0 || !outgoing(source) {
		return result
	}

	var order []*pendingRow
	byRow := make(map[int]*pendingRow)
	for _, ch := range changes {
		if domain.IsServerField(ch.Field) || sameValue(ch.Old, ch.New) {
			continue
		}
		itemID := p.grid.ItemID(ch.Row)
		if itemID == "" {
			continue
		}
		if msg := precheck(ch.Field, ch.New); msg != "" {
			result.Failures = append(result.Failures, RowFailure{
				Row:    ch.Row,
				ItemID: itemID,
				Code:   contract.CodeValidationFailed,
				Errors: map[string][]string{ch.Field: {msg}},
				Err:    domain.ErrValidation,
			})
			continue
		}
		pending, ok := byRow[ch.Row]
		if !ok {
			pending = &pendingRow{row: ch.Row, itemID: itemID, fields: map[string]any{}, entries: map[string]any{}}
			byRow[ch.Row] = pending
			order = append(order, pending)
		}
		if domain.IsDateKey(ch.Field) {
			pending.entries[ch.Field] = ch.New
		} else {
			pending.fields[ch.Field] = ch.New
		}
	}

	for _, pending := range order {
		result.Sent++
		if failure, ok := p.send(ctx, pending, &result); !ok {
			result.Failures = append(result.Failures, failure)
			continue
		}
		result.Applied++
	}

	if result.Sent > 0 && p.reloadTallies != nil {
		if err := p.reloadTallies(ctx); err != nil {
			p.logger.WarnContext(ctx, "reloading daily tallies failed", "error", err)
		}
	}
	return result
}

func (p *Pipeline) send(ctx context.Context, pending *pendingRow, result *BatchResult) (RowFailure, bool) {
	version := p.grid.Version(pending.row)
	req := contract.RowRequest{Version: &version}
	if len(pending.fields) > 0 {
		req.Fields = pending.fields
	}
	if len(pending.entries) > 0 {
		req.Entries = pending.entries
	}

	resp, err := p.rows.UpdateRow(ctx, pending.itemID, req)
	if err != nil {
		failure := RowFailure{Row: pending.row, ItemID: pending.itemID, Err: err, Message: err.Error()}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			failure.Code = apiErr.Body.Error
			failure.Message = apiErr.Body.Message
			failure.Errors = apiErr.Body.Errors
		}
		p.logger.InfoContext(ctx, "row update refused",
			"item_id", pending.itemID,
			"code", failure.Code,
			"error", err,
		)
		return failure, false
	}

	// The row may have moved while the request was in flight.
	row, ok := p.grid.RowOf(pending.itemID)
	if !ok {
		return RowFailure{}, true
	}
	fields := make([]string, 0, len(resp.Results))
	for field := range resp.Results {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	cells := make([]Cell, 0, len(fields)+1)
	for _, field := range fields {
		r := resp.Results[field]
		if !r.OK || domain.IsDateKey(field) {
			continue
		}
		cells = append(cells, Cell{Row: row, Field: field, Value: r.Value})
	}
	cells = append(cells, Cell{Row: row, Field: domain.FieldVersion, Value: resp.Version})
	p.grid.Apply(cells, SourceServer)

	if len(resp.IgnoredByPermission) > 0 {
		if result.Ignored == nil {
			result.Ignored = make(map[string][]string)
		}
		result.Ignored[pending.itemID] = resp.IgnoredByPermission
	}
	return RowFailure{}, true
}

func outgoing(source Source) bool {
	switch source {
	case SourceLoad, SourceCopy, SourceMerge, SourceServer:
		return false
	}
	return true
}

// precheck rejects edits the server would refuse anyway, before sending.
func precheck(field string, value any) string {
	switch field {
	case domain.FieldSubject:
		s, _ := scalarString(value)
		if strings.TrimSpace(s) == "" {
			return "can't be blank"
		}
		if utf8.RuneCountInString(s) > domain.MaxSubjectLen {
			return "is too long"
		}
	case domain.FieldDescription:
		s, _ := scalarString(value)
		if utf8.RuneCountInString(s) > domain.MaxDescriptionLen {
			return "is too long"
		}
	}
	return ""
}
