package gridclient

import (
	"encoding/json"
	"reflect"
	"strconv"
	"sync"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
)

// Source tags where a batch of cell changes came from.
type Source string

const (
	SourceEdit  Source = "edit"
	SourcePaste Source = "paste"
	SourceUndo  Source = "undo"
	// Changes from these sources never produce outgoing requests.
	SourceLoad   Source = "load"
	SourceCopy   Source = "copy"
	SourceMerge  Source = "merge"
	SourceServer Source = "server"
)

// Change is one cell that moved from Old to New.
type Change struct {
	Row   int
	Field string
	Old   any
	New   any
}

// Cell addresses one value to write.
type Cell struct {
	Row   int
	Field string
	Value any
}

// Row is one item row of the grid. Values holds every column, including
// the server-owned version, scheduled_effort and check_value, plus one
// entry per YYYY-MM-DD column.
type Row struct {
	ItemID string
	Values map[string]any
}

// ChangeHook observes every batch applied to the grid.
type ChangeHook func(changes []Change, source Source)

// Grid is the client's in-memory copy of the item rows and daily tallies.
// It is safe for concurrent use; hooks run after the lock is released.
type Grid struct {
	mu        sync.RWMutex
	rows      []*Row
	totals    []contract.PersonTotal
	staleness contract.Staleness
	hooks     []ChangeHook
}

func NewGrid() *Grid {
	return &Grid{}
}

// OnChange registers a hook for applied changes.
func (g *Grid) OnChange(hook ChangeHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, hook)
}

// Load replaces the grid contents with snap.
func (g *Grid) Load(snap *contract.Snapshot) {
	rows := make([]*Row, 0, len(snap.Items))
	for _, it := range snap.Items {
		rows = append(rows, rowFromItem(it))
	}
	g.mu.Lock()
	g.rows = rows
	g.totals = append([]contract.PersonTotal(nil), snap.PersonTotals...)
	g.staleness = snap.Staleness
	hooks := append([]ChangeHook(nil), g.hooks...)
	g.mu.Unlock()

	for _, hook := range hooks {
		hook(nil, SourceLoad)
	}
}

// SetTotals replaces the per-person daily tallies.
func (g *Grid) SetTotals(totals []contract.PersonTotal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.totals = append([]contract.PersonTotal(nil), totals...)
}

// Apply writes cells and reports the ones that actually changed to the
// hooks under source. Out-of-range rows are skipped.
func (g *Grid) Apply(cells []Cell, source Source) []Change {
	g.mu.Lock()
	var changes []Change
	for _, c := range cells {
		if c.Row < 0 || c.Row >= len(g.rows) {
			continue
		}
		row := g.rows[c.Row]
		old := row.Values[c.Field]
		if sameValue(old, c.Value) {
			continue
		}
		row.Values[c.Field] = c.Value
		changes = append(changes, Change{Row: c.Row, Field: c.Field, Old: old, New: c.Value})
	}
	hooks := append([]ChangeHook(nil), g.hooks...)
	g.mu.Unlock()

	if len(changes) > 0 {
		for _, hook := range hooks {
			hook(changes, source)
		}
	}
	return changes
}

// Edit is a single user edit.
func (g *Grid) Edit(row int, field string, value any) []Change {
	return g.Apply([]Cell{{Row: row, Field: field, Value: value}}, SourceEdit)
}

// ItemID returns the item behind a row, or "" for rows without one.
func (g *Grid) ItemID(row int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if row < 0 || row >= len(g.rows) {
		return ""
	}
	return g.rows[row].ItemID
}

// Version returns the row's locally known lock version.
func (g *Grid) Version(row int) int {
	return intOf(g.Value(row, domain.FieldVersion))
}

// Value returns one cell.
func (g *Grid) Value(row int, field string) any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if row < 0 || row >= len(g.rows) {
		return nil
	}
	return g.rows[row].Values[field]
}

// RowOf finds the row index for itemID.
func (g *Grid) RowOf(itemID string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, r := range g.rows {
		if r.ItemID == itemID {
			return i, true
		}
	}
	return -1, false
}

func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rows)
}

func (g *Grid) Totals() []contract.PersonTotal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]contract.PersonTotal(nil), g.totals...)
}

// Staleness is the marker of the last loaded snapshot.
func (g *Grid) Staleness() contract.Staleness {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.staleness
}

func rowFromItem(it contract.Item) *Row {
	values := map[string]any{
		domain.FieldSubject:     it.Subject,
		domain.FieldDescription: it.Description,
		domain.FieldEstimate:    it.EstimatedEffort,
		domain.FieldScheduled:   it.ScheduledEffort,
		domain.FieldCheck:       it.CheckValue,
		domain.FieldDoneRatio:   it.DoneRatio,
		domain.FieldColor:       it.Color,
		domain.FieldVersion:     it.Version,
		domain.FieldAssignee:    optional(it.AssigneeID),
		domain.FieldCategory:    optional(it.CategoryID),
		domain.FieldMilestone:   optional(it.MilestoneID),
	}
	for date, effort := range it.Entries {
		values[date] = effort
	}
	return &Row{ItemID: it.ID, Values: values}
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// sameValue compares cells the way a user sees them, so 8 and "8" and
// json.Number("8") are one value.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	as, aok := scalarString(a)
	bs, bok := scalarString(b)
	return aok && bok && as == bs
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}

func intOf(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		n, _ := x.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	}
	return 0
}
