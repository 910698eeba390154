package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/shopspring/decimal"
)

// SQLEntryRepo implements EntryRepo over daily_entries.
type SQLEntryRepo struct {
	db db.DBTX
}

// NewSQLEntryRepo creates a new SQLEntryRepo.
func NewSQLEntryRepo(db db.DBTX) *SQLEntryRepo {
	return &SQLEntryRepo{db: db}
}

// Upsert stores e, replacing any previous value for the same item and day.
// The effort is expected to be normalized already.
func (r *SQLEntryRepo) Upsert(ctx context.Context, e domain.DailyEntry) error {
	query := `INSERT INTO daily_entries (item_id, entry_date, effort) VALUES (?, ?, ?)
		ON CONFLICT (item_id, entry_date) DO UPDATE SET effort = excluded.effort`
	if _, err := r.db.ExecContext(ctx, query, e.ItemID, e.Date.Format(dateLayout), e.Effort); err != nil {
		return fmt.Errorf("upserting daily entry: %w", err)
	}
	return nil
}

func (r *SQLEntryRepo) ListByItem(ctx context.Context, itemID string) ([]domain.DailyEntry, error) {
	query := `SELECT item_id, entry_date, effort FROM daily_entries WHERE item_id = ? ORDER BY entry_date`
	return r.list(ctx, query, itemID)
}

// ListByProject returns entries of every item in the project, or of every
// item when projectID is "".
func (r *SQLEntryRepo) ListByProject(ctx context.Context, projectID string) ([]domain.DailyEntry, error) {
	query, args := scopedQuery(`SELECT e.item_id, e.entry_date, e.effort
		FROM daily_entries e JOIN work_items w ON w.id = e.item_id`,
		"w.project_id", projectID, `ORDER BY e.item_id, e.entry_date`)
	return r.list(ctx, query, args...)
}

// AssignedEfforts returns the effort of every entry on date whose item is
// currently assigned to personID.
func (r *SQLEntryRepo) AssignedEfforts(ctx context.Context, personID string, date time.Time) ([]decimal.Decimal, error) {
	query := `SELECT e.effort FROM daily_entries e
		JOIN work_items w ON w.id = e.item_id
		WHERE w.assignee_id = ? AND e.entry_date = ?`
	rows, err := r.db.QueryContext(ctx, query, personID, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("listing assigned efforts: %w", err)
	}
	defer rows.Close()

	var out []decimal.Decimal
	for rows.Next() {
		var d decimal.Decimal
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning assigned effort: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assigned efforts: %w", err)
	}
	return out, nil
}

func (r *SQLEntryRepo) list(ctx context.Context, query string, args ...any) ([]domain.DailyEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing daily entries: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyEntry
	for rows.Next() {
		var e domain.DailyEntry
		var date string
		if err := rows.Scan(&e.ItemID, &date, &e.Effort); err != nil {
			return nil, fmt.Errorf("scanning daily entry: %w", err)
		}
		if e.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parsing entry_date: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily entries: %w", err)
	}
	return out, nil
}
