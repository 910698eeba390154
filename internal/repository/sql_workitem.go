package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/shopspring/decimal"
)

// SQLWorkItemRepo implements WorkItemRepo.
type SQLWorkItemRepo struct {
	db db.DBTX
}

// NewSQLWorkItemRepo creates a new SQLWorkItemRepo.
func NewSQLWorkItemRepo(db db.DBTX) *SQLWorkItemRepo {
	return &SQLWorkItemRepo{db: db}
}

const workItemColumns = `id, project_id, category_id, milestone_id, assignee_id, subject, description,
	estimated_effort, scheduled_effort, check_value, done_ratio, version, color, created_at, updated_at`

func (r *SQLWorkItemRepo) Create(ctx context.Context, w *domain.WorkItem) error {
	query := `INSERT INTO work_items (` + workItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.ProjectID,
		nullableString(w.CategoryID),
		nullableString(w.MilestoneID),
		nullableString(w.AssigneeID),
		w.Subject,
		w.Description,
		w.Estimate,
		w.Scheduled,
		w.Check,
		w.DoneRatio,
		w.Version,
		int(w.Color),
		w.CreatedAt.UTC().Format(timestampLayout),
		w.UpdatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting work item: %w", err)
	}
	return nil
}

func (r *SQLWorkItemRepo) GetByID(ctx context.Context, id string) (*domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	w, err := scanWorkItem(row)
	if err != nil {
		return nil, notFound("work item", err)
	}
	return w, nil
}

// ListByProject lists items in creation order; "" lists every project.
func (r *SQLWorkItemRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.WorkItem, error) {
	query, args := scopedQuery(`SELECT `+workItemColumns+` FROM work_items`,
		"project_id", projectID, `ORDER BY created_at, id`)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing work items: %w", err)
	}
	defer rows.Close()

	var items []*domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning work item row: %w", err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating work items: %w", err)
	}
	return items, nil
}

// UpdateGuarded writes the editable columns of w only if the stored version
// still equals expectedVersion, advancing it by one. It reports false when
// another writer got there first. On success w.Version is updated.
func (r *SQLWorkItemRepo) UpdateGuarded(ctx context.Context, w *domain.WorkItem, expectedVersion int) (bool, error) {
	now := time.Now().UTC()
	query := `UPDATE work_items SET
		category_id = ?, milestone_id = ?, assignee_id = ?, subject = ?, description = ?,
		estimated_effort = ?, done_ratio = ?, color = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query,
		nullableString(w.CategoryID),
		nullableString(w.MilestoneID),
		nullableString(w.AssigneeID),
		w.Subject,
		w.Description,
		w.Estimate,
		w.DoneRatio,
		int(w.Color),
		now.Format(timestampLayout),
		w.ID,
		expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("updating work item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	w.Version = expectedVersion + 1
	w.UpdatedAt = now
	return true, nil
}

// UpdateTotals writes the derived columns without touching version or
// updated_at.
func (r *SQLWorkItemRepo) UpdateTotals(ctx context.Context, id string, scheduled, check decimal.Decimal) error {
	query := `UPDATE work_items SET scheduled_effort = ?, check_value = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, scheduled, check, id); err != nil {
		return fmt.Errorf("updating work item totals: %w", err)
	}
	return nil
}

func (r *SQLWorkItemRepo) ScheduledByProject(ctx context.Context, projectID string) ([]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT scheduled_effort FROM work_items WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing scheduled effort: %w", err)
	}
	defer rows.Close()

	var out []decimal.Decimal
	for rows.Next() {
		var d decimal.Decimal
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning scheduled effort: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduled effort: %w", err)
	}
	return out, nil
}

// ExistingIDs returns the subset of ids that name stored items.
func (r *SQLWorkItemRepo) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id FROM work_items WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("checking work item ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning work item id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating work item ids: %w", err)
	}
	return found, nil
}

func (r *SQLWorkItemRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting work item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("work item: %w", ErrNotFound)
	}
	return nil
}

func scanWorkItem(row scanner) (*domain.WorkItem, error) {
	var w domain.WorkItem
	var categoryID, milestoneID, assigneeID sql.NullString
	var color int
	var createdAt, updatedAt string

	err := row.Scan(
		&w.ID, &w.ProjectID, &categoryID, &milestoneID, &assigneeID,
		&w.Subject, &w.Description,
		&w.Estimate, &w.Scheduled, &w.Check,
		&w.DoneRatio, &w.Version, &color,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.CategoryID = stringPtr(categoryID)
	w.MilestoneID = stringPtr(milestoneID)
	w.AssigneeID = stringPtr(assigneeID)
	w.Color = domain.Color(color)
	w.CreatedAt, w.UpdatedAt, err = parseTimestamps(createdAt, updatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
