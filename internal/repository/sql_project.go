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

// SQLProjectRepo implements ProjectRepo.
type SQLProjectRepo struct {
	db db.DBTX
}

// NewSQLProjectRepo creates a new SQLProjectRepo.
func NewSQLProjectRepo(db db.DBTX) *SQLProjectRepo {
	return &SQLProjectRepo{db: db}
}

const projectColumns = `id, name, start_date, end_date, estimated_effort, scheduled_effort, check_value, created_at, updated_at`

func (r *SQLProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	query := `INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		nullableTimeToString(p.StartDate, dateLayout),
		nullableTimeToString(p.EndDate, dateLayout),
		p.Estimate,
		p.Scheduled,
		p.Check,
		p.CreatedAt.UTC().Format(timestampLayout),
		p.UpdatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func (r *SQLProjectRepo) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound("project", err)
	}
	return p, nil
}

func (r *SQLProjectRepo) List(ctx context.Context) ([]*domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return projects, nil
}

func (r *SQLProjectRepo) UpdateEstimate(ctx context.Context, id string, estimate, check decimal.Decimal) error {
	query := `UPDATE projects SET estimated_effort = ?, check_value = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, "updating project estimate", query, estimate, check, nowUTC(), id)
}

// UpdateTotals writes derived columns only. updated_at is left alone since
// a recompute is not an edit.
func (r *SQLProjectRepo) UpdateTotals(ctx context.Context, id string, scheduled, check decimal.Decimal) error {
	query := `UPDATE projects SET scheduled_effort = ?, check_value = ? WHERE id = ?`
	return r.exec(ctx, "updating project totals", query, scheduled, check, id)
}

func (r *SQLProjectRepo) UpdateDates(ctx context.Context, id string, start, end *time.Time) error {
	query := `UPDATE projects SET start_date = ?, end_date = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, "updating project dates", query,
		nullableTimeToString(start, dateLayout), nullableTimeToString(end, dateLayout), nowUTC(), id)
}

func (r *SQLProjectRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}
	return nil
}

func scanProject(row scanner) (*domain.Project, error) {
	var p domain.Project
	var startDate, endDate sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &startDate, &endDate,
		&p.Estimate, &p.Scheduled, &p.Check, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.StartDate = parseNullableTime(startDate, dateLayout)
	p.EndDate = parseNullableTime(endDate, dateLayout)
	p.CreatedAt, p.UpdatedAt, err = parseTimestamps(createdAt, updatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SQLCategoryRepo implements CategoryRepo.
type SQLCategoryRepo struct {
	db db.DBTX
}

// NewSQLCategoryRepo creates a new SQLCategoryRepo.
func NewSQLCategoryRepo(db db.DBTX) *SQLCategoryRepo {
	return &SQLCategoryRepo{db: db}
}

func (r *SQLCategoryRepo) Create(ctx context.Context, c *domain.Category) error {
	query := `INSERT INTO categories (id, project_id, name, position) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.ProjectID, c.Name, c.Position); err != nil {
		return fmt.Errorf("inserting category: %w", err)
	}
	return nil
}

func (r *SQLCategoryRepo) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, project_id, name, position FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.ProjectID, &c.Name, &c.Position)
	if err != nil {
		return nil, notFound("category", err)
	}
	return &c, nil
}

// FirstByProject returns the project's default category.
func (r *SQLCategoryRepo) FirstByProject(ctx context.Context, projectID string) (*domain.Category, error) {
	var c domain.Category
	query := `SELECT id, project_id, name, position FROM categories
		WHERE project_id = ? ORDER BY position, id LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(&c.ID, &c.ProjectID, &c.Name, &c.Position)
	if err != nil {
		return nil, notFound("category", err)
	}
	return &c, nil
}

// SQLMilestoneRepo implements MilestoneRepo.
type SQLMilestoneRepo struct {
	db db.DBTX
}

// NewSQLMilestoneRepo creates a new SQLMilestoneRepo.
func NewSQLMilestoneRepo(db db.DBTX) *SQLMilestoneRepo {
	return &SQLMilestoneRepo{db: db}
}

func (r *SQLMilestoneRepo) Create(ctx context.Context, m *domain.Milestone) error {
	query := `INSERT INTO milestones (id, project_id, name, start_date, effective_date) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.ProjectID, m.Name,
		nullableTimeToString(m.StartDate, dateLayout), nullableTimeToString(m.EffectiveDate, dateLayout))
	if err != nil {
		return fmt.Errorf("inserting milestone: %w", err)
	}
	return nil
}

func (r *SQLMilestoneRepo) GetByID(ctx context.Context, id string) (*domain.Milestone, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, start_date, effective_date FROM milestones WHERE id = ?`, id)
	m, err := scanMilestone(row)
	if err != nil {
		return nil, notFound("milestone", err)
	}
	return m, nil
}

// ListByProject lists a project's milestones, or all of them for "".
func (r *SQLMilestoneRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.Milestone, error) {
	query, args := scopedQuery(`SELECT id, project_id, name, start_date, effective_date FROM milestones`,
		"project_id", projectID, `ORDER BY effective_date, id`)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing milestones: %w", err)
	}
	defer rows.Close()

	var out []*domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning milestone row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating milestones: %w", err)
	}
	return out, nil
}

func (r *SQLMilestoneRepo) UpdateDates(ctx context.Context, id string, start, effective *time.Time) error {
	query := `UPDATE milestones SET start_date = ?, effective_date = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		nullableTimeToString(start, dateLayout), nullableTimeToString(effective, dateLayout), id)
	if err != nil {
		return fmt.Errorf("updating milestone dates: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("milestone: %w", ErrNotFound)
	}
	return nil
}

func scanMilestone(row scanner) (*domain.Milestone, error) {
	var m domain.Milestone
	var start, effective sql.NullString
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &start, &effective); err != nil {
		return nil, err
	}
	m.StartDate = parseNullableTime(start, dateLayout)
	m.EffectiveDate = parseNullableTime(effective, dateLayout)
	return &m, nil
}
