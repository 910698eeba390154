package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
)

// SQLPersonTotalRepo implements PersonTotalRepo over person_daily_totals.
type SQLPersonTotalRepo struct {
	db db.DBTX
}

// NewSQLPersonTotalRepo creates a new SQLPersonTotalRepo.
func NewSQLPersonTotalRepo(db db.DBTX) *SQLPersonTotalRepo {
	return &SQLPersonTotalRepo{db: db}
}

func (r *SQLPersonTotalRepo) Upsert(ctx context.Context, t domain.PersonDailyTotal) error {
	query := `INSERT INTO person_daily_totals (person_id, total_date, effort) VALUES (?, ?, ?)
		ON CONFLICT (person_id, total_date) DO UPDATE SET effort = excluded.effort`
	if _, err := r.db.ExecContext(ctx, query, t.PersonID, t.Date.Format(dateLayout), t.Effort); err != nil {
		return fmt.Errorf("upserting person daily total: %w", err)
	}
	return nil
}

func (r *SQLPersonTotalRepo) Get(ctx context.Context, personID string, date time.Time) (domain.PersonDailyTotal, error) {
	t := domain.PersonDailyTotal{PersonID: personID, Date: date}
	query := `SELECT effort FROM person_daily_totals WHERE person_id = ? AND total_date = ?`
	if err := r.db.QueryRowContext(ctx, query, personID, date.Format(dateLayout)).Scan(&t.Effort); err != nil {
		return t, notFound("person daily total", err)
	}
	return t, nil
}

func (r *SQLPersonTotalRepo) List(ctx context.Context) ([]domain.PersonDailyTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT person_id, total_date, effort FROM person_daily_totals ORDER BY person_id, total_date`)
	if err != nil {
		return nil, fmt.Errorf("listing person daily totals: %w", err)
	}
	defer rows.Close()

	var out []domain.PersonDailyTotal
	for rows.Next() {
		var t domain.PersonDailyTotal
		var date string
		if err := rows.Scan(&t.PersonID, &date, &t.Effort); err != nil {
			return nil, fmt.Errorf("scanning person daily total: %w", err)
		}
		if t.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parsing total_date: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating person daily totals: %w", err)
	}
	return out, nil
}
