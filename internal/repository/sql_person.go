package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
)

// SQLPersonRepo implements PersonRepo.
type SQLPersonRepo struct {
	db db.DBTX
}

// NewSQLPersonRepo creates a new SQLPersonRepo.
func NewSQLPersonRepo(db db.DBTX) *SQLPersonRepo {
	return &SQLPersonRepo{db: db}
}

func (r *SQLPersonRepo) Create(ctx context.Context, p *domain.Person) error {
	query := `INSERT INTO people (id, name, role, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Role, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("inserting person: %w", err)
	}
	return nil
}

func (r *SQLPersonRepo) GetByID(ctx context.Context, id string) (*domain.Person, error) {
	var p domain.Person
	err := r.db.QueryRowContext(ctx, `SELECT id, name, role FROM people WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Role)
	if err != nil {
		return nil, notFound("person", err)
	}
	return &p, nil
}

func (r *SQLPersonRepo) List(ctx context.Context) ([]*domain.Person, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, role FROM people ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	defer rows.Close()

	var people []*domain.Person
	for rows.Next() {
		var p domain.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Role); err != nil {
			return nil, fmt.Errorf("scanning person row: %w", err)
		}
		people = append(people, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating people: %w", err)
	}
	return people, nil
}
