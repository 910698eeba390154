package repository

import (
	"context"
	"fmt"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
)

// SQLSortOrderRepo implements SortOrderRepo. Ranks are per viewer and carry
// no version.
type SQLSortOrderRepo struct {
	db db.DBTX
}

// NewSQLSortOrderRepo creates a new SQLSortOrderRepo.
func NewSQLSortOrderRepo(db db.DBTX) *SQLSortOrderRepo {
	return &SQLSortOrderRepo{db: db}
}

func (r *SQLSortOrderRepo) Upsert(ctx context.Context, o domain.SortOrder) error {
	query := `INSERT INTO sort_orders (person_id, item_id, sort_rank) VALUES (?, ?, ?)
		ON CONFLICT (person_id, item_id) DO UPDATE SET sort_rank = excluded.sort_rank`
	if _, err := r.db.ExecContext(ctx, query, o.PersonID, o.ItemID, o.Rank); err != nil {
		return fmt.Errorf("upserting sort order: %w", err)
	}
	return nil
}

func (r *SQLSortOrderRepo) ListByPerson(ctx context.Context, personID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT item_id, sort_rank FROM sort_orders WHERE person_id = ?`, personID)
	if err != nil {
		return nil, fmt.Errorf("listing sort orders: %w", err)
	}
	defer rows.Close()

	ranks := make(map[string]int)
	for rows.Next() {
		var itemID string
		var rank int
		if err := rows.Scan(&itemID, &rank); err != nil {
			return nil, fmt.Errorf("scanning sort order: %w", err)
		}
		ranks[itemID] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sort orders: %w", err)
	}
	return ranks, nil
}
