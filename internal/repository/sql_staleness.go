package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/domain"
)

// SQLStalenessRepo implements StalenessRepo over stale_marks.
type SQLStalenessRepo struct {
	db db.DBTX
}

// NewSQLStalenessRepo creates a new SQLStalenessRepo.
func NewSQLStalenessRepo(db db.DBTX) *SQLStalenessRepo {
	return &SQLStalenessRepo{db: db}
}

// Touch upserts the marker for scope. The stored timestamp never moves
// backwards or repeats: when at is not later than the current value the
// marker advances by one microsecond instead.
func (r *SQLStalenessRepo) Touch(ctx context.Context, scope, actorID string, at time.Time) (domain.StalenessRecord, error) {
	query := `INSERT INTO stale_marks (scope_key, updated_at_us, actor_id, revision) VALUES (?, ?, ?, 1)
		ON CONFLICT (scope_key) DO UPDATE SET
			updated_at_us = CASE WHEN excluded.updated_at_us > stale_marks.updated_at_us
				THEN excluded.updated_at_us ELSE stale_marks.updated_at_us + 1 END,
			actor_id = excluded.actor_id,
			revision = stale_marks.revision + 1`
	if _, err := r.db.ExecContext(ctx, query, scope, at.UTC().UnixMicro(), actorID); err != nil {
		return domain.StalenessRecord{}, fmt.Errorf("touching staleness for %q: %w", scope, err)
	}
	return r.LastUpdate(ctx, scope)
}

// LastUpdate returns the marker for scope, or a zero record (Revision 0)
// when nothing has been written under it yet.
func (r *SQLStalenessRepo) LastUpdate(ctx context.Context, scope string) (domain.StalenessRecord, error) {
	rec := domain.StalenessRecord{Scope: scope}
	var us int64
	query := `SELECT updated_at_us, actor_id, revision FROM stale_marks WHERE scope_key = ?`
	err := r.db.QueryRowContext(ctx, query, scope).Scan(&us, &rec.ActorID, &rec.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("reading staleness for %q: %w", scope, err)
	}
	rec.UpdatedAt = time.UnixMicro(us).UTC()
	return rec, nil
}
