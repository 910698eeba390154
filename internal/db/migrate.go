package db

import (
	"database/sql"
	"fmt"
)

// Migrate runs all schema migrations. Every statement is idempotent so the
// full list is replayed on each start.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// The statements stay within the SQL shared by SQLite and PostgreSQL.
// Entry-level values are NUMERIC(5,2); sums that span several entries or
// items are NUMERIC(7,2).
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS people (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		role       TEXT NOT NULL DEFAULT 'viewer'
		           CHECK(role IN ('viewer','member','manager','admin')),
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS projects (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		start_date       TEXT,
		end_date         TEXT,
		estimated_effort NUMERIC(7,2) NOT NULL DEFAULT 0,
		scheduled_effort NUMERIC(7,2) NOT NULL DEFAULT 0,
		check_value      NUMERIC(7,2) NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS categories (
		id         TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		position   INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS milestones (
		id             TEXT PRIMARY KEY,
		project_id     TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		start_date     TEXT,
		effective_date TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS work_items (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		category_id      TEXT REFERENCES categories(id) ON DELETE SET NULL,
		milestone_id     TEXT REFERENCES milestones(id) ON DELETE SET NULL,
		assignee_id      TEXT REFERENCES people(id),
		subject          TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		estimated_effort NUMERIC(5,2) NOT NULL DEFAULT 0,
		scheduled_effort NUMERIC(7,2) NOT NULL DEFAULT 0,
		check_value      NUMERIC(7,2) NOT NULL DEFAULT 0,
		done_ratio       INTEGER NOT NULL DEFAULT 0,
		version          INTEGER NOT NULL DEFAULT 0,
		color            INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS daily_entries (
		item_id    TEXT NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
		entry_date TEXT NOT NULL,
		effort     NUMERIC(5,2) NOT NULL DEFAULT 0,
		PRIMARY KEY (item_id, entry_date)
	)`,

	`CREATE TABLE IF NOT EXISTS person_daily_totals (
		person_id  TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		total_date TEXT NOT NULL,
		effort     NUMERIC(5,2) NOT NULL DEFAULT 0,
		PRIMARY KEY (person_id, total_date)
	)`,

	`CREATE TABLE IF NOT EXISTS stale_marks (
		scope_key     TEXT PRIMARY KEY,
		updated_at_us BIGINT NOT NULL,
		actor_id      TEXT NOT NULL DEFAULT '',
		revision      BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS sort_orders (
		person_id TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		item_id   TEXT NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
		sort_rank INTEGER NOT NULL,
		PRIMARY KEY (person_id, item_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_work_items_project ON work_items(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_work_items_assignee ON work_items(assignee_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_entries_date ON daily_entries(entry_date)`,
	`CREATE INDEX IF NOT EXISTS idx_categories_project ON categories(project_id, position)`,
	`CREATE INDEX IF NOT EXISTS idx_milestones_project ON milestones(project_id)`,
}
