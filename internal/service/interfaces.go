package service

import (
	"context"
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/rbac"
	"github.com/alexanderramin/workgrid/internal/rollup"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated person a request acts for.
type Actor struct {
	ID   string
	Role rbac.Role
}

// RowUpdate is one grid row's worth of changes. Entries are keyed by
// YYYY-MM-DD; Fields by item column name.
type RowUpdate struct {
	ItemID  string
	Version *int
	Fields  map[string]any
	Entries map[string]any
}

// FieldResult is the authoritative post-commit value of one column.
type FieldResult struct {
	OK    bool
	Value any
	Note  string
}

type RowResult struct {
	ItemID              string
	Version             int
	Results             map[string]FieldResult
	IgnoredByPermission []string
	Stats               rollup.Stats
}

type ProjectEstimateResult struct {
	ProjectID string
	Estimate  decimal.Decimal
	Scheduled decimal.Decimal
	Check     decimal.Decimal
}

// RowRef names a grid row by id and kind for bulk operations.
type RowRef struct {
	ID   string
	Kind domain.RowKind
}

type DeleteResult struct {
	Deleted []string
	Stats   rollup.Stats
}

type CopyResult struct {
	// Created maps each source id to the id of its copy, in request order.
	Created []CopyPair
}

type CopyPair struct {
	SourceID string
	CopyID   string
}

type RecolorResult struct {
	Versions map[string]int
	Skipped  []string
}

// Rank is one entry of a reorder request.
type Rank struct {
	ItemID string
	Rank   int
}

// ItemRow is a work item with its daily entries keyed by YYYY-MM-DD.
type ItemRow struct {
	Item    *domain.WorkItem
	Entries map[string]decimal.Decimal
}

// Snapshot is the full grid state a polling client reloads.
type Snapshot struct {
	Staleness    domain.StalenessRecord
	Projects     []*domain.Project
	Milestones   []*domain.Milestone
	Items        []ItemRow
	PersonTotals []domain.PersonDailyTotal
	People       []*domain.Person
}

type RowService interface {
	UpdateRow(ctx context.Context, actor Actor, req RowUpdate) (*RowResult, error)
	UpdateProjectEstimate(ctx context.Context, actor Actor, projectID string, raw any) (*ProjectEstimateResult, error)
}

type ItemService interface {
	CreateItems(ctx context.Context, actor Actor, projectID string, count int) ([]string, error)
	CopyItems(ctx context.Context, actor Actor, itemIDs []string) (*CopyResult, error)
	DeleteItems(ctx context.Context, actor Actor, rows []RowRef) (*DeleteResult, error)
	Recolor(ctx context.Context, actor Actor, itemIDs []string, versions []int, color domain.Color) (*RecolorResult, error)
}

type LayoutService interface {
	Reorder(ctx context.Context, actor Actor, ranks []Rank) (int, error)
	UpdateProjectDates(ctx context.Context, actor Actor, projectID string, start, end *time.Time) error
	UpdateMilestoneDates(ctx context.Context, actor Actor, milestoneID string, start, effective *time.Time) error
}

type SyncService interface {
	LastUpdate(ctx context.Context, projectID string) (domain.StalenessRecord, error)
	Snapshot(ctx context.Context, actor Actor, projectID string) (*Snapshot, error)
}

type ActorResolver interface {
	ResolveActor(ctx context.Context, personID string) (Actor, error)
}
