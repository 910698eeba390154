// Package contract holds the JSON shapes exchanged between the grid server
// and its clients. Efforts travel as fixed two-decimal strings wrapped in
// json.Number so no float rounding happens on either side.
package contract

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PersonHeader carries the acting person's id, set by the authenticating
// proxy in front of the server.
const PersonHeader = "X-Workgrid-Person"

// Effort renders d as a two-decimal JSON number.
func Effort(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// ParseEffort reads a number produced by Effort.
func ParseEffort(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

// RowRequest is a single item row update. The legacy shape carries
// LockVersion and Attributes, with date cells mixed into the attributes.
type RowRequest struct {
	Version     *int           `json:"version,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Entries     map[string]any `json:"entries,omitempty"`
	LockVersion *int           `json:"lock_version,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// EffectiveVersion prefers version over the legacy lock_version.
func (r RowRequest) EffectiveVersion() *int {
	if r.Version != nil {
		return r.Version
	}
	return r.LockVersion
}

// MergedFields folds legacy attributes into fields. Explicit fields win.
func (r RowRequest) MergedFields() map[string]any {
	out := make(map[string]any, len(r.Fields)+len(r.Attributes))
	for k, v := range r.Attributes {
		out[k] = v
	}
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}

type FieldResult struct {
	OK    bool   `json:"ok"`
	Value any    `json:"value"`
	Note  string `json:"note,omitempty"`
}

type RowResponse struct {
	OK                  bool                   `json:"ok"`
	ID                  string                 `json:"id"`
	Version             int                    `json:"version"`
	Results             map[string]FieldResult `json:"results"`
	IgnoredByPermission []string               `json:"ignored_by_permission"`
}

type ProjectEstimateRequest struct {
	EstimatedEffort any `json:"estimated_effort"`
}

type ProjectEstimateResponse struct {
	OK              bool        `json:"ok"`
	ID              string      `json:"id"`
	EstimatedEffort json.Number `json:"estimated_effort"`
	ScheduledEffort json.Number `json:"scheduled_effort"`
	CheckValue      json.Number `json:"check_value"`
}

type RowRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

type DeleteRequest struct {
	Rows []RowRef `json:"rows"`
}

type DeleteResponse struct {
	OK      bool     `json:"ok"`
	Deleted []string `json:"deleted"`
}

type CreateItemsRequest struct {
	Count int `json:"count"`
}

type CreateItemsResponse struct {
	OK  bool     `json:"ok"`
	IDs []string `json:"ids"`
}

type CopyRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type CopiedItem struct {
	SourceID string `json:"source_id"`
	ID       string `json:"id"`
}

type CopyResponse struct {
	OK    bool         `json:"ok"`
	Items []CopiedItem `json:"items"`
}

type RecolorRequest struct {
	ItemIDs  []string `json:"item_ids"`
	Versions []int    `json:"versions"`
	Color    int      `json:"color"`
}

type RecolorResponse struct {
	OK       bool           `json:"ok"`
	Versions map[string]int `json:"versions"`
	Skipped  []string       `json:"skipped"`
}

type RankEntry struct {
	ItemID string `json:"item_id"`
	Rank   int    `json:"rank"`
}

type ReorderRequest struct {
	Order []RankEntry `json:"order"`
}

type ReorderResponse struct {
	OK      bool `json:"ok"`
	Applied int  `json:"applied"`
}

// DatesRequest edits a project (start/end) or milestone (start/effective)
// span. Dates are YYYY-MM-DD; null or "" clears.
type DatesRequest struct {
	StartDate     *string `json:"start_date"`
	EndDate       *string `json:"end_date,omitempty"`
	EffectiveDate *string `json:"effective_date,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// Staleness is the poll probe answer.
type Staleness struct {
	Scope       string    `json:"scope"`
	Timestamp   time.Time `json:"timestamp"`
	TimestampUS int64     `json:"timestamp_us"`
	ActorID     string    `json:"actor_id"`
	Revision    int64     `json:"revision"`
}

// Changed reports whether s moved past prev.
func (s Staleness) Changed(prev Staleness) bool {
	return s.Revision != prev.Revision || s.TimestampUS != prev.TimestampUS
}

type Project struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	StartDate       *string     `json:"start_date"`
	EndDate         *string     `json:"end_date"`
	EstimatedEffort json.Number `json:"estimated_effort"`
	ScheduledEffort json.Number `json:"scheduled_effort"`
	CheckValue      json.Number `json:"check_value"`
}

type Milestone struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	Name          string  `json:"name"`
	StartDate     *string `json:"start_date"`
	EffectiveDate *string `json:"effective_date"`
}

type Item struct {
	ID              string                 `json:"id"`
	ProjectID       string                 `json:"project_id"`
	CategoryID      *string                `json:"category_id"`
	MilestoneID     *string                `json:"milestone_id"`
	AssigneeID      *string                `json:"assignee_id"`
	Subject         string                 `json:"subject"`
	Description     string                 `json:"description"`
	EstimatedEffort json.Number            `json:"estimated_effort"`
	ScheduledEffort json.Number            `json:"scheduled_effort"`
	CheckValue      json.Number            `json:"check_value"`
	DoneRatio       int                    `json:"done_ratio"`
	Version         int                    `json:"version"`
	Color           int                    `json:"color"`
	Entries         map[string]json.Number `json:"entries"`
}

type PersonTotal struct {
	PersonID string      `json:"person_id"`
	Date     string      `json:"date"`
	Effort   json.Number `json:"effort"`
}

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Snapshot struct {
	Staleness    Staleness     `json:"staleness"`
	Projects     []Project     `json:"projects"`
	Milestones   []Milestone   `json:"milestones"`
	Items        []Item        `json:"items"`
	PersonTotals []PersonTotal `json:"person_totals"`
	People       []Person      `json:"people"`
}

// Error codes carried in ErrorResponse.Error.
const (
	CodeBadRequest       = "bad_request"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeStaleObject      = "stale_object"
	CodeValidationFailed = "validation_failed"
	CodeInternal         = "internal_error"
)

// ErrorResponse is the body of every non-2xx answer. ItemID names the
// failing row of a bulk request.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	ItemID  string              `json:"item_id,omitempty"`
}
