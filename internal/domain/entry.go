package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyEntry is the effort booked on one item for one calendar day.
type DailyEntry struct {
	ItemID string
	Date   time.Time
	Effort decimal.Decimal
}

// PersonDailyTotal is the derived per-person load for one day.
type PersonDailyTotal struct {
	PersonID string
	Date     time.Time
	Effort   decimal.Decimal
}

type Person struct {
	ID   string
	Name string
	Role string
}

// SortOrder is one viewer's display rank for an item.
type SortOrder struct {
	PersonID string
	ItemID   string
	Rank     int
}

// GlobalScope is the staleness key that covers every project.
const GlobalScope = "*"

// StalenessRecord is the last-write marker polled by clients.
type StalenessRecord struct {
	Scope     string
	UpdatedAt time.Time
	ActorID   string
	Revision  int64
}

// ScopeFor maps an optional project id to its staleness key.
func ScopeFor(projectID string) string {
	if projectID == "" {
		return GlobalScope
	}
	return projectID
}

// Newer reports whether r moved past prev.
func (r StalenessRecord) Newer(prev StalenessRecord) bool {
	return r.Revision != prev.Revision || !r.UpdatedAt.Equal(prev.UpdatedAt)
}
