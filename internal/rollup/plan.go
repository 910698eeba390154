package rollup

import (
	"time"

	"github.com/alexanderramin/workgrid/internal/domain"
)

// PersonDate addresses one PersonDailyTotal row.
type PersonDate struct {
	PersonID string
	Date     time.Time
}

// Plan lists the recomputations a write has made necessary. Entries are
// deduplicated and kept in first-added order. The zero value is ready to use.
type Plan struct {
	items    []string
	projects []string
	persons  []PersonDate
	seen     map[string]struct{}
}

// Stats counts the recomputations a coordinator actually ran.
type Stats struct {
	Items    int
	Projects int
	Persons  int
}

func (s *Stats) Add(o Stats) {
	s.Items += o.Items
	s.Projects += o.Projects
	s.Persons += o.Persons
}

func (p *Plan) mark(key string) bool {
	if p.seen == nil {
		p.seen = make(map[string]struct{})
	}
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

func (p *Plan) AddItem(id string) {
	if p.mark("i:" + id) {
		p.items = append(p.items, id)
	}
}

func (p *Plan) AddProject(id string) {
	if p.mark("p:" + id) {
		p.projects = append(p.projects, id)
	}
}

// AddPerson queues a person total. An empty person id is ignored: entries
// of unassigned items contribute to nobody.
func (p *Plan) AddPerson(personID string, date time.Time) {
	if personID == "" {
		return
	}
	if p.mark("u:" + personID + "@" + date.Format(domain.DateLayout)) {
		p.persons = append(p.persons, PersonDate{PersonID: personID, Date: date})
	}
}

// Merge appends o's work to p.
func (p *Plan) Merge(o *Plan) {
	if o == nil {
		return
	}
	for _, id := range o.items {
		p.AddItem(id)
	}
	for _, id := range o.projects {
		p.AddProject(id)
	}
	for _, pd := range o.persons {
		p.AddPerson(pd.PersonID, pd.Date)
	}
}

func (p *Plan) Items() []string { return p.items }
func (p *Plan) Projects() []string { return p.projects }
func (p *Plan) Persons() []PersonDate { return p.persons }
func (p *Plan) Empty() bool { return len(p.items)+len(p.projects)+len(p.persons) == 0 }

// EntryWritten is the work caused by storing an entry for item on date.
func EntryWritten(item *domain.WorkItem, date time.Time) *Plan {
	var p Plan
	p.AddItem(item.ID)
	p.AddPerson(deref(item.AssigneeID), date)
	return &p
}

// EstimateChanged is the work caused by a direct estimate edit.
func EstimateChanged(item *domain.WorkItem) *Plan {
	var p Plan
	p.AddItem(item.ID)
	return &p
}

// AssigneeChanged moves an item's load between people: both the previous
// and the new assignee are recomputed for every day the item has an entry.
func AssigneeChanged(previous, current *string, dates []time.Time) *Plan {
	var p Plan
	for _, d := range dates {
		p.AddPerson(deref(previous), d)
		p.AddPerson(deref(current), d)
	}
	return &p
}

// ItemAdded is the work caused by creating or copying an item.
func ItemAdded(item *domain.WorkItem) *Plan {
	var p Plan
	p.AddItem(item.ID)
	p.AddProject(item.ProjectID)
	return &p
}

// ItemRemoved is the work caused by deleting item whose entries fell on
// dates: its last assignee per date and its project.
func ItemRemoved(item *domain.WorkItem, dates []time.Time) *Plan {
	var p Plan
	for _, d := range dates {
		p.AddPerson(deref(item.AssigneeID), d)
	}
	p.AddProject(item.ProjectID)
	return &p
}

// EntryDates extracts the distinct days of entries.
func EntryDates(entries []domain.DailyEntry) []time.Time {
	seen := make(map[string]bool, len(entries))
	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		k := e.Date.Format(domain.DateLayout)
		if seen[k] {
			continue
		}
		seen[k] = true
		dates = append(dates, e.Date)
	}
	return dates
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
