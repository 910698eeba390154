package httpapi

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/service"
	"github.com/shopspring/decimal"
)

func rowResponseOf(res *service.RowResult) contract.RowResponse {
	out := contract.RowResponse{
		OK:                  true,
		ID:                  res.ItemID,
		Version:             res.Version,
		Results:             make(map[string]contract.FieldResult, len(res.Results)),
		IgnoredByPermission: nonNil(res.IgnoredByPermission),
	}
	for field, fr := range res.Results {
		out.Results[field] = contract.FieldResult{OK: fr.OK, Value: wireValue(fr.Value), Note: fr.Note}
	}
	return out
}

// wireValue renders efforts as fixed two-decimal numbers.
func wireValue(v any) any {
	switch d := v.(type) {
	case decimal.Decimal:
		return contract.Effort(d)
	case *decimal.Decimal:
		if d == nil {
			return nil
		}
		return contract.Effort(*d)
	}
	return v
}

func stalenessOf(rec domain.StalenessRecord) contract.Staleness {
	out := contract.Staleness{
		Scope:    rec.Scope,
		ActorID:  rec.ActorID,
		Revision: rec.Revision,
	}
	if !rec.UpdatedAt.IsZero() {
		out.Timestamp = rec.UpdatedAt.UTC()
		out.TimestampUS = rec.UpdatedAt.UnixMicro()
	}
	return out
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(domain.DateLayout)
	return &s
}

func snapshotOf(snap *service.Snapshot) contract.Snapshot {
	out := contract.Snapshot{
		Staleness:    stalenessOf(snap.Staleness),
		Projects:     make([]contract.Project, 0, len(snap.Projects)),
		Milestones:   make([]contract.Milestone, 0, len(snap.Milestones)),
		Items:        make([]contract.Item, 0, len(snap.Items)),
		PersonTotals: make([]contract.PersonTotal, 0, len(snap.PersonTotals)),
		People:       make([]contract.Person, 0, len(snap.People)),
	}
	for _, p := range snap.Projects {
		out.Projects = append(out.Projects, contract.Project{
			ID:              p.ID,
			Name:            p.Name,
			StartDate:       dateString(p.StartDate),
			EndDate:         dateString(p.EndDate),
			EstimatedEffort: contract.Effort(p.Estimate),
			ScheduledEffort: contract.Effort(p.Scheduled),
			CheckValue:      contract.Effort(p.Check),
		})
	}
	for _, m := range snap.Milestones {
		out.Milestones = append(out.Milestones, contract.Milestone{
			ID:            m.ID,
			ProjectID:     m.ProjectID,
			Name:          m.Name,
			StartDate:     dateString(m.StartDate),
			EffectiveDate: dateString(m.EffectiveDate),
		})
	}
	for _, row := range snap.Items {
		w := row.Item
		entries := make(map[string]json.Number, len(row.Entries))
		for date, effort := range row.Entries {
			entries[date] = contract.Effort(effort)
		}
		out.Items = append(out.Items, contract.Item{
			ID:              w.ID,
			ProjectID:       w.ProjectID,
			CategoryID:      w.CategoryID,
			MilestoneID:     w.MilestoneID,
			AssigneeID:      w.AssigneeID,
			Subject:         w.Subject,
			Description:     w.Description,
			EstimatedEffort: contract.Effort(w.Estimate),
			ScheduledEffort: contract.Effort(w.Scheduled),
			CheckValue:      contract.Effort(w.Check),
			DoneRatio:       w.DoneRatio,
			Version:         w.Version,
			Color:           int(w.Color),
			Entries:         entries,
		})
	}
	for _, t := range snap.PersonTotals {
		out.PersonTotals = append(out.PersonTotals, contract.PersonTotal{
			PersonID: t.PersonID,
			Date:     t.Date.Format(domain.DateLayout),
			Effort:   contract.Effort(t.Effort),
		})
	}
	sort.SliceStable(out.PersonTotals, func(i, j int) bool {
		a, b := out.PersonTotals[i], out.PersonTotals[j]
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		return a.Date < b.Date
	})
	for _, p := range snap.People {
		out.People = append(out.People, contract.Person{ID: p.ID, Name: p.Name, Role: p.Role})
	}
	return out
}
