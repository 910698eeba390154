package formatter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/gridclient"
)

// FormatGrid renders a snapshot: project totals, the item rows in the
// caller's order, and the per-person daily tallies.
func FormatGrid(snap *contract.Snapshot) string {
	names := make(map[string]string, len(snap.People))
	for _, p := range snap.People {
		names[p.ID] = p.Name
	}

	var b strings.Builder
	for _, p := range snap.Projects {
		check := effortOf(p.CheckValue)
		fmt.Fprintf(&b, "%s  estimate %s  scheduled %s  check %s\n",
			Bold(p.Name), p.EstimatedEffort, p.ScheduledEffort,
			CheckStyle(check).Render(check.StringFixed(2)))
	}
	b.WriteString("\n")

	items := Table{
		Headers: []string{"", "SUBJECT", "ASSIGNEE", "ESTIMATE", "SCHEDULED", "CHECK", "V"},
		Right:   map[int]bool{3: true, 4: true, 5: true, 6: true},
	}
	for _, it := range snap.Items {
		assignee := Dim("-")
		if it.AssigneeID != nil {
			assignee = names[*it.AssigneeID]
			if assignee == "" {
				assignee = TruncID(*it.AssigneeID)
			}
		}
		check := effortOf(it.CheckValue)
		items.Rows = append(items.Rows, []string{
			RowColorBadge(domain.Color(it.Color)),
			it.Subject,
			assignee,
			it.EstimatedEffort.String(),
			it.ScheduledEffort.String(),
			CheckStyle(check).Render(check.StringFixed(2)),
			fmt.Sprint(it.Version),
		})
	}
	b.WriteString(items.Render())

	if tallies := formatTallies(snap.PersonTotals, names); tallies != "" {
		b.WriteString("\n")
		b.WriteString(Header("Daily totals"))
		b.WriteString("\n")
		b.WriteString(tallies)
	}
	return b.String()
}

func formatTallies(totals []contract.PersonTotal, names map[string]string) string {
	dateSet := map[string]bool{}
	byPerson := map[string]map[string]contract.PersonTotal{}
	for _, t := range totals {
		if effortOf(t.Effort).IsZero() {
			continue
		}
		dateSet[t.Date] = true
		if byPerson[t.PersonID] == nil {
			byPerson[t.PersonID] = map[string]contract.PersonTotal{}
		}
		byPerson[t.PersonID][t.Date] = t
	}
	if len(byPerson) == 0 {
		return ""
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	people := make([]string, 0, len(byPerson))
	for id := range byPerson {
		people = append(people, id)
	}
	sort.Slice(people, func(i, j int) bool { return names[people[i]] < names[people[j]] })

	table := Table{Headers: []string{"PERSON"}, Right: map[int]bool{}}
	for i, d := range dates {
		table.Headers = append(table.Headers, d[5:])
		table.Right[i+1] = true
	}
	for _, id := range people {
		name := names[id]
		if name == "" {
			name = TruncID(id)
		}
		row := []string{name}
		for _, d := range dates {
			t, ok := byPerson[id][d]
			if !ok {
				row = append(row, Dim("·"))
				continue
			}
			effort := effortOf(t.Effort)
			row = append(row, TallyStyle(effort).Render(effort.StringFixed(2)))
		}
		table.Rows = append(table.Rows, row)
	}
	return table.Render()
}

// FormatStaleness renders a probe answer as one status line.
func FormatStaleness(st contract.Staleness, now time.Time) string {
	scope := st.Scope
	if scope == domain.GlobalScope || scope == "" {
		scope = "all projects"
	}
	if st.Revision == 0 {
		return fmt.Sprintf("%s  %s", Bold(scope), Dim("never updated"))
	}
	return fmt.Sprintf("%s  revision %d  updated %s by %s",
		Bold(scope), st.Revision, HumanTimestampFrom(st.Timestamp, now), TruncID(st.ActorID))
}

// FormatFailures lists rows the server refused, one block per row.
func FormatFailures(failures []gridclient.RowFailure) string {
	if len(failures) == 0 {
		return ""
	}
	var lines []string
	for _, f := range failures {
		reason := f.Code
		switch {
		case f.Conflict():
			reason = StyleYellow.Render("changed by someone else, reload and retry")
		case reason == "":
			reason = StyleRed.Render(f.Message)
		default:
			reason = StyleRed.Render(reason)
		}
		lines = append(lines, fmt.Sprintf("row %s: %s", TruncID(f.ItemID), reason))
		fields := make([]string, 0, len(f.Errors))
		for field := range f.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			lines = append(lines, fmt.Sprintf("  %s: %s", field, strings.Join(f.Errors[field], ", ")))
		}
	}
	return RenderBox("Not saved", strings.Join(lines, "\n"))
}
