package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	MaxSubjectLen     = 255
	MaxDescriptionLen = 255
	DefaultSubject    = "Untitled"
)

// Color is the display tag of a grid row.
type Color int

const (
	ColorNormal Color = 0
	ColorYellow Color = 1
	ColorRed    Color = 2
	ColorGray   Color = 99
)

func (c Color) Valid() bool {
	switch c {
	case ColorNormal, ColorYellow, ColorRed, ColorGray:
		return true
	}
	return false
}

// Editable item field names as they appear on the grid.
const (
	FieldSubject     = "subject"
	FieldDescription = "description"
	FieldEstimate    = "estimated_effort"
	FieldAssignee    = "assignee_id"
	FieldCategory    = "category_id"
	FieldMilestone   = "milestone_id"
	FieldDoneRatio   = "done_ratio"
	FieldColor       = "color"
)

// Server-computed columns. Clients never send these.
const (
	FieldVersion   = "version"
	FieldScheduled = "scheduled_effort"
	FieldCheck     = "check_value"
)

// IsServerField reports whether a column is owned by the server.
func IsServerField(name string) bool {
	switch name {
	case FieldVersion, FieldScheduled, FieldCheck:
		return true
	}
	return false
}

type WorkItem struct {
	ID          string
	ProjectID   string
	CategoryID  *string
	MilestoneID *string
	AssigneeID  *string
	Subject     string
	Description string

	Estimate  decimal.Decimal
	Scheduled decimal.Decimal
	Check     decimal.Decimal

	DoneRatio int
	Version   int
	Color     Color

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate returns the per-field messages for the item's editable columns.
func (w *WorkItem) Validate() FieldErrors {
	fe := FieldErrors{}
	if strings.TrimSpace(w.Subject) == "" {
		fe.Add(FieldSubject, "can't be blank")
	}
	if utf8.RuneCountInString(w.Subject) > MaxSubjectLen {
		fe.Add(FieldSubject, fmt.Sprintf("is too long (maximum is %d characters)", MaxSubjectLen))
	}
	if utf8.RuneCountInString(w.Description) > MaxDescriptionLen {
		fe.Add(FieldDescription, fmt.Sprintf("is too long (maximum is %d characters)", MaxDescriptionLen))
	}
	if err := ValidateEstimate(w.Estimate, MaxEntryEffort); err != nil {
		fe.Add(FieldEstimate, err.Error())
	}
	if w.DoneRatio < 0 || w.DoneRatio > 100 {
		fe.Add(FieldDoneRatio, "must be between 0 and 100")
	}
	if !w.Color.Valid() {
		fe.Add(FieldColor, "is not included in the list")
	}
	return fe
}

// ItemPatch is a parsed set of field changes for one row.
type ItemPatch struct {
	Subject     *string
	Description *string
	Estimate    *decimal.Decimal
	DoneRatio   *int
	Color       *Color
	Assignee    *Ref
	Category    *Ref
	Milestone   *Ref
}

// Ref is a nullable foreign-key change: a nil ID clears the reference.
type Ref struct {
	ID *string
}

// Set parses raw for field into the patch. The error text is the
// user-facing validation message.
func (p *ItemPatch) Set(field string, raw any) error {
	switch field {
	case FieldSubject:
		s := stringValue(raw)
		p.Subject = &s
	case FieldDescription:
		s := stringValue(raw)
		p.Description = &s
	case FieldEstimate:
		d, err := ParseEffort(raw)
		if err != nil {
			return err
		}
		p.Estimate = &d
	case FieldDoneRatio:
		n, err := intValue(raw)
		if err != nil {
			return err
		}
		p.DoneRatio = &n
	case FieldColor:
		n, err := intValue(raw)
		if err != nil {
			return err
		}
		c := Color(n)
		p.Color = &c
	case FieldAssignee:
		p.Assignee = refValue(raw)
	case FieldCategory:
		p.Category = refValue(raw)
	case FieldMilestone:
		p.Milestone = refValue(raw)
	default:
		return fmt.Errorf("is not an editable field")
	}
	return nil
}

// Apply writes the patch onto w and returns the names of fields whose value
// actually changed.
func (p *ItemPatch) Apply(w *WorkItem) []string {
	var changed []string
	if p.Subject != nil && *p.Subject != w.Subject {
		w.Subject = *p.Subject
		changed = append(changed, FieldSubject)
	}
	if p.Description != nil && *p.Description != w.Description {
		w.Description = *p.Description
		changed = append(changed, FieldDescription)
	}
	if p.Estimate != nil && !p.Estimate.Equal(w.Estimate) {
		w.Estimate = *p.Estimate
		changed = append(changed, FieldEstimate)
	}
	if p.DoneRatio != nil && *p.DoneRatio != w.DoneRatio {
		w.DoneRatio = *p.DoneRatio
		changed = append(changed, FieldDoneRatio)
	}
	if p.Color != nil && *p.Color != w.Color {
		w.Color = *p.Color
		changed = append(changed, FieldColor)
	}
	if p.Assignee != nil && !sameRef(p.Assignee.ID, w.AssigneeID) {
		w.AssigneeID = p.Assignee.ID
		changed = append(changed, FieldAssignee)
	}
	if p.Category != nil && !sameRef(p.Category.ID, w.CategoryID) {
		w.CategoryID = p.Category.ID
		changed = append(changed, FieldCategory)
	}
	if p.Milestone != nil && !sameRef(p.Milestone.ID, w.MilestoneID) {
		w.MilestoneID = p.Milestone.ID
		changed = append(changed, FieldMilestone)
	}
	return changed
}

// FieldValue returns the current value of a grid column for reporting back
// to the client.
func (w *WorkItem) FieldValue(field string) any {
	switch field {
	case FieldSubject:
		return w.Subject
	case FieldDescription:
		return w.Description
	case FieldEstimate:
		return w.Estimate
	case FieldDoneRatio:
		return w.DoneRatio
	case FieldColor:
		return int(w.Color)
	case FieldAssignee:
		return derefOrNil(w.AssigneeID)
	case FieldCategory:
		return derefOrNil(w.CategoryID)
	case FieldMilestone:
		return derefOrNil(w.MilestoneID)
	case FieldVersion:
		return w.Version
	case FieldScheduled:
		return w.Scheduled
	case FieldCheck:
		return w.Check
	}
	return nil
}

func stringValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func intValue(raw any) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("must be an integer")
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("must be an integer")
		}
		return n, nil
	default:
		d, ok := effortFrom(raw)
		if !ok {
			return 0, fmt.Errorf("must be an integer")
		}
		if d.IsZero() {
			return 0, nil
		}
		if intDigits(d) > maxEffortDigits {
			return 0, fmt.Errorf("is out of range")
		}
		if intDigits(d) < 1 || !d.IsInteger() {
			return 0, fmt.Errorf("must be an integer")
		}
		return int(d.IntPart()), nil
	}
}

func refValue(raw any) *Ref {
	s := strings.TrimSpace(stringValue(raw))
	if s == "" {
		return &Ref{}
	}
	return &Ref{ID: &s}
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
