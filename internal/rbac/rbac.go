package rbac

import (
	"sort"

	"github.com/alexanderramin/workgrid/internal/domain"
)

type Role string
type Action string

const (
	RoleViewer  Role = "viewer"
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead          Action = "read"
	ActionEditItem      Action = "edit_item"
	ActionCreateItem    Action = "create_item"
	ActionDeleteItem    Action = "delete_item"
	ActionEditProject   Action = "edit_project"
	ActionEditMilestone Action = "edit_milestone"
	ActionReorder       Action = "reorder"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ""
	case RoleMember:
		return action == ActionRead || action == ActionEditItem || action == ActionCreateItem || action == ActionReorder
	case RoleViewer:
		return action == ActionRead || action == ActionReorder
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleMember, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

var (
	memberItemFields = []string{
		domain.FieldSubject,
		domain.FieldDescription,
		domain.FieldEstimate,
		domain.FieldDoneRatio,
		domain.FieldColor,
	}
	managerItemFields = append(append([]string{}, memberItemFields...),
		domain.FieldAssignee,
		domain.FieldCategory,
		domain.FieldMilestone,
	)
	projectFields = []string{domain.FieldEstimate, "start_date", "end_date"}
)

// EditableFields is the field allowlist for role on a target of kind.
// Date cells of an item row are governed by ActionEditItem, not by this list.
func EditableFields(role Role, kind domain.RowKind) map[string]bool {
	var fields []string
	switch kind {
	case domain.RowItem:
		switch {
		case Can(role, ActionEditProject):
			fields = managerItemFields
		case Can(role, ActionEditItem):
			fields = memberItemFields
		}
	case domain.RowProject:
		if Can(role, ActionEditProject) {
			fields = projectFields
		}
	case domain.RowMilestone:
		if Can(role, ActionEditMilestone) {
			fields = []string{"start_date", "effective_date"}
		}
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// Filter splits requested field names into the ones role may write and the
// ones it may not. Both results are sorted.
func Filter(role Role, kind domain.RowKind, requested []string) (allowed, ignored []string) {
	editable := EditableFields(role, kind)
	for _, f := range requested {
		if editable[f] {
			allowed = append(allowed, f)
		} else {
			ignored = append(ignored, f)
		}
	}
	sort.Strings(allowed)
	sort.Strings(ignored)
	return allowed, ignored
}
