package rbac

import (
	"testing"

	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEditItem, allow: false},
		{name: "viewer reorder", role: RoleViewer, action: ActionReorder, allow: true},
		{name: "member edit", role: RoleMember, action: ActionEditItem, allow: true},
		{name: "member delete", role: RoleMember, action: ActionDeleteItem, allow: false},
		{name: "member project", role: RoleMember, action: ActionEditProject, allow: false},
		{name: "manager delete", role: RoleManager, action: ActionDeleteItem, allow: true},
		{name: "manager milestone", role: RoleManager, action: ActionEditMilestone, allow: true},
		{name: "admin anything", role: RoleAdmin, action: ActionEditProject, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allow, Can(tc.role, tc.action))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, RoleManager, Normalize("manager"))
	assert.Equal(t, RoleViewer, Normalize("root"))
	assert.Equal(t, RoleViewer, Normalize(""))
}

func TestFilter_MemberCannotReassign(t *testing.T) {
	allowed, ignored := Filter(RoleMember, domain.RowItem,
		[]string{domain.FieldSubject, domain.FieldAssignee, domain.FieldEstimate, "bogus"})
	assert.Equal(t, []string{domain.FieldEstimate, domain.FieldSubject}, allowed)
	assert.Equal(t, []string{domain.FieldAssignee, "bogus"}, ignored)
}

func TestFilter_ManagerMayReassign(t *testing.T) {
	allowed, ignored := Filter(RoleManager, domain.RowItem, []string{domain.FieldAssignee, domain.FieldMilestone})
	assert.Len(t, allowed, 2)
	assert.Empty(t, ignored)
}

func TestEditableFields_ViewerHasNone(t *testing.T) {
	assert.Empty(t, EditableFields(RoleViewer, domain.RowItem))
	assert.Empty(t, EditableFields(RoleMember, domain.RowProject))
	assert.True(t, EditableFields(RoleManager, domain.RowProject)[domain.FieldEstimate])
}
