package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/access-control-api/internal/model"
)

func TestRoleNamesAreUniqueIgnoringCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rbac.CreateRole(ctx, "super ADMIN", "")
	requireKind(t, err, KindConflict)

	_, err = f.rbac.CreateRole(ctx, "   ", "")
	requireKind(t, err, KindValidation)

	r, err := f.rbac.CreateRole(ctx, " Auditor ", " Reads logs ")
	require.NoError(t, err)
	assert.Equal(t, "Auditor", r.Name)
	assert.Equal(t, "Reads logs", r.Description)

	_, err = f.rbac.UpdateRole(ctx, r.ID, "normal user", "")
	requireKind(t, err, KindConflict)

	r, err = f.rbac.UpdateRole(ctx, r.ID, "AUDITOR", "case change of own name")
	require.NoError(t, err)
	assert.Equal(t, "AUDITOR", r.Name)

	_, err = f.rbac.UpdateRole(ctx, 999, "Ghost", "")
	requireKind(t, err, KindNotFound)
}

func TestSetHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shift, err := f.rbac.CreateRole(ctx, "Night Shift", "")
	require.NoError(t, err)
	security := int64(4)

	r, err := f.rbac.SetHierarchy(ctx, shift.ID, &security, 3)
	require.NoError(t, err)
	require.NotNil(t, r.ParentRoleID)
	assert.Equal(t, security, *r.ParentRoleID)

	t.Run("own parent", func(t *testing.T) {
		_, err := f.rbac.SetHierarchy(ctx, shift.ID, &shift.ID, 3)
		requireKind(t, err, KindValidation)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := f.rbac.SetHierarchy(ctx, security, &shift.ID, 4)
		requireKind(t, err, KindConflict)
	})

	t.Run("missing parent", func(t *testing.T) {
		missing := int64(999)
		_, err := f.rbac.SetHierarchy(ctx, shift.ID, &missing, 3)
		requireKind(t, err, KindNotFound)
	})

	t.Run("missing role", func(t *testing.T) {
		_, err := f.rbac.SetHierarchy(ctx, 999, nil, 0)
		requireKind(t, err, KindNotFound)
	})

	t.Run("negative level", func(t *testing.T) {
		_, err := f.rbac.SetHierarchy(ctx, shift.ID, nil, -1)
		requireKind(t, err, KindValidation)
	})

	t.Run("forest", func(t *testing.T) {
		roots, err := f.rbac.Hierarchy(ctx)
		require.NoError(t, err)
		var names []string
		for _, n := range roots {
			names = append(names, n.Name)
		}
		assert.Equal(t, []string{
			model.RoleSuperAdmin, model.RolePropertyAdmin, model.RoleSecurityAdmin, model.RoleNormalUser,
		}, names)
		require.Len(t, roots[2].Children, 1)
		assert.Equal(t, "Night Shift", roots[2].Children[0].Name)
	})

	t.Run("back to root", func(t *testing.T) {
		r, err := f.rbac.SetHierarchy(ctx, shift.ID, nil, 5)
		require.NoError(t, err)
		assert.Nil(t, r.ParentRoleID)
		assert.Equal(t, 5, r.HierarchyLevel)
	})
}

func TestCreatesCycle(t *testing.T) {
	one, two := int64(1), int64(2)
	byID := map[int64]*model.Role{
		1: {ID: 1},
		2: {ID: 2, ParentRoleID: &one},
		3: {ID: 3, ParentRoleID: &two},
	}
	assert.True(t, createsCycle(byID, 1, 3))
	assert.False(t, createsCycle(byID, 3, 1))

	// A chain that already loops is treated as a cycle.
	byID[1].ParentRoleID = &two
	byID[2].ParentRoleID = &one
	assert.True(t, createsCycle(byID, 3, 1))
}

func TestDeleteRoleRestrictions(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()

	requireKind(t, f.rbac.DeleteRole(ctx, 1), KindConflict)
	requireKind(t, f.rbac.DeleteRole(ctx, 999), KindNotFound)

	parent, err := f.rbac.CreateRole(ctx, "Parent", "")
	require.NoError(t, err)
	child, err := f.rbac.CreateRole(ctx, "Child", "")
	require.NoError(t, err)
	_, err = f.rbac.SetHierarchy(ctx, child.ID, &parent.ID, 1)
	require.NoError(t, err)
	err = f.rbac.DeleteRole(ctx, parent.ID)
	requireKind(t, err, KindConflict)
	assert.Equal(t, "cannot delete role that has sub-roles", err.(*Error).Message)

	invited, err := f.rbac.CreateRole(ctx, "Invited", "")
	require.NoError(t, err)
	f.invite(t, "x@example.com", invited.ID, root)
	err = f.rbac.DeleteRole(ctx, invited.ID)
	requireKind(t, err, KindConflict)
	assert.Equal(t, "cannot delete role that is referenced by invitations", err.(*Error).Message)

	require.NoError(t, f.rbac.DeleteRole(ctx, child.ID))
	require.NoError(t, f.rbac.DeleteRole(ctx, parent.ID))
}

func TestAssignPrivileges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	privs, err := f.rbac.AssignPrivileges(ctx, 3, []int64{5, 1, 5, 7})
	require.NoError(t, err)
	require.Len(t, privs, 3)
	assert.Equal(t, []int64{1, 5, 7}, privilegeIDs(privs))

	_, err = f.rbac.AssignPrivileges(ctx, 3, []int64{1, 999})
	requireKind(t, err, KindValidation)
	privs, err = f.rbac.EffectivePrivileges(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 7}, privilegeIDs(privs), "failed replace keeps the old set")

	_, err = f.rbac.AssignPrivileges(ctx, 999, []int64{1})
	requireKind(t, err, KindNotFound)

	require.NoError(t, f.rbac.RemovePrivilege(ctx, 3, 5))
	requireKind(t, f.rbac.RemovePrivilege(ctx, 3, 5), KindNotFound)

	privs, err = f.rbac.AssignPrivileges(ctx, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, privs)
}

func TestPrivilegesAreNotInherited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	top := int64(1)
	_, err := f.rbac.AssignPrivileges(ctx, 1, []int64{1, 2, 3})
	require.NoError(t, err)
	_, err = f.rbac.SetHierarchy(ctx, 3, &top, 1)
	require.NoError(t, err)

	privs, err := f.rbac.EffectivePrivileges(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, privs)
}

func TestPrivilegeCatalogue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.rbac.ListPrivileges(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	_, err = f.rbac.CreatePrivilege(ctx, "", "", "")
	requireKind(t, err, KindValidation)

	p, err := f.rbac.CreatePrivilege(ctx, "Export Reports", "Download CSV reports", "Reporting")
	require.NoError(t, err)

	p, err = f.rbac.UpdatePrivilege(ctx, p.ID, "Export Reports", "Download reports", "Reporting")
	require.NoError(t, err)
	assert.Equal(t, "Download reports", p.Description)

	_, err = f.rbac.AssignPrivileges(ctx, 2, []int64{p.ID})
	require.NoError(t, err)
	require.NoError(t, f.rbac.DeletePrivilege(ctx, p.ID))

	privs, err := f.rbac.EffectivePrivileges(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, privs, "deleting a privilege drops its assignments")

	requireKind(t, f.rbac.DeletePrivilege(ctx, p.ID), KindNotFound)
	_, err = f.rbac.GetPrivilege(ctx, p.ID)
	requireKind(t, err, KindNotFound)
}

func privilegeIDs(ps []model.Privilege) []int64 {
	ids := make([]int64, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}
