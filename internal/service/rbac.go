package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

// roleCounter is implemented by stores whose rows reference roles.
type roleCounter interface {
	CountByRole(ctx context.Context, roleID int64) (int64, error)
}

// RBAC owns the role/privilege graph: roles, their parent hierarchy and the
// privileges each role grants. Privileges are not inherited along the
// hierarchy; a role's effective privileges are exactly its assigned ones.
type RBAC struct {
	roles       RoleStore
	privileges  PrivilegeStore
	users       roleCounter
	invitations roleCounter
	log         *logrus.Logger
}

func NewRBAC(roles RoleStore, privileges PrivilegeStore, users, invitations roleCounter, log *logrus.Logger) *RBAC {
	if log == nil {
		log = logrus.New()
	}
	return &RBAC{roles: roles, privileges: privileges, users: users, invitations: invitations, log: log}
}

// RoleNode is a role with its direct sub-roles, used to render the forest.
type RoleNode struct {
	model.Role
	Children []*RoleNode
}

func (s *RBAC) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, internal("list roles failed", err)
	}
	return roles, nil
}

func (s *RBAC) GetRole(ctx context.Context, id int64) (*model.Role, error) {
	r, err := s.roles.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("role not found")
	}
	if err != nil {
		return nil, internal("load role failed", err)
	}
	return r, nil
}

// CreateRole adds a top-level role. Names are unique ignoring case.
func (s *RBAC) CreateRole(ctx context.Context, name, description string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("role name is required", "name")
	}
	taken, err := s.roles.NameTaken(ctx, name, 0)
	if err != nil {
		return nil, internal("create role failed", err)
	}
	if taken {
		return nil, conflict("role with this name already exists")
	}
	r := &model.Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.roles.Create(ctx, r); err != nil {
		if errors.Is(err, repository.ErrRoleNameExists) {
			return nil, conflict("role with this name already exists")
		}
		return nil, internal("create role failed", err)
	}
	s.log.WithFields(logrus.Fields{"role_id": r.ID, "name": r.Name}).Info("role created")
	return r, nil
}

// UpdateRole renames a role or changes its description.
func (s *RBAC) UpdateRole(ctx context.Context, id int64, name, description string) (*model.Role, error) {
	r, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("role name is required", "name")
	}
	if taken, err := s.roles.NameTaken(ctx, name, id); err != nil {
		return nil, internal("update role failed", err)
	} else if taken {
		return nil, conflict("role with this name already exists")
	}
	r.Name = name
	r.Description = strings.TrimSpace(description)
	if err := s.roles.Update(ctx, r); err != nil {
		if errors.Is(err, repository.ErrRoleNameExists) {
			return nil, conflict("role with this name already exists")
		}
		return nil, internal("update role failed", err)
	}
	return r, nil
}

// DeleteRole removes a role nobody depends on. Users, sub-roles and
// invitations that reference the role block the deletion.
func (s *RBAC) DeleteRole(ctx context.Context, id int64) error {
	if _, err := s.GetRole(ctx, id); err != nil {
		return err
	}
	users, err := s.users.CountByRole(ctx, id)
	if err != nil {
		return internal("delete role failed", err)
	}
	if users > 0 {
		return conflict("cannot delete role that is assigned to users")
	}
	children, err := s.roles.CountChildren(ctx, id)
	if err != nil {
		return internal("delete role failed", err)
	}
	if children > 0 {
		return conflict("cannot delete role that has sub-roles")
	}
	invites, err := s.invitations.CountByRole(ctx, id)
	if err != nil {
		return internal("delete role failed", err)
	}
	if invites > 0 {
		return conflict("cannot delete role that is referenced by invitations")
	}
	switch err := s.roles.Delete(ctx, id); {
	case errors.Is(err, repository.ErrNotFound):
		return notFound("role not found")
	case errors.Is(err, repository.ErrReferenced):
		return conflict("role is still referenced")
	case err != nil:
		return internal("delete role failed", err)
	}
	s.log.WithField("role_id", id).Info("role deleted")
	return nil
}

// SetHierarchy moves a role under parentID (nil for a root) and sets its
// level. A role may never become its own ancestor.
func (s *RBAC) SetHierarchy(ctx context.Context, roleID int64, parentID *int64, level int) (*model.Role, error) {
	if level < 0 {
		return nil, validation("hierarchy level must not be negative", "hierarchyLevel")
	}
	all, err := s.roles.List(ctx)
	if err != nil {
		return nil, internal("set hierarchy failed", err)
	}
	byID := make(map[int64]*model.Role, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}
	role, ok := byID[roleID]
	if !ok {
		return nil, notFound("role not found")
	}
	if parentID != nil {
		if *parentID == roleID {
			return nil, validation("a role cannot be its own parent", "parentRoleId")
		}
		if _, ok := byID[*parentID]; !ok {
			return nil, notFound("parent role not found")
		}
		if createsCycle(byID, roleID, *parentID) {
			return nil, conflict("hierarchy change would create a cycle")
		}
	}
	if err := s.roles.SetHierarchy(ctx, roleID, parentID, level); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("role not found")
		}
		return nil, internal("set hierarchy failed", err)
	}
	role.ParentRoleID = parentID
	role.HierarchyLevel = level
	return role, nil
}

// createsCycle walks the ancestors of parentID. Reaching roleID means the
// new edge closes a loop. The walk is bounded by the number of roles so an
// already corrupt chain also counts as a cycle.
func createsCycle(byID map[int64]*model.Role, roleID, parentID int64) bool {
	cur := &parentID
	for steps := 0; cur != nil; steps++ {
		if *cur == roleID || steps > len(byID) {
			return true
		}
		r, ok := byID[*cur]
		if !ok {
			return false
		}
		cur = r.ParentRoleID
	}
	return false
}

// Hierarchy returns the role forest ordered by level then id.
func (s *RBAC) Hierarchy(ctx context.Context) ([]*RoleNode, error) {
	all, err := s.roles.List(ctx)
	if err != nil {
		return nil, internal("load hierarchy failed", err)
	}
	nodes := make(map[int64]*RoleNode, len(all))
	for _, r := range all {
		nodes[r.ID] = &RoleNode{Role: r}
	}
	var roots []*RoleNode
	for _, r := range all {
		n := nodes[r.ID]
		if r.ParentRoleID != nil {
			if p, ok := nodes[*r.ParentRoleID]; ok {
				p.Children = append(p.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*RoleNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].HierarchyLevel != nodes[j].HierarchyLevel {
			return nodes[i].HierarchyLevel < nodes[j].HierarchyLevel
		}
		return nodes[i].ID < nodes[j].ID
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// AssignPrivileges replaces the role's privilege set with privilegeIDs.
// Duplicate ids are collapsed; an empty list clears the set.
func (s *RBAC) AssignPrivileges(ctx context.Context, roleID int64, privilegeIDs []int64) ([]model.Privilege, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	ids := uniqueIDs(privilegeIDs)
	if len(ids) > 0 {
		n, err := s.privileges.CountExisting(ctx, ids)
		if err != nil {
			return nil, internal("assign privileges failed", err)
		}
		if n != len(ids) {
			return nil, validation("one or more privileges do not exist", "privilegeIds")
		}
	}
	if err := s.roles.ReplacePrivileges(ctx, roleID, ids); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validation("one or more privileges do not exist", "privilegeIds")
		}
		return nil, internal("assign privileges failed", err)
	}
	s.log.WithFields(logrus.Fields{"role_id": roleID, "privileges": ids}).Info("role privileges replaced")
	return s.EffectivePrivileges(ctx, roleID)
}

// EffectivePrivileges returns the privileges assigned directly to the role.
func (s *RBAC) EffectivePrivileges(ctx context.Context, roleID int64) ([]model.Privilege, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	privs, err := s.roles.Privileges(ctx, roleID)
	if err != nil {
		return nil, internal("load role privileges failed", err)
	}
	return privs, nil
}

func (s *RBAC) RemovePrivilege(ctx context.Context, roleID, privilegeID int64) error {
	removed, err := s.roles.RemovePrivilege(ctx, roleID, privilegeID)
	if err != nil {
		return internal("remove privilege failed", err)
	}
	if !removed {
		return notFound("privilege is not assigned to this role")
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Privilege catalogue.

func (s *RBAC) ListPrivileges(ctx context.Context) ([]model.Privilege, error) {
	privs, err := s.privileges.List(ctx)
	if err != nil {
		return nil, internal("list privileges failed", err)
	}
	return privs, nil
}

func (s *RBAC) GetPrivilege(ctx context.Context, id int64) (*model.Privilege, error) {
	p, err := s.privileges.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("privilege not found")
	}
	if err != nil {
		return nil, internal("load privilege failed", err)
	}
	return p, nil
}

func (s *RBAC) CreatePrivilege(ctx context.Context, name, description, category string) (*model.Privilege, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("privilege name is required", "name")
	}
	p := &model.Privilege{Name: name, Description: strings.TrimSpace(description), Category: strings.TrimSpace(category)}
	if err := s.privileges.Create(ctx, p); err != nil {
		return nil, internal("create privilege failed", err)
	}
	return p, nil
}

func (s *RBAC) UpdatePrivilege(ctx context.Context, id int64, name, description, category string) (*model.Privilege, error) {
	p, err := s.GetPrivilege(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("privilege name is required", "name")
	}
	p.Name = name
	p.Description = strings.TrimSpace(description)
	p.Category = strings.TrimSpace(category)
	if err := s.privileges.Update(ctx, p); err != nil {
		return nil, internal("update privilege failed", err)
	}
	return p, nil
}

func (s *RBAC) DeletePrivilege(ctx context.Context, id int64) error {
	err := s.privileges.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("privilege not found")
	}
	if err != nil {
		return internal("delete privilege failed", err)
	}
	return nil
}
