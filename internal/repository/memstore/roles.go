package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

type Roles struct{ db *DB }

func cloneRole(r *model.Role) model.Role {
	c := *r
	if r.ParentRoleID != nil {
		p := *r.ParentRoleID
		c.ParentRoleID = &p
	}
	return c
}

func (s *Roles) List(ctx context.Context) ([]model.Role, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.Role, 0, len(s.db.roles))
	for _, id := range sortedIDs(s.db.roles) {
		out = append(out, cloneRole(s.db.roles[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].HierarchyLevel < out[j].HierarchyLevel })
	return out, nil
}

func (s *Roles) GetByID(ctx context.Context, id int64) (*model.Role, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneRole(r)
	return &c, nil
}

// nameTaken compares names case-insensitively, like the MySQL collation.
func (db *DB) nameTaken(name string, excludeID int64) bool {
	for id, r := range db.roles {
		if id != excludeID && strings.EqualFold(r.Name, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func (s *Roles) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.nameTaken(name, excludeID), nil
}

func (s *Roles) Create(ctx context.Context, r *model.Role) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.nameTaken(r.Name, 0) {
		return repository.ErrRoleNameExists
	}
	r.ID = s.db.nextID()
	r.TouchCreated(time.Now().UTC())
	c := cloneRole(r)
	s.db.roles[r.ID] = &c
	return nil
}

func (s *Roles) Update(ctx context.Context, r *model.Role) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.roles[r.ID]
	if !ok {
		return nil
	}
	if s.db.nameTaken(r.Name, r.ID) {
		return repository.ErrRoleNameExists
	}
	cur.Name, cur.Description = r.Name, r.Description
	return nil
}

func (s *Roles) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.roles[id]; !ok {
		return repository.ErrNotFound
	}
	for _, u := range s.db.users {
		if u.RoleID == id {
			return repository.ErrReferenced
		}
	}
	for _, inv := range s.db.invitations {
		if inv.RoleID == id {
			return repository.ErrReferenced
		}
	}
	for _, r := range s.db.roles {
		if r.ParentRoleID != nil && *r.ParentRoleID == id {
			return repository.ErrReferenced
		}
	}
	delete(s.db.roles, id)
	delete(s.db.assignments, id)
	return nil
}

func (s *Roles) SetHierarchy(ctx context.Context, id int64, parentID *int64, level int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.roles[id]
	if !ok {
		return nil
	}
	if parentID != nil {
		if _, ok := s.db.roles[*parentID]; !ok {
			return repository.ErrNotFound
		}
		p := *parentID
		r.ParentRoleID = &p
	} else {
		r.ParentRoleID = nil
	}
	r.HierarchyLevel = level
	return nil
}

func (s *Roles) CountChildren(ctx context.Context, id int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, r := range s.db.roles {
		if r.ParentRoleID != nil && *r.ParentRoleID == id {
			n++
		}
	}
	return n, nil
}

// ReplacePrivileges validates every id before touching the set, so a bad id
// leaves the previous assignment intact.
func (s *Roles) ReplacePrivileges(ctx context.Context, roleID int64, privilegeIDs []int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.roles[roleID]; !ok {
		return repository.ErrNotFound
	}
	next := make(map[int64]time.Time, len(privilegeIDs))
	now := time.Now().UTC()
	for _, pid := range privilegeIDs {
		if _, ok := s.db.privileges[pid]; !ok {
			return repository.ErrNotFound
		}
		next[pid] = now
	}
	s.db.assignments[roleID] = next
	return nil
}

func (s *Roles) Privileges(ctx context.Context, roleID int64) ([]model.Privilege, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.Privilege
	for _, pid := range sortedIDs(s.db.assignments[roleID]) {
		if p, ok := s.db.privileges[pid]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Roles) RemovePrivilege(ctx context.Context, roleID, privilegeID int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	set := s.db.assignments[roleID]
	if _, ok := set[privilegeID]; !ok {
		return false, nil
	}
	delete(set, privilegeID)
	return true, nil
}

type Privileges struct{ db *DB }

func (s *Privileges) List(ctx context.Context) ([]model.Privilege, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.Privilege, 0, len(s.db.privileges))
	for _, id := range sortedIDs(s.db.privileges) {
		out = append(out, *s.db.privileges[id])
	}
	return out, nil
}

func (s *Privileges) GetByID(ctx context.Context, id int64) (*model.Privilege, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.privileges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *Privileges) Create(ctx context.Context, p *model.Privilege) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p.ID = s.db.nextID()
	p.TouchCreated(time.Now().UTC())
	c := *p
	s.db.privileges[p.ID] = &c
	return nil
}

func (s *Privileges) Update(ctx context.Context, p *model.Privilege) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if cur, ok := s.db.privileges[p.ID]; ok {
		cur.Name, cur.Description, cur.Category = p.Name, p.Description, p.Category
	}
	return nil
}

func (s *Privileges) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.privileges[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.privileges, id)
	for _, set := range s.db.assignments {
		delete(set, id)
	}
	return nil
}

func (s *Privileges) CountExisting(ctx context.Context, ids []int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.db.privileges[id]; ok {
			n++
		}
	}
	return n, nil
}
