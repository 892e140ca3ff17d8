package memstore

import (
	"context"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

type Invitations struct{ db *DB }

// joined copies inv and fills the joined role and inviter names. Caller
// holds the lock.
func (db *DB) joined(inv *model.Invitation) *model.Invitation {
	c := *inv
	if inv.UsedAt != nil {
		t := *inv.UsedAt
		c.UsedAt = &t
	}
	if r, ok := db.roles[inv.RoleID]; ok {
		c.RoleName = r.Name
	}
	if u, ok := db.users[inv.InvitedByUserID]; ok {
		c.InvitedByName = u.FullName()
	}
	return &c
}

// newestFirst returns invitations for email ordered by created_at then id,
// newest first, filtered by keep.
func (db *DB) newestFirst(email string, keep func(*model.Invitation) bool) *model.Invitation {
	var best *model.Invitation
	for _, inv := range db.invitations {
		if inv.Email != normEmail(email) || !keep(inv) {
			continue
		}
		if best == nil || inv.CreatedAt.After(best.CreatedAt) ||
			(inv.CreatedAt.Equal(best.CreatedAt) && inv.ID > best.ID) {
			best = inv
		}
	}
	return best
}

func (s *Invitations) Create(ctx context.Context, inv *model.Invitation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.roles[inv.RoleID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.db.users[inv.InvitedByUserID]; !ok {
		return repository.ErrNotFound
	}
	inv.Email = normEmail(inv.Email)
	for id, other := range s.db.invitations {
		if other.Email == inv.Email && !other.IsUsed {
			delete(s.db.invitations, id)
		}
	}
	inv.ID = s.db.nextID()
	inv.TouchCreated(time.Now().UTC())
	c := *inv
	s.db.invitations[inv.ID] = &c
	return nil
}

func (s *Invitations) GetByID(ctx context.Context, id int64) (*model.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv, ok := s.db.invitations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.db.joined(inv), nil
}

func (s *Invitations) List(ctx context.Context) ([]model.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := sortedIDs(s.db.invitations)
	out := make([]model.Invitation, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *s.db.joined(s.db.invitations[ids[i]]))
	}
	return out, nil
}

func (s *Invitations) find(email string, keep func(*model.Invitation) bool) (*model.Invitation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv := s.db.newestFirst(email, keep)
	if inv == nil {
		return nil, repository.ErrNotFound
	}
	return s.db.joined(inv), nil
}

func (s *Invitations) FindValid(ctx context.Context, email string, now time.Time) (*model.Invitation, error) {
	return s.find(email, func(inv *model.Invitation) bool { return inv.IsValid(now) })
}

func (s *Invitations) LatestUnused(ctx context.Context, email string) (*model.Invitation, error) {
	return s.find(email, func(inv *model.Invitation) bool { return !inv.IsUsed })
}

func (s *Invitations) Latest(ctx context.Context, email string) (*model.Invitation, error) {
	return s.find(email, func(*model.Invitation) bool { return true })
}

func (s *Invitations) MarkUsed(ctx context.Context, id int64, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	inv, ok := s.db.invitations[id]
	if !ok || inv.IsUsed {
		return false, nil
	}
	t := now
	inv.IsUsed = true
	inv.UsedAt = &t
	return true, nil
}

func (s *Invitations) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.invitations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.invitations, id)
	return nil
}

func (s *Invitations) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, inv := range s.db.invitations {
		if inv.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

// Put stores inv as given, bypassing the pending-invitation replacement.
// Tests use it to plant expired or used rows.
func (s *Invitations) Put(inv model.Invitation) int64 {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = s.db.nextID()
	}
	inv.Email = normEmail(inv.Email)
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	s.db.invitations[inv.ID] = &inv
	return inv.ID
}
