package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

type Users struct{ db *DB }

// withRole returns a copy of u with RoleName joined. Caller holds the lock.
func (db *DB) withRole(u *model.User) *model.User {
	c := *u
	if r, ok := db.roles[u.RoleID]; ok {
		c.RoleName = r.Name
	}
	return &c
}

func (s *Users) Count(ctx context.Context) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return int64(len(s.db.users)), nil
}

func (s *Users) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, u := range s.db.users {
		if u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (s *Users) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	return err == nil, nil
}

func (s *Users) PhoneExists(ctx context.Context, phone string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.findUser(func(u *model.User) bool { return u.PhoneNumber == strings.TrimSpace(phone) }) != nil, nil
}

func (db *DB) findUser(match func(*model.User) bool) *model.User {
	for _, id := range sortedIDs(db.users) {
		if u := db.users[id]; match(u) {
			return u
		}
	}
	return nil
}

func (s *Users) GetByID(ctx context.Context, id int64) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.db.withRole(u), nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normEmail(email)
	if email == "" {
		return nil, repository.ErrNotFound
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.db.findUser(func(u *model.User) bool { return u.Email == email })
	if u == nil {
		return nil, repository.ErrNotFound
	}
	return s.db.withRole(u), nil
}

func (s *Users) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return s.GetByEmail(ctx, login)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.db.findUser(func(u *model.User) bool { return login != "" && u.PhoneNumber == login })
	if u == nil {
		return nil, repository.ErrNotFound
	}
	return s.db.withRole(u), nil
}

func (s *Users) List(ctx context.Context) ([]model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.User, 0, len(s.db.users))
	for _, id := range sortedIDs(s.db.users) {
		out = append(out, *s.db.withRole(s.db.users[id]))
	}
	return out, nil
}

func (s *Users) Create(ctx context.Context, u *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.insertUser(u, false)
}

func (s *Users) Provision(ctx context.Context, u *model.User, adm model.Admission, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	switch a := adm.(type) {
	case model.PersistedInvitation:
		inv, ok := s.db.invitations[a.Invitation.ID]
		if !ok || !inv.IsValid(now) {
			return repository.ErrInvitationConsumed
		}
		if err := s.db.checkUser(u, false); err != nil {
			return err
		}
		t := now
		inv.IsUsed = true
		inv.UsedAt = &t
		return s.db.insertUser(u, false)
	case model.BootstrapGrant:
		return s.db.insertUser(u, true)
	default:
		return fmt.Errorf("unsupported admission %T", adm)
	}
}

// checkUser enforces the unique and foreign keys of the users table.
func (db *DB) checkUser(u *model.User, bootstrap bool) error {
	email := normEmail(u.Email)
	for _, other := range db.users {
		if other.ID == u.ID {
			continue
		}
		if email != "" && other.Email == email {
			return repository.ErrEmailExists
		}
		if u.PhoneNumber != "" && other.PhoneNumber == u.PhoneNumber {
			return repository.ErrPhoneExists
		}
	}
	if bootstrap && db.bootstrap != 0 {
		if _, ok := db.users[db.bootstrap]; ok {
			return repository.ErrBootstrapTaken
		}
	}
	if _, ok := db.roles[u.RoleID]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (db *DB) insertUser(u *model.User, bootstrap bool) error {
	if err := db.checkUser(u, bootstrap); err != nil {
		return err
	}
	u.Email = normEmail(u.Email)
	u.ID = db.nextID()
	u.TouchCreated(time.Now().UTC())
	c := *u
	c.RoleName = ""
	db.users[u.ID] = &c
	if bootstrap {
		db.bootstrap = u.ID
	}
	return nil
}

func (s *Users) Update(ctx context.Context, u *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.users[u.ID]
	if !ok {
		return nil
	}
	probe := *cur
	probe.PhoneNumber = u.PhoneNumber
	if err := s.db.checkUser(&probe, false); err != nil {
		return err
	}
	u.TouchUpdated(time.Now().UTC())
	cur.FirstName, cur.LastName = u.FirstName, u.LastName
	cur.PhoneNumber, cur.ProfilePicture = u.PhoneNumber, u.ProfilePicture
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (s *Users) mutate(id int64, fn func(u *model.User) error) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil
	}
	if err := fn(u); err != nil {
		return err
	}
	u.TouchUpdated(time.Now().UTC())
	return nil
}

func (s *Users) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return s.mutate(id, func(u *model.User) error { u.PasswordHash = hash; return nil })
}

func (s *Users) SetRole(ctx context.Context, id, roleID int64) error {
	return s.mutate(id, func(u *model.User) error {
		if _, ok := s.db.roles[roleID]; !ok {
			return repository.ErrNotFound
		}
		u.RoleID = roleID
		return nil
	})
}

func (s *Users) SetActive(ctx context.Context, id int64, active bool) error {
	return s.mutate(id, func(u *model.User) error { u.IsActive = active; return nil })
}

func (s *Users) SetProfilePicture(ctx context.Context, id int64, url string) error {
	return s.mutate(id, func(u *model.User) error { u.ProfilePicture = url; return nil })
}

func (s *Users) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return repository.ErrNotFound
	}
	for _, inv := range s.db.invitations {
		if inv.InvitedByUserID == id {
			return repository.ErrReferenced
		}
	}
	delete(s.db.users, id)
	for hash, row := range s.db.refresh {
		if row.userID == id {
			delete(s.db.refresh, hash)
		}
	}
	return nil
}
