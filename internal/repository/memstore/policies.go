package memstore

import (
	"context"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

type Policies struct{ db *DB }

func (s *Policies) ActiveByType(ctx context.Context, typ string) (*model.Policy, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := sortedIDs(s.db.policies)
	for i := len(ids) - 1; i >= 0; i-- {
		if p := s.db.policies[ids[i]]; p.Type == typ && p.IsActive {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Policies) GetByID(ctx context.Context, id int64) (*model.Policy, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *Policies) List(ctx context.Context) ([]model.Policy, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.Policy, 0, len(s.db.policies))
	for _, id := range sortedIDs(s.db.policies) {
		out = append(out, *s.db.policies[id])
	}
	return out, nil
}

func (db *DB) deactivate(typ string, keepID int64, now time.Time) {
	for id, p := range db.policies {
		if id != keepID && p.Type == typ && p.IsActive {
			p.IsActive = false
			p.UpdatedAt = now
		}
	}
}

func (s *Policies) Create(ctx context.Context, p *model.Policy) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	s.db.deactivate(p.Type, 0, now)
	p.ID = s.db.nextID()
	p.IsActive = true
	p.TouchCreated(now)
	c := *p
	s.db.policies[p.ID] = &c
	return nil
}

func (s *Policies) Update(ctx context.Context, p *model.Policy) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.policies[p.ID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	if p.IsActive {
		s.db.deactivate(p.Type, p.ID, now)
	}
	p.TouchUpdated(now)
	cur.Content, cur.Version, cur.IsActive, cur.UpdatedAt = p.Content, p.Version, p.IsActive, p.UpdatedAt
	return nil
}

func (s *Policies) Delete(ctx context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.policies[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.db.policies, id)
	return nil
}
