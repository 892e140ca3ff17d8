package memstore

import (
	"context"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

type ResetTokens struct{ db *DB }

func (s *ResetTokens) Replace(ctx context.Context, t *model.PasswordResetToken) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t.Email = normEmail(t.Email)
	for id, other := range s.db.resets {
		if other.Email == t.Email && !other.IsUsed {
			delete(s.db.resets, id)
		}
	}
	t.ID = s.db.nextID()
	t.TouchCreated(time.Now().UTC())
	c := *t
	s.db.resets[t.ID] = &c
	return nil
}

func (s *ResetTokens) match(email, code string, keep func(*model.PasswordResetToken) bool) *model.PasswordResetToken {
	for _, t := range s.db.resets {
		if t.Email == normEmail(email) && t.Token == code && keep(t) {
			return t
		}
	}
	return nil
}

func (s *ResetTokens) Exists(ctx context.Context, email, code string, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.match(email, code, func(t *model.PasswordResetToken) bool {
		return !t.IsUsed && t.ExpiresAt.After(now)
	}) != nil, nil
}

func (s *ResetTokens) MarkUsed(ctx context.Context, email, code string, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t := s.match(email, code, func(t *model.PasswordResetToken) bool { return !t.IsUsed })
	if t == nil {
		return false, nil
	}
	used := now
	t.IsUsed = true
	t.UsedAt = &used
	return true, nil
}

func (s *ResetTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, t := range s.db.resets {
		if t.ExpiresAt.Before(now) {
			delete(s.db.resets, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored reset codes.
func (s *ResetTokens) Len() int {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.resets)
}

type Refresh struct{ db *DB }

func (s *Refresh) Store(ctx context.Context, userID int64, tokenHash string, exp time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.refresh[tokenHash] = &refreshRow{userID: userID, expiresAt: exp}
	return nil
}

func (s *Refresh) Validate(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	row, ok := s.db.refresh[tokenHash]
	if !ok || row.revoked || !row.expiresAt.After(now) {
		return 0, repository.ErrNotFound
	}
	return row.userID, nil
}

func (s *Refresh) Revoke(ctx context.Context, tokenHash string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if row, ok := s.db.refresh[tokenHash]; ok {
		row.revoked = true
	}
	return nil
}

func (s *Refresh) RevokeAllForUser(ctx context.Context, userID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, row := range s.db.refresh {
		if row.userID == userID {
			row.revoked = true
		}
	}
	return nil
}
