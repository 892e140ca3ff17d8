package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
	"github.com/iliyamo/access-control-api/internal/utils"
)

// Session is what a successful sign-in returns to the client.
type Session struct {
	User    *model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// Sessions mints session tokens and manages refresh tokens.
type Sessions struct {
	tokens     utils.TokenConfig
	refreshTTL time.Duration
	refresh    RefreshStore
	users      UserStore
	now        Clock
}

func NewSessions(tokens utils.TokenConfig, refreshTTL time.Duration, refresh RefreshStore, users UserStore) *Sessions {
	return &Sessions{tokens: tokens, refreshTTL: refreshTTL, refresh: refresh, users: users, now: systemClock}
}

// Issue mints an access token and a stored refresh token for u.
func (s *Sessions) Issue(ctx context.Context, u *model.User) (*Session, error) {
	now := s.now()
	access, err := utils.NewAccessToken(s.tokens, u, now)
	if err != nil {
		return nil, internal("issue session failed", err)
	}
	refresh, err := utils.NewRefreshToken(s.refreshTTL, now)
	if err != nil {
		return nil, internal("issue session failed", err)
	}
	if err := s.refresh.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, internal("issue session failed", err)
	}
	return &Session{User: u, Access: access, Refresh: refresh}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// session is issued for its owner, who must still be active.
func (s *Sessions) Refresh(ctx context.Context, raw string) (*Session, error) {
	hash := utils.HashRefreshRaw(raw)
	userID, err := s.refresh.Validate(ctx, hash, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, unauthenticated("invalid refresh token")
	}
	if err != nil {
		return nil, internal("refresh failed", err)
	}
	if err := s.refresh.Revoke(ctx, hash); err != nil {
		return nil, internal("refresh failed", err)
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, unauthenticated("invalid refresh token")
	}
	if err != nil {
		return nil, internal("refresh failed", err)
	}
	if !u.IsActive {
		return nil, unauthenticated("account is deactivated")
	}
	return s.Issue(ctx, u)
}

// RevokeAll ends every refresh session of the user. Access tokens already
// issued stay valid until they expire.
func (s *Sessions) RevokeAll(ctx context.Context, userID int64) error {
	if err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return internal("logout failed", err)
	}
	return nil
}
