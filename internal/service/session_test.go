package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.provision.Signup(ctx, SignupInput{Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)

	next, err := f.sessions.Refresh(ctx, first.Refresh.Raw)
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh.Raw, next.Refresh.Raw)
	assert.Equal(t, first.User.ID, next.User.ID)

	_, err = f.sessions.Refresh(ctx, first.Refresh.Raw)
	requireKind(t, err, KindUnauthenticated)

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.sessions.Refresh(ctx, "deadbeef")
		requireKind(t, err, KindUnauthenticated)
	})

	t.Run("expired token", func(t *testing.T) {
		f.sessions.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		defer func() { f.sessions.now = systemClock }()
		_, err := f.sessions.Refresh(ctx, next.Refresh.Raw)
		requireKind(t, err, KindUnauthenticated)
	})
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.provision.Signup(ctx, SignupInput{Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = f.accounts.SetStatus(ctx, s.User.ID, false)
	require.NoError(t, err)

	_, err = f.sessions.Refresh(ctx, s.Refresh.Raw)
	requireKind(t, err, KindUnauthenticated)
	assert.Equal(t, "account is deactivated", err.(*Error).Message)
}

func TestRevokeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.provision.Signup(ctx, SignupInput{Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)
	other, err := f.accounts.Login(ctx, "root@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, f.sessions.RevokeAll(ctx, s.User.ID))

	for _, raw := range []string{s.Refresh.Raw, other.Refresh.Raw} {
		_, err := f.sessions.Refresh(ctx, raw)
		requireKind(t, err, KindUnauthenticated)
	}
}
