package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/queue"
	"github.com/iliyamo/access-control-api/internal/repository"
)

func TestCreateInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.invitations.now = func() time.Time { return now }

	inv, err := f.invitations.Create(ctx, CreateInvitationInput{
		Email:     " New@Example.com",
		RoleID:    3,
		InvitedBy: root.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", inv.Email)
	assert.Equal(t, now.AddDate(0, 0, 7), inv.ExpiresAt)
	assert.Equal(t, model.RolePropertyAdmin, inv.RoleName)
	assert.Equal(t, "Root Admin", inv.InvitedByName)
	assert.False(t, inv.IsUsed)

	ev, ok := f.pub.last().event.(queue.AccountEvent)
	require.True(t, ok)
	assert.Equal(t, queue.EventInvitationCreated, ev.Type)
	assert.Equal(t, inv.ID, ev.InvitationID)

	t.Run("custom expiry", func(t *testing.T) {
		inv, err := f.invitations.Create(ctx, CreateInvitationInput{
			Email: "short@example.com", RoleID: 2, InvitedBy: root.ID, ExpiryDays: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 0, 1), inv.ExpiresAt)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.invitations.Create(ctx, CreateInvitationInput{Email: "a@example.com", RoleID: 99, InvitedBy: root.ID})
		requireKind(t, err, KindNotFound)
	})

	t.Run("missing email", func(t *testing.T) {
		_, err := f.invitations.Create(ctx, CreateInvitationInput{RoleID: 2, InvitedBy: root.ID})
		requireKind(t, err, KindValidation)
	})

	t.Run("negative expiry", func(t *testing.T) {
		_, err := f.invitations.Create(ctx, CreateInvitationInput{
			Email: "a@example.com", RoleID: 2, InvitedBy: root.ID, ExpiryDays: -1,
		})
		requireKind(t, err, KindValidation)
	})
}

func TestReissueReplacesUnusedInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()

	first := f.invite(t, "twice@example.com", 2, root)
	second := f.invite(t, "twice@example.com", 3, root)

	_, err := f.invitations.Get(ctx, first.ID)
	requireKind(t, err, KindNotFound)

	valid, err := f.invitations.GetValid(ctx, "twice@example.com")
	require.NoError(t, err)
	require.NotNil(t, valid)
	assert.Equal(t, second.ID, valid.ID)
	assert.Equal(t, int64(3), valid.RoleID)

	all, err := f.invitations.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCheckInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()

	res, err := f.invitations.Check(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, res.IsInvited)
	assert.Nil(t, res.ExpiresAt)

	inv := f.invite(t, "check@example.com", 4, root)
	res, err = f.invitations.Check(ctx, "CHECK@example.com")
	require.NoError(t, err)
	assert.True(t, res.IsInvited)
	assert.False(t, res.IsExpired)
	assert.Equal(t, model.RoleSecurityAdmin, res.RoleName)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, inv.ExpiresAt, *res.ExpiresAt)

	// Checking never consumes.
	valid, err := f.invitations.GetValid(ctx, "check@example.com")
	require.NoError(t, err)
	require.NotNil(t, valid)

	f.invitations.now = func() time.Time { return inv.ExpiresAt.Add(time.Second) }
	res, err = f.invitations.Check(ctx, "check@example.com")
	require.NoError(t, err)
	assert.True(t, res.IsInvited)
	assert.True(t, res.IsExpired)
}

func TestMarkInvitationUsedOnce(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()
	inv := f.invite(t, "once@example.com", 2, root)

	ok, err := f.invitations.MarkUsed(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.invitations.MarkUsed(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.invitations.MarkUsed(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := f.invitations.Check(ctx, "once@example.com")
	require.NoError(t, err)
	assert.False(t, res.IsInvited)
}

func TestDeleteInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()
	inv := f.invite(t, "gone@example.com", 2, root)

	require.NoError(t, f.invitations.Delete(ctx, inv.ID))
	requireKind(t, f.invitations.Delete(ctx, inv.ID), KindNotFound)
}

type pendingRace struct{ InvitationStore }

func (pendingRace) Create(context.Context, *model.Invitation) error {
	return repository.ErrPendingInvitation
}

func TestCreateInvitationLosesPendingRace(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	svc := NewInvitations(pendingRace{f.db.Invitations()}, f.db.Roles(), f.pub, f.log, 7)

	_, err := svc.Create(context.Background(), CreateInvitationInput{Email: "dup@example.com", RoleID: 2, InvitedBy: root.ID})
	requireKind(t, err, KindConflict)
	assert.Equal(t, "an invitation for this email already exists", err.(*Error).Message)
}
