package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/queue"
	"github.com/iliyamo/access-control-api/internal/utils"
)

func TestSignupBootstrapsFirstAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.provision.Signup(ctx, SignupInput{
		FirstName: "Root",
		Email:     "  Root@Example.com ",
		Password:  "root-password",
	})
	require.NoError(t, err)

	assert.Equal(t, "root@example.com", s.User.Email)
	assert.Equal(t, int64(1), s.User.RoleID)
	assert.Equal(t, model.RoleSuperAdmin, s.User.RoleName)
	assert.True(t, s.User.IsSuperAdmin)
	assert.NotEmpty(t, s.Access.Token)
	assert.NotEmpty(t, s.Refresh.Raw)

	claims, err := utils.ParseAccessToken(testTokens, s.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, claims.UserID)
	assert.Equal(t, model.RoleSuperAdmin, claims.Role)

	last := f.pub.last()
	assert.Equal(t, queue.EventsQueue, last.queue)
	ev, ok := last.event.(queue.AccountEvent)
	require.True(t, ok)
	assert.Equal(t, queue.EventUserBootstrapped, ev.Type)
	assert.Zero(t, ev.InvitationID)
}

func TestSignupWithPhoneOnlyBootstrap(t *testing.T) {
	f := newFixture(t)

	s, err := f.provision.Signup(context.Background(), SignupInput{PhoneNumber: "+15550100", Password: "pw"})
	require.NoError(t, err)
	assert.Empty(t, s.User.Email)
	assert.Equal(t, "+15550100", s.User.PhoneNumber)
	assert.True(t, s.User.IsSuperAdmin)
}

func TestSignupRequiresInvitationAfterBootstrap(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	ctx := context.Background()

	_, err := f.provision.Signup(ctx, SignupInput{Email: "stranger@example.com", Password: "pw"})
	requireKind(t, err, KindInvitationInvalid)
	assert.Equal(t, NotInvitedMessage, err.(*Error).Message)
	assert.Equal(t, ReasonAbsent, f.hook.LastEntry().Data["reason"])

	t.Run("phone only", func(t *testing.T) {
		_, err := f.provision.Signup(ctx, SignupInput{PhoneNumber: "+15550199", Password: "pw"})
		requireKind(t, err, KindValidation)
	})

	t.Run("no second super admin", func(t *testing.T) {
		n, err := f.db.Users().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestSignupConsumesInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()
	inv := f.invite(t, "Guard@Example.com", 4, root)

	s, err := f.provision.Signup(ctx, SignupInput{
		FirstName: "Gus",
		Email:     "guard@example.com",
		Password:  "guard-password",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.User.RoleID)
	assert.Equal(t, model.RoleSecurityAdmin, s.User.RoleName)
	assert.False(t, s.User.IsSuperAdmin)

	stored, err := f.invitations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsUsed)
	require.NotNil(t, stored.UsedAt)

	ev, ok := f.pub.last().event.(queue.AccountEvent)
	require.True(t, ok)
	assert.Equal(t, queue.EventUserSignedUp, ev.Type)
	assert.Equal(t, inv.ID, ev.InvitationID)
	assert.Equal(t, root.ID, ev.ActorID)

	t.Run("same email again", func(t *testing.T) {
		_, err := f.provision.Signup(ctx, SignupInput{Email: "guard@example.com", Password: "x"})
		requireKind(t, err, KindConflict)
		assert.Equal(t, "User already exists", err.(*Error).Message)
	})

	t.Run("used invitation is not valid", func(t *testing.T) {
		got, err := f.invitations.GetValid(ctx, "guard@example.com")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestProvisionRejectsConsumedInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()
	inv := f.invite(t, "late@example.com", 2, root)

	// A concurrent signup consumed the invitation after admit found it.
	ok, err := f.invitations.MarkUsed(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, ok)

	u := &model.User{Email: "late@example.com", PasswordHash: "x", IsActive: true}
	err = f.provision.provision(ctx, u, model.PersistedInvitation{Invitation: inv})
	requireKind(t, err, KindInvitationInvalid)
	assert.Equal(t, ReasonUsed, f.hook.LastEntry().Data["reason"])
}

func TestProvisionRejectsSecondBootstrap(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	u := &model.User{Email: "other@example.com", PasswordHash: "x", IsActive: true}
	err := f.provision.provision(context.Background(), u, model.BootstrapGrant{RoleID: 1})
	requireKind(t, err, KindInvitationInvalid)
}

func TestConcurrentSignupsConsumeInvitationOnce(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()
	inv := f.invite(t, "shared@example.com", 2, root)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := &model.User{Email: fmt.Sprintf("racer%d@example.com", i), PasswordHash: "x", IsActive: true}
			errs[i] = f.provision.provision(ctx, u, model.PersistedInvitation{Invitation: inv})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		requireKind(t, err, KindInvitationInvalid)
	}
	assert.Equal(t, 1, successes)
}

func TestConcurrentFirstSignupsBootstrapOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	sessions := make([]*Session, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = f.provision.Signup(ctx, SignupInput{
				FirstName: "First",
				Email:     fmt.Sprintf("first%d@example.com", i),
				Password:  "first-password",
			})
		}(i)
	}
	wg.Wait()

	admins := 0
	for i, err := range errs {
		if err == nil {
			admins++
			assert.Equal(t, model.RoleSuperAdmin, sessions[i].User.RoleName)
			continue
		}
		requireKind(t, err, KindInvitationInvalid)
	}
	assert.Equal(t, 1, admins)

	count, err := f.db.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSignupRejectsOverlongPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.provision.Signup(context.Background(), SignupInput{
		Email:    "a@example.com",
		Password: strings.Repeat("p", 80),
	})
	requireKind(t, err, KindValidation)
	assert.Equal(t, []string{"password"}, err.(*Error).Fields)
}

func TestSignupRejectsExpiredInvitation(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	f.db.Invitations().Put(model.Invitation{
		Email:           "old@example.com",
		RoleID:          2,
		InvitedByUserID: root.ID,
		ExpiresAt:       time.Now().Add(-time.Hour),
	})

	_, err := f.provision.Signup(context.Background(), SignupInput{Email: "old@example.com", Password: "pw"})
	requireKind(t, err, KindInvitationInvalid)
	assert.Equal(t, NotInvitedMessage, err.(*Error).Message)
	assert.Equal(t, ReasonExpired, f.hook.LastEntry().Data["reason"])
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.provision.Signup(ctx, SignupInput{Password: "pw"})
	requireKind(t, err, KindValidation)

	_, err = f.provision.Signup(ctx, SignupInput{Email: "a@example.com"})
	requireKind(t, err, KindValidation)
	assert.Equal(t, []string{"password"}, err.(*Error).Fields)
}

func TestSignupExternal(t *testing.T) {
	f := newFixture(t)
	root := f.bootstrap(t)
	ctx := context.Background()

	t.Run("unverified email", func(t *testing.T) {
		_, err := f.provision.SignupExternal(ctx, ExternalIdentity{Email: "x@example.com"})
		requireKind(t, err, KindUnauthenticated)
	})

	t.Run("existing account signs in", func(t *testing.T) {
		s, err := f.provision.SignupExternal(ctx, ExternalIdentity{
			Email:         "ROOT@example.com",
			EmailVerified: true,
			PictureURL:    "https://img.example.com/root.png",
		})
		require.NoError(t, err)
		assert.Equal(t, root.ID, s.User.ID)
		assert.Equal(t, "https://img.example.com/root.png", s.User.ProfilePicture)
	})

	t.Run("not invited", func(t *testing.T) {
		_, err := f.provision.SignupExternal(ctx, ExternalIdentity{Email: "new@example.com", EmailVerified: true})
		requireKind(t, err, KindInvitationInvalid)
	})

	t.Run("invited account is created", func(t *testing.T) {
		f.invite(t, "ext@example.com", 3, root)
		s, err := f.provision.SignupExternal(ctx, ExternalIdentity{
			Email:         "ext@example.com",
			EmailVerified: true,
			DisplayName:   "Ada King Lovelace",
		})
		require.NoError(t, err)
		assert.Equal(t, "Ada", s.User.FirstName)
		assert.Equal(t, "King Lovelace", s.User.LastName)
		assert.Equal(t, model.RolePropertyAdmin, s.User.RoleName)
	})
}

func TestSplitName(t *testing.T) {
	first, last := splitName(ExternalIdentity{}, "jane.doe@example.com")
	assert.Equal(t, "jane.doe", first)
	assert.Empty(t, last)

	first, last = splitName(ExternalIdentity{FirstName: " Jane ", LastName: "Doe"}, "x@example.com")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)
}
