package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository/memstore"
	"github.com/iliyamo/access-control-api/internal/utils"
)

var testTokens = utils.TokenConfig{
	Secret: strings.Repeat("s", 32),
	Issuer: "access-control-api",
	TTL:    time.Hour,
}

type published struct {
	queue string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(_ context.Context, queue string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{queue: queue, event: event})
	return nil
}

func (r *recordingPublisher) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return published{}
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	db          *memstore.DB
	pub         *recordingPublisher
	log         *logrus.Logger
	hook        *test.Hook
	sessions    *Sessions
	provision   *Provisioning
	accounts    *Accounts
	invitations *Invitations
	rbac        *RBAC
	resets      *PasswordReset
	policies    *Policies
	authz       *Authorizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.Seeded()
	log, hook := test.NewNullLogger()
	pub := &recordingPublisher{}
	users := db.Users()

	sessions := NewSessions(testTokens, 24*time.Hour, db.RefreshTokens(), users)
	accounts := NewAccounts(users, db.Roles(), sessions, pub, log,
		AccountsConfig{BcryptCost: bcrypt.MinCost, DefaultRoleID: 2})
	return &fixture{
		db:        db,
		pub:       pub,
		log:       log,
		hook:      hook,
		sessions:  sessions,
		provision: NewProvisioning(users, db.Invitations(), sessions, pub, log,
			ProvisioningConfig{BcryptCost: bcrypt.MinCost, TopRoleID: 1}),
		accounts:    accounts,
		invitations: NewInvitations(db.Invitations(), db.Roles(), pub, log, 7),
		rbac:        NewRBAC(db.Roles(), db.Privileges(), users, db.Invitations(), log),
		resets:      NewPasswordReset(db.ResetTokens(), users, accounts, pub, log, 15*time.Minute),
		policies:    NewPolicies(db.Policies(), nil, log),
		authz:       NewAuthorizer(users),
	}
}

// bootstrap signs up the first account, which becomes super admin.
func (f *fixture) bootstrap(t *testing.T) *model.User {
	t.Helper()
	s, err := f.provision.Signup(context.Background(), SignupInput{
		FirstName: "Root",
		LastName:  "Admin",
		Email:     "root@example.com",
		Password:  "root-password",
	})
	require.NoError(t, err)
	return s.User
}

// invite issues an invitation for email to roleID on behalf of by.
func (f *fixture) invite(t *testing.T, email string, roleID int64, by *model.User) *model.Invitation {
	t.Helper()
	inv, err := f.invitations.Create(context.Background(), CreateInvitationInput{
		Email:     email,
		RoleID:    roleID,
		InvitedBy: by.ID,
	})
	require.NoError(t, err)
	return inv
}

func requireKind(t *testing.T, err error, k Kind) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, IsKind(err, k), "want %s, got %v", k, err)
}
