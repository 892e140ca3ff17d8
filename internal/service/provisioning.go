package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/queue"
	"github.com/iliyamo/access-control-api/internal/repository"
	"github.com/iliyamo/access-control-api/internal/utils"
)

// bootstrapGrantTTL mirrors the lifetime of a regular invitation issued for
// the first account. The grant is never stored, so it only bounds the
// signup request itself.
const bootstrapGrantTTL = 24 * time.Hour

// Provisioning turns signup requests into accounts. Beyond the first account
// of a deployment, every signup must present an email holding a valid
// invitation, which is consumed in the same transaction that creates the
// user.
type Provisioning struct {
	users       UserStore
	invitations InvitationStore
	sessions    *Sessions
	pub         Publisher
	log         *logrus.Logger
	cost        int
	topRoleID   int64
	now         Clock
}

type ProvisioningConfig struct {
	BcryptCost int
	TopRoleID  int64
}

func NewProvisioning(users UserStore, invitations InvitationStore, sessions *Sessions, pub Publisher,
	log *logrus.Logger, cfg ProvisioningConfig) *Provisioning {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Provisioning{
		users:       users,
		invitations: invitations,
		sessions:    sessions,
		pub:         pub,
		log:         log,
		cost:        cfg.BcryptCost,
		topRoleID:   cfg.TopRoleID,
		now:         systemClock,
	}
}

type SignupInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
}

// ExternalIdentity is an identity already verified by a third-party
// provider. The token exchange with the provider happens elsewhere.
type ExternalIdentity struct {
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	DisplayName   string
	PictureURL    string
	ProviderID    string
}

// Signup creates an account and signs it in.
//
// The first account of an empty deployment is admitted by a bootstrap grant
// for the top-level role and becomes super admin. Every later account needs
// an email with a valid invitation and receives the invitation's role.
// Phone-only signup is therefore limited to the bootstrap account.
func (p *Provisioning) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	phone := strings.TrimSpace(in.PhoneNumber)
	if email == "" && phone == "" {
		return nil, validation("email or phone number is required", "email", "phoneNumber")
	}
	if in.Password == "" {
		return nil, validation("password is required", "password")
	}
	if email != "" {
		exists, err := p.users.EmailExists(ctx, email)
		if err != nil {
			return nil, internal("signup failed", err)
		}
		if exists {
			return nil, conflict("User already exists")
		}
	}
	if phone != "" {
		exists, err := p.users.PhoneExists(ctx, phone)
		if err != nil {
			return nil, internal("signup failed", err)
		}
		if exists {
			return nil, conflict("phone number is already registered")
		}
	}

	adm, err := p.admit(ctx, email)
	if err != nil {
		return nil, err
	}

	hash, err := hashPassword(in.Password, p.cost, "password", "signup failed")
	if err != nil {
		return nil, err
	}
	u := &model.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := p.provision(ctx, u, adm); err != nil {
		return nil, err
	}

	login := email
	if login == "" {
		login = phone
	}
	canonical, err := p.users.GetByLogin(ctx, login)
	if err != nil || !utils.VerifyPassword(canonical.PasswordHash, in.Password) {
		p.log.WithError(err).WithField("user_id", u.ID).Error("signup: created user could not be re-authenticated")
		return nil, internal("signup failed", err)
	}
	return p.sessions.Issue(ctx, canonical)
}

// SignupExternal signs in an externally verified identity, creating the
// account under the same invitation rules as Signup when it does not exist
// yet. The local password of such accounts is random and never revealed.
func (p *Provisioning) SignupExternal(ctx context.Context, id ExternalIdentity) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, validation("email is required", "email")
	}
	if !id.EmailVerified {
		return nil, unauthenticated("email is not verified by the identity provider")
	}

	existing, err := p.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsActive {
			return nil, unauthenticated("account is deactivated")
		}
		if id.PictureURL != "" && id.PictureURL != existing.ProfilePicture {
			if err := p.users.SetProfilePicture(ctx, existing.ID, id.PictureURL); err != nil {
				p.log.WithError(err).WithField("user_id", existing.ID).Warn("refresh profile picture failed")
			} else {
				existing.ProfilePicture = id.PictureURL
			}
		}
		return p.sessions.Issue(ctx, existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internal("external login failed", err)
	}

	adm, err := p.admit(ctx, email)
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(utils.RandomPassword(), p.cost)
	if err != nil {
		return nil, internal("external login failed", err)
	}
	first, last := splitName(id, email)
	u := &model.User{
		FirstName:      first,
		LastName:       last,
		Email:          email,
		PasswordHash:   hash,
		ProfilePicture: id.PictureURL,
		IsActive:       true,
	}
	if err := p.provision(ctx, u, adm); err != nil {
		return nil, err
	}
	canonical, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		p.log.WithError(err).WithField("user_id", u.ID).Error("external signup: created user vanished")
		return nil, internal("signup failed", err)
	}
	return p.sessions.Issue(ctx, canonical)
}

// admit decides under which authority a new account for email is created.
func (p *Provisioning) admit(ctx context.Context, email string) (model.Admission, error) {
	count, err := p.users.Count(ctx)
	if err != nil {
		return nil, internal("signup failed", err)
	}
	now := p.now()
	if count == 0 {
		return model.BootstrapGrant{RoleID: p.topRoleID, ExpiresAt: now.Add(bootstrapGrantTTL)}, nil
	}
	if email == "" {
		return nil, validation("email is required to sign up with an invitation", "email")
	}
	inv, err := p.invitations.FindValid(ctx, email, now)
	if errors.Is(err, repository.ErrNotFound) {
		p.log.WithFields(logrus.Fields{
			"email":  email,
			"reason": rejectionReason(ctx, p.invitations, email, now),
		}).Info("signup rejected: no valid invitation")
		return nil, notInvited()
	}
	if err != nil {
		return nil, internal("signup failed", err)
	}
	return model.PersistedInvitation{Invitation: inv}, nil
}

// provision stores u under adm and publishes the signup event.
func (p *Provisioning) provision(ctx context.Context, u *model.User, adm model.Admission) error {
	_, bootstrap := adm.(model.BootstrapGrant)
	u.RoleID = adm.GrantedRoleID()
	u.IsSuperAdmin = bootstrap
	now := p.now()

	err := p.users.Provision(ctx, u, adm, now)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return conflict("User already exists")
	case errors.Is(err, repository.ErrPhoneExists):
		return conflict("phone number is already registered")
	case errors.Is(err, repository.ErrBootstrapTaken):
		// Another request claimed the bootstrap grant first.
		p.log.WithField("email", u.Email).Info("signup rejected: bootstrap already claimed")
		return notInvited()
	case errors.Is(err, repository.ErrInvitationConsumed):
		p.log.WithFields(logrus.Fields{"email": u.Email, "reason": ReasonUsed}).
			Info("signup rejected: invitation consumed concurrently")
		return notInvited()
	case err != nil:
		return internal("signup failed", err)
	}

	event := queue.AccountEvent{
		Type:       queue.EventUserSignedUp,
		UserID:     u.ID,
		Email:      u.Email,
		RoleID:     u.RoleID,
		OccurredAt: now,
	}
	if inv, ok := adm.(model.PersistedInvitation); ok {
		event.InvitationID = inv.Invitation.ID
		event.ActorID = inv.Invitation.InvitedByUserID
	}
	if bootstrap {
		event.Type = queue.EventUserBootstrapped
	}
	p.log.WithFields(logrus.Fields{
		"user_id": u.ID, "role_id": u.RoleID, "bootstrap": bootstrap, "invitation_id": event.InvitationID,
	}).Info("user provisioned")
	publish(ctx, p.pub, p.log, queue.EventsQueue, event)
	return nil
}

func splitName(id ExternalIdentity, email string) (string, string) {
	first := strings.TrimSpace(id.FirstName)
	last := strings.TrimSpace(id.LastName)
	if first == "" && last == "" {
		parts := strings.Fields(id.DisplayName)
		if len(parts) > 0 {
			first = parts[0]
			last = strings.Join(parts[1:], " ")
		}
	}
	if first == "" {
		first = email
		if at := strings.IndexByte(email, '@'); at > 0 {
			first = email[:at]
		}
	}
	return first, last
}
