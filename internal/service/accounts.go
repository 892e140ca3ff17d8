package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/queue"
	"github.com/iliyamo/access-control-api/internal/repository"
	"github.com/iliyamo/access-control-api/internal/utils"
)

// Accounts covers credentials and administrative user management.
type Accounts struct {
	users         UserStore
	roles         RoleStore
	sessions      *Sessions
	pub           Publisher
	log           *logrus.Logger
	cost          int
	defaultRoleID int64
	now           Clock
}

type AccountsConfig struct {
	BcryptCost    int
	DefaultRoleID int64
}

func NewAccounts(users UserStore, roles RoleStore, sessions *Sessions, pub Publisher, log *logrus.Logger,
	cfg AccountsConfig) *Accounts {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Accounts{
		users:         users,
		roles:         roles,
		sessions:      sessions,
		pub:           pub,
		log:           log,
		cost:          cfg.BcryptCost,
		defaultRoleID: cfg.DefaultRoleID,
		now:           systemClock,
	}
}

// Authenticate checks a login (email or phone number) and password.
func (s *Accounts) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.users.GetByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, unauthenticated("invalid credentials")
	}
	if err != nil {
		return nil, internal("login failed", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, unauthenticated("invalid credentials")
	}
	if !u.IsActive {
		return nil, unauthenticated("account is deactivated")
	}
	return u, nil
}

func (s *Accounts) Login(ctx context.Context, login, password string) (*Session, error) {
	u, err := s.Authenticate(ctx, login, password)
	if err != nil {
		return nil, err
	}
	return s.sessions.Issue(ctx, u)
}

// ChangePassword replaces the password after checking the current one.
func (s *Accounts) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return validation("current password is incorrect", "currentPassword")
	}
	return s.setPassword(ctx, u.ID, next)
}

// ResetPassword stores a new password for the account behind email. It does
// not check any reset code; callers verify the code first.
func (s *Accounts) ResetPassword(ctx context.Context, email, next string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("user not found")
	}
	if err != nil {
		return internal("reset password failed", err)
	}
	return s.setPassword(ctx, u.ID, next)
}

func (s *Accounts) setPassword(ctx context.Context, id int64, plain string) error {
	if plain == "" {
		return validation("new password is required", "newPassword")
	}
	hash, err := hashPassword(plain, s.cost, "newPassword", "update password failed")
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return internal("update password failed", err)
	}
	s.log.WithField("user_id", id).Info("password changed")
	return nil
}

// hashPassword reports an over-long password as a validation failure on
// field; any other hashing error is internal.
func hashPassword(plain string, cost int, field, op string) (string, error) {
	hash, err := utils.HashPassword(plain, cost)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return "", validation("password must be at most 72 bytes", field)
	}
	if err != nil {
		return "", internal(op, err)
	}
	return hash, nil
}

func (s *Accounts) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, internal("list users failed", err)
	}
	return users, nil
}

func (s *Accounts) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user not found")
	}
	if err != nil {
		return nil, internal("load user failed", err)
	}
	return u, nil
}

func (s *Accounts) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user not found")
	}
	if err != nil {
		return nil, internal("load user failed", err)
	}
	return u, nil
}

type CreateUserInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
	RoleID      int64
	IsActive    *bool
}

// Create adds an account directly, without an invitation. Only
// administrators reach this path.
func (s *Accounts) Create(ctx context.Context, in CreateUserInput, actorID int64) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	phone := strings.TrimSpace(in.PhoneNumber)
	if email == "" && phone == "" {
		return nil, validation("email or phone number is required", "email", "phoneNumber")
	}
	if in.Password == "" {
		return nil, validation("password is required", "password")
	}
	roleID := in.RoleID
	if roleID == 0 {
		roleID = s.defaultRoleID
	}
	if err := s.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password, s.cost, "password", "create user failed")
	if err != nil {
		return nil, err
	}
	u := &model.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		IsActive:     in.IsActive == nil || *in.IsActive,
		RoleID:       roleID,
	}
	switch err := s.users.Create(ctx, u); {
	case errors.Is(err, repository.ErrEmailExists):
		return nil, conflict("User already exists")
	case errors.Is(err, repository.ErrPhoneExists):
		return nil, conflict("phone number is already registered")
	case err != nil:
		return nil, internal("create user failed", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "role_id": roleID, "actor_id": actorID}).Info("user created")
	publish(ctx, s.pub, s.log, queue.EventsQueue, queue.AccountEvent{
		Type:       queue.EventUserCreated,
		UserID:     u.ID,
		Email:      u.Email,
		RoleID:     roleID,
		ActorID:    actorID,
		OccurredAt: s.now(),
	})
	return s.Get(ctx, u.ID)
}

// UpdateUserInput holds optional profile changes; nil fields are left as is.
type UpdateUserInput struct {
	FirstName      *string
	LastName       *string
	PhoneNumber    *string
	ProfilePicture *string
}

func (s *Accounts) Update(ctx context.Context, id int64, in UpdateUserInput) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.ProfilePicture != nil {
		u.ProfilePicture = strings.TrimSpace(*in.ProfilePicture)
	}
	if !u.HasContact() {
		return nil, validation("a user needs an email or a phone number", "phoneNumber")
	}
	switch err := s.users.Update(ctx, u); {
	case errors.Is(err, repository.ErrPhoneExists):
		return nil, conflict("phone number is already registered")
	case err != nil:
		return nil, internal("update user failed", err)
	}
	return u, nil
}

func (s *Accounts) Delete(ctx context.Context, id, actorID int64) error {
	if id == actorID {
		return validation("you cannot delete your own account")
	}
	switch err := s.users.Delete(ctx, id); {
	case errors.Is(err, repository.ErrNotFound):
		return notFound("user not found")
	case errors.Is(err, repository.ErrReferenced):
		return conflict("user has issued invitations and cannot be deleted")
	case err != nil:
		return internal("delete user failed", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "actor_id": actorID}).Info("user deleted")
	return nil
}

// ToggleStatus flips the activation flag.
func (s *Accounts) ToggleStatus(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetStatus(ctx, id, !u.IsActive)
}

func (s *Accounts) SetStatus(ctx context.Context, id int64, active bool) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return nil, internal("update status failed", err)
	}
	u.IsActive = active
	return u, nil
}

// AssignRole replaces the user's single role.
func (s *Accounts) AssignRole(ctx context.Context, id, roleID int64) (*model.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.users.SetRole(ctx, id, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("role not found")
		}
		return nil, internal("assign role failed", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "role_id": roleID}).Info("role assigned")
	return s.Get(ctx, id)
}

// RemoveRole puts the user back on the default role. Users always hold
// exactly one role.
func (s *Accounts) RemoveRole(ctx context.Context, id int64) (*model.User, error) {
	return s.AssignRole(ctx, id, s.defaultRoleID)
}

func (s *Accounts) requireRole(ctx context.Context, roleID int64) error {
	_, err := s.roles.GetByID(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("role not found")
	}
	if err != nil {
		return internal("load role failed", err)
	}
	return nil
}
