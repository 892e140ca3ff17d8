package service

import (
	"context"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
)

// The store interfaces below are satisfied by the MySQL repositories in
// internal/repository and by the in-memory stores in
// internal/repository/memstore. Lookups of missing rows return
// repository.ErrNotFound.

type UserStore interface {
	Count(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context, roleID int64) (int64, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Create(ctx context.Context, u *model.User) error
	Provision(ctx context.Context, u *model.User, adm model.Admission, now time.Time) error
	Update(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetRole(ctx context.Context, id, roleID int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetProfilePicture(ctx context.Context, id int64, url string) error
	Delete(ctx context.Context, id int64) error
}

type RoleStore interface {
	List(ctx context.Context) ([]model.Role, error)
	GetByID(ctx context.Context, id int64) (*model.Role, error)
	NameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, r *model.Role) error
	Update(ctx context.Context, r *model.Role) error
	Delete(ctx context.Context, id int64) error
	SetHierarchy(ctx context.Context, id int64, parentID *int64, level int) error
	CountChildren(ctx context.Context, id int64) (int64, error)
	ReplacePrivileges(ctx context.Context, roleID int64, privilegeIDs []int64) error
	Privileges(ctx context.Context, roleID int64) ([]model.Privilege, error)
	RemovePrivilege(ctx context.Context, roleID, privilegeID int64) (bool, error)
}

type PrivilegeStore interface {
	List(ctx context.Context) ([]model.Privilege, error)
	GetByID(ctx context.Context, id int64) (*model.Privilege, error)
	Create(ctx context.Context, p *model.Privilege) error
	Update(ctx context.Context, p *model.Privilege) error
	Delete(ctx context.Context, id int64) error
	CountExisting(ctx context.Context, ids []int64) (int, error)
}

type InvitationStore interface {
	Create(ctx context.Context, inv *model.Invitation) error
	GetByID(ctx context.Context, id int64) (*model.Invitation, error)
	List(ctx context.Context) ([]model.Invitation, error)
	FindValid(ctx context.Context, email string, now time.Time) (*model.Invitation, error)
	LatestUnused(ctx context.Context, email string) (*model.Invitation, error)
	Latest(ctx context.Context, email string) (*model.Invitation, error)
	MarkUsed(ctx context.Context, id int64, now time.Time) (bool, error)
	Delete(ctx context.Context, id int64) error
	CountByRole(ctx context.Context, roleID int64) (int64, error)
}

type ResetTokenStore interface {
	Replace(ctx context.Context, t *model.PasswordResetToken) error
	Exists(ctx context.Context, email, code string, now time.Time) (bool, error)
	MarkUsed(ctx context.Context, email, code string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PolicyStore interface {
	ActiveByType(ctx context.Context, typ string) (*model.Policy, error)
	GetByID(ctx context.Context, id int64) (*model.Policy, error)
	List(ctx context.Context) ([]model.Policy, error)
	Create(ctx context.Context, p *model.Policy) error
	Update(ctx context.Context, p *model.Policy) error
	Delete(ctx context.Context, id int64) error
}

type RefreshStore interface {
	Store(ctx context.Context, userID int64, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, tokenHash string, now time.Time) (int64, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// Publisher hands domain events to the message broker. Implementations must
// be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, queue string, event any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// Clock returns the current time. Tests replace it to pin expiry checks.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
