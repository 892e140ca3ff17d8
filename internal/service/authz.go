package service

import (
	"context"
	"errors"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/repository"
)

// Authorizer answers role membership questions against stored state.
// Matching is an exact, case-sensitive comparison of role names; a parent
// role does not satisfy a check for one of its sub-roles.
type Authorizer struct {
	users UserStore
}

func NewAuthorizer(users UserStore) *Authorizer { return &Authorizer{users: users} }

// HasRole reports whether the user currently holds roleName. Unknown users
// hold no role.
func (a *Authorizer) HasRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	u, err := a.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internal("role check failed", err)
	}
	return u.RoleName == roleName, nil
}

// PrincipalFor builds the principal carried by a user's session.
func PrincipalFor(u *model.User) model.Principal {
	return model.Principal{
		UserID:   u.ID,
		RoleID:   u.RoleID,
		RoleName: u.RoleName,
		Email:    u.Email,
		Name:     u.FullName(),
	}
}

// RoleAllowed reports whether p's role is literally in allowed.
func RoleAllowed(p model.Principal, allowed ...string) bool {
	for _, r := range allowed {
		if p.RoleName == r {
			return true
		}
	}
	return false
}
