package model

import "time"

// Invitation is an administrator-issued offer to join with a fixed role.
// RoleName and InvitedByName are joined on reads.
type Invitation struct {
	ID              int64
	Email           string
	PhoneNumber     string
	InvitedByUserID int64
	InvitedByName   string
	RoleID          int64
	RoleName        string
	IsUsed          bool
	ExpiresAt       time.Time
	UsedAt          *time.Time
	CreatedOnly
}

// IsExpired reports whether the invitation's expiry has passed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// IsValid reports whether the invitation can still be consumed at now.
func (i *Invitation) IsValid(now time.Time) bool {
	return !i.IsUsed && !i.IsExpired(now)
}

// Admission is the authority a new account is provisioned under. It is
// either a stored invitation, which must be consumed exactly once, or the
// bootstrap grant given to the very first account, which has no row.
type Admission interface {
	GrantedRoleID() int64
	admission()
}

// PersistedInvitation admits a user through a stored invitation row.
type PersistedInvitation struct {
	Invitation *Invitation
}

func (p PersistedInvitation) GrantedRoleID() int64 { return p.Invitation.RoleID }
func (PersistedInvitation) admission() {}

// BootstrapGrant admits the first account of an empty deployment. It behaves
// like an invitation with id 0 and is never stored or marked used.
type BootstrapGrant struct {
	RoleID    int64
	ExpiresAt time.Time
}

func (b BootstrapGrant) GrantedRoleID() int64 { return b.RoleID }
func (BootstrapGrant) admission() {}
