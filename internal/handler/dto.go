package handler

import (
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/service"
)

type userDTO struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email,omitempty"`
	PhoneNumber    string    `json:"phoneNumber,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	IsSuperAdmin   bool      `json:"isSuperAdmin"`
	IsActive       bool      `json:"isActive"`
	RoleID         int64     `json:"roleId"`
	RoleName       string    `json:"roleName"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toUser(u *model.User) userDTO {
	return userDTO{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		FullName:       u.FullName(),
		Email:          u.Email,
		PhoneNumber:    u.PhoneNumber,
		ProfilePicture: u.ProfilePicture,
		IsSuperAdmin:   u.IsSuperAdmin,
		IsActive:       u.IsActive,
		RoleID:         u.RoleID,
		RoleName:       u.RoleName,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func toUsers(us []model.User) []userDTO {
	out := make([]userDTO, 0, len(us))
	for i := range us {
		out = append(out, toUser(&us[i]))
	}
	return out
}

type sessionDTO struct {
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	User             userDTO   `json:"user"`
}

func toSession(s *service.Session) sessionDTO {
	return sessionDTO{
		Token:            s.Access.Token,
		ExpiresAt:        s.Access.Exp,
		RefreshToken:     s.Refresh.Raw,
		RefreshExpiresAt: s.Refresh.Exp,
		User:             toUser(s.User),
	}
}

type roleDTO struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ParentRoleID   *int64    `json:"parentRoleId"`
	HierarchyLevel int       `json:"hierarchyLevel"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toRole(r *model.Role) roleDTO {
	return roleDTO{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		ParentRoleID:   r.ParentRoleID,
		HierarchyLevel: r.HierarchyLevel,
		CreatedAt:      r.CreatedAt,
	}
}

func toRoles(rs []model.Role) []roleDTO {
	out := make([]roleDTO, 0, len(rs))
	for i := range rs {
		out = append(out, toRole(&rs[i]))
	}
	return out
}

type roleNodeDTO struct {
	roleDTO
	Children []roleNodeDTO `json:"children"`
}

func toForest(nodes []*service.RoleNode) []roleNodeDTO {
	out := make([]roleNodeDTO, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, roleNodeDTO{roleDTO: toRole(&n.Role), Children: toForest(n.Children)})
	}
	return out
}

type privilegeDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toPrivilege(p *model.Privilege) privilegeDTO {
	return privilegeDTO{ID: p.ID, Name: p.Name, Description: p.Description, Category: p.Category, CreatedAt: p.CreatedAt}
}

func toPrivileges(ps []model.Privilege) []privilegeDTO {
	out := make([]privilegeDTO, 0, len(ps))
	for i := range ps {
		out = append(out, toPrivilege(&ps[i]))
	}
	return out
}

type invitationDTO struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	InvitedByUserID int64      `json:"invitedByUserId"`
	InvitedByName   string     `json:"invitedByName"`
	RoleID          int64      `json:"roleId"`
	RoleName        string     `json:"roleName"`
	IsUsed          bool       `json:"isUsed"`
	IsExpired       bool       `json:"isExpired"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	UsedAt          *time.Time `json:"usedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toInvitation(inv *model.Invitation, now time.Time) invitationDTO {
	return invitationDTO{
		ID:              inv.ID,
		Email:           inv.Email,
		PhoneNumber:     inv.PhoneNumber,
		InvitedByUserID: inv.InvitedByUserID,
		InvitedByName:   inv.InvitedByName,
		RoleID:          inv.RoleID,
		RoleName:        inv.RoleName,
		IsUsed:          inv.IsUsed,
		IsExpired:       inv.IsExpired(now),
		ExpiresAt:       inv.ExpiresAt,
		UsedAt:          inv.UsedAt,
		CreatedAt:       inv.CreatedAt,
	}
}

type invitationCheckDTO struct {
	IsInvited bool       `json:"isInvited"`
	RoleName  string     `json:"roleName,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	IsExpired bool       `json:"isExpired"`
}

type policyDTO struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Version   string    `json:"version"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPolicy(p *model.Policy) policyDTO {
	return policyDTO{
		ID:        p.ID,
		Type:      p.Type,
		Content:   p.Content,
		Version:   p.Version,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
