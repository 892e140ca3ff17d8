package model

import "time"

// Role is a named permission bundle. Roles form a forest through
// ParentRoleID; a lower HierarchyLevel means more privileged, 0 is the top.
type Role struct {
	ID             int64
	Name           string
	Description    string
	ParentRoleID   *int64
	HierarchyLevel int
	CreatedOnly
}

// Privilege is an atomic permission unit grouped by a free-text category.
type Privilege struct {
	ID          int64
	Name        string
	Description string
	Category    string
	CreatedOnly
}

// RolePrivilege links one role to one privilege.
type RolePrivilege struct {
	RoleID      int64
	PrivilegeID int64
	AssignedAt  time.Time
}

// Names of the seeded roles. Route gates compare against these literally.
const (
	RoleSuperAdmin    = "Super Admin"
	RoleNormalUser    = "Normal User"
	RolePropertyAdmin = "Property Admin"
	RoleSecurityAdmin = "Security Admin"
)
