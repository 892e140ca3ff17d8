package model

import "strings"

// User mirrors a row of the `users` table. Email and PhoneNumber are empty
// strings when the column is NULL; at least one of them is always set.
// RoleName is joined from `roles` on reads and ignored on writes.
type User struct {
	ID             int64
	FirstName      string
	LastName       string
	Email          string
	PhoneNumber    string
	PasswordHash   string
	ProfilePicture string
	IsSuperAdmin   bool
	IsActive       bool
	RoleID         int64
	RoleName       string
	Timestamps
}

// FullName joins first and last name, skipping empty parts.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasContact reports whether the user can be reached by email or phone.
func (u *User) HasContact() bool {
	return u.Email != "" || u.PhoneNumber != ""
}

// Login returns the identifier the user signs in with: the email when
// present, otherwise the phone number.
func (u *User) Login() string {
	if u.Email != "" {
		return u.Email
	}
	return u.PhoneNumber
}
