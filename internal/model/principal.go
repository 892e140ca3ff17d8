package model

// Principal is the authenticated caller attached to a request once its
// session token has been validated.
type Principal struct {
	UserID   int64
	RoleID   int64
	RoleName string
	Email    string
	Name     string
	TokenID  string
}
