package model

import "time"

// PasswordResetToken is a one-time numeric code sent out of band.
type PasswordResetToken struct {
	ID        int64
	Email     string
	Token     string
	IsUsed    bool
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedOnly
}
