// Package queue carries account and invitation events over RabbitMQ.
package queue

import "time"

// Queue names. Both queues are durable.
const (
	EventsQueue        = "auth.events"
	PasswordResetQueue = "auth.password_reset"
)

// Account event types published on EventsQueue.
const (
	EventUserSignedUp      = "user.signed_up"
	EventUserBootstrapped  = "user.bootstrapped"
	EventUserCreated       = "user.created"
	EventInvitationCreated = "invitation.created"
)

// AccountEvent is published when an account or invitation is created. It
// never carries credentials.
type AccountEvent struct {
	Type         string    `json:"type"`
	UserID       int64     `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	RoleID       int64     `json:"role_id,omitempty"`
	InvitationID int64     `json:"invitation_id,omitempty"`
	ActorID      int64     `json:"actor_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PasswordResetRequested asks the mail sender to deliver a reset code.
type PasswordResetRequested struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
