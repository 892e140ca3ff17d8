package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/model"
	"github.com/iliyamo/access-control-api/internal/queue"
	"github.com/iliyamo/access-control-api/internal/repository"
)

// DefaultInvitationExpiryDays applies when a caller does not pick an expiry.
const DefaultInvitationExpiryDays = 7

// Invitations is the invitation ledger gating self-service signup.
type Invitations struct {
	store      InvitationStore
	roles      RoleStore
	pub        Publisher
	log        *logrus.Logger
	expiryDays int
	now        Clock
}

func NewInvitations(store InvitationStore, roles RoleStore, pub Publisher, log *logrus.Logger, expiryDays int) *Invitations {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = logrus.New()
	}
	if expiryDays <= 0 {
		expiryDays = DefaultInvitationExpiryDays
	}
	return &Invitations{store: store, roles: roles, pub: pub, log: log, expiryDays: expiryDays, now: systemClock}
}

type CreateInvitationInput struct {
	Email       string
	PhoneNumber string
	RoleID      int64
	ExpiryDays  int
	InvitedBy   int64
}

// InvitationCheck is the public, non-consuming view of an email's
// invitation state.
type InvitationCheck struct {
	IsInvited bool
	RoleName  string
	ExpiresAt *time.Time
	IsExpired bool
}

// Create issues an invitation expiring ExpiryDays from now. Issuing a new
// invitation replaces any unused one for the same email.
func (s *Invitations) Create(ctx context.Context, in CreateInvitationInput) (*model.Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, validation("email is required", "email")
	}
	if in.ExpiryDays < 0 {
		return nil, validation("expiry days must be positive", "expiryDays")
	}
	days := in.ExpiryDays
	if days == 0 {
		days = s.expiryDays
	}
	if _, err := s.roles.GetByID(ctx, in.RoleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("role not found")
		}
		return nil, internal("create invitation failed", err)
	}
	now := s.now()
	inv := &model.Invitation{
		Email:           email,
		PhoneNumber:     strings.TrimSpace(in.PhoneNumber),
		InvitedByUserID: in.InvitedBy,
		RoleID:          in.RoleID,
		ExpiresAt:       now.AddDate(0, 0, days),
	}
	if err := s.store.Create(ctx, inv); err != nil {
		switch {
		case errors.Is(err, repository.ErrPendingInvitation):
			return nil, conflict("an invitation for this email already exists")
		case errors.Is(err, repository.ErrNotFound):
			return nil, notFound("role or inviter not found")
		}
		return nil, internal("create invitation failed", err)
	}
	stored, err := s.store.GetByID(ctx, inv.ID)
	if err != nil {
		return nil, internal("create invitation failed", err)
	}
	s.log.WithFields(logrus.Fields{
		"invitation_id": stored.ID, "email": stored.Email, "role_id": stored.RoleID, "invited_by": in.InvitedBy,
	}).Info("invitation created")
	publish(ctx, s.pub, s.log, queue.EventsQueue, queue.AccountEvent{
		Type:         queue.EventInvitationCreated,
		Email:        stored.Email,
		RoleID:       stored.RoleID,
		InvitationID: stored.ID,
		ActorID:      in.InvitedBy,
		OccurredAt:   now,
	})
	return stored, nil
}

func (s *Invitations) List(ctx context.Context) ([]model.Invitation, error) {
	invs, err := s.store.List(ctx)
	if err != nil {
		return nil, internal("list invitations failed", err)
	}
	return invs, nil
}

func (s *Invitations) Get(ctx context.Context, id int64) (*model.Invitation, error) {
	inv, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("invitation not found")
	}
	if err != nil {
		return nil, internal("load invitation failed", err)
	}
	return inv, nil
}

// GetValid returns the newest invitation for email that is unused and
// unexpired, or nil when there is none.
func (s *Invitations) GetValid(ctx context.Context, email string) (*model.Invitation, error) {
	inv, err := s.store.FindValid(ctx, email, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("load invitation failed", err)
	}
	return inv, nil
}

// Check reports whether an unused invitation exists for email and whether
// it has expired. Nothing is consumed.
func (s *Invitations) Check(ctx context.Context, email string) (InvitationCheck, error) {
	inv, err := s.store.LatestUnused(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return InvitationCheck{}, nil
	}
	if err != nil {
		return InvitationCheck{}, internal("check invitation failed", err)
	}
	exp := inv.ExpiresAt
	return InvitationCheck{
		IsInvited: true,
		RoleName:  inv.RoleName,
		ExpiresAt: &exp,
		IsExpired: inv.IsExpired(s.now()),
	}, nil
}

// MarkUsed consumes an invitation. It returns false, without error, when the
// invitation is absent or already used.
func (s *Invitations) MarkUsed(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.MarkUsed(ctx, id, s.now())
	if err != nil {
		return false, internal("mark invitation failed", err)
	}
	return ok, nil
}

func (s *Invitations) Delete(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("invitation not found")
	}
	if err != nil {
		return internal("delete invitation failed", err)
	}
	return nil
}

// Invitation rejection reasons, logged but never returned to callers.
const (
	ReasonAbsent  = "absent"
	ReasonUsed    = "used"
	ReasonExpired = "expired"
)

// rejectionReason explains why email has no valid invitation.
func rejectionReason(ctx context.Context, store InvitationStore, email string, now time.Time) string {
	if inv, err := store.LatestUnused(ctx, email); err == nil {
		if inv.IsExpired(now) {
			return ReasonExpired
		}
		// Created between the failed lookup and now.
		return ReasonAbsent
	}
	if inv, err := store.Latest(ctx, email); err == nil && inv.IsUsed {
		return ReasonUsed
	}
	return ReasonAbsent
}

// publish sends an event and logs, rather than returns, broker failures.
func publish(ctx context.Context, pub Publisher, log *logrus.Logger, q string, event any) {
	if err := pub.Publish(ctx, q, event); err != nil {
		log.WithError(err).WithField("queue", q).Warn("publish event failed")
	}
}
