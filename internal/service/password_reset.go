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
	"github.com/iliyamo/access-control-api/internal/utils"
)

// DefaultResetCodeTTL is how long a reset code stays usable.
const DefaultResetCodeTTL = 15 * time.Minute

// PasswordReset issues and checks one-time reset codes. Codes are handed to
// the mail sender through the password reset queue.
type PasswordReset struct {
	store    ResetTokenStore
	users    UserStore
	accounts *Accounts
	pub      Publisher
	log      *logrus.Logger
	ttl      time.Duration
	now      Clock
	newCode  func() (string, error)
}

func NewPasswordReset(store ResetTokenStore, users UserStore, accounts *Accounts, pub Publisher,
	log *logrus.Logger, ttl time.Duration) *PasswordReset {
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = logrus.New()
	}
	if ttl <= 0 {
		ttl = DefaultResetCodeTTL
	}
	return &PasswordReset{
		store:    store,
		users:    users,
		accounts: accounts,
		pub:      pub,
		log:      log,
		ttl:      ttl,
		now:      systemClock,
		newCode:  utils.ResetCode,
	}
}

// GenerateCode replaces every unused code for email with a fresh one.
func (s *PasswordReset) GenerateCode(ctx context.Context, email string) (*model.PasswordResetToken, error) {
	code, err := s.newCode()
	if err != nil {
		return nil, internal("generate reset code failed", err)
	}
	t := &model.PasswordResetToken{
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Token:     code,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.store.Replace(ctx, t); err != nil {
		return nil, internal("generate reset code failed", err)
	}
	return t, nil
}

// VerifyCode reports whether code is an unused, unexpired code for email.
// It does not consume the code.
func (s *PasswordReset) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	ok, err := s.store.Exists(ctx, email, strings.TrimSpace(code), s.now())
	if err != nil {
		return false, internal("verify reset code failed", err)
	}
	return ok, nil
}

// MarkUsed consumes the code. Call it only after the password changed.
func (s *PasswordReset) MarkUsed(ctx context.Context, email, code string) (bool, error) {
	ok, err := s.store.MarkUsed(ctx, email, strings.TrimSpace(code), s.now())
	if err != nil {
		return false, internal("mark reset code failed", err)
	}
	return ok, nil
}

// Request starts a reset for email. Unknown emails are ignored so callers
// cannot probe which addresses have accounts. The returned token is nil in
// that case.
func (s *PasswordReset) Request(ctx context.Context, email string) (*model.PasswordResetToken, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WithField("email", email).Info("password reset requested for unknown email")
		return nil, nil
	}
	if err != nil {
		return nil, internal("password reset failed", err)
	}
	if !u.IsActive {
		s.log.WithField("user_id", u.ID).Info("password reset requested for inactive account")
		return nil, nil
	}
	t, err := s.GenerateCode(ctx, email)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, queue.PasswordResetQueue, queue.PasswordResetRequested{
		Email:     t.Email,
		Code:      t.Token,
		ExpiresAt: t.ExpiresAt,
	})
	return t, nil
}

// Complete runs verify, reset and mark-used in that order. A failure after
// the password changed leaves the code usable until it expires.
func (s *PasswordReset) Complete(ctx context.Context, email, code, newPassword string) error {
	ok, err := s.VerifyCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return validation("invalid or expired code", "code")
	}
	if err := s.accounts.ResetPassword(ctx, email, newPassword); err != nil {
		return err
	}
	if _, err := s.MarkUsed(ctx, email, code); err != nil {
		s.log.WithError(err).WithField("email", email).Error("reset code could not be consumed")
	}
	return nil
}

// Cleanup deletes expired codes and returns how many were removed.
func (s *PasswordReset) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, internal("cleanup reset codes failed", err)
	}
	return n, nil
}
