package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
)

// ResetTokenRepo persists password reset codes.
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Replace deletes every unused code for the token's email and stores t in
// the same transaction.
func (r *ResetTokenRepo) Replace(ctx context.Context, t *model.PasswordResetToken) error {
	t.Email = strings.ToLower(strings.TrimSpace(t.Email))
	t.TouchCreated(utcNow())
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM password_reset_tokens WHERE email = ? AND is_used = 0", t.Email); err != nil {
			return fmt.Errorf("clear reset codes: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO password_reset_tokens (email, token, is_used, expires_at, created_at) VALUES (?,?,0,?,?)",
			t.Email, t.Token, t.ExpiresAt, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert reset code: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reset code id: %w", err)
		}
		t.ID = id
		return nil
	})
}

// Exists reports whether an unused, unexpired code matches.
func (r *ResetTokenRepo) Exists(ctx context.Context, email, code string, now time.Time) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM password_reset_tokens WHERE email = ? AND token = ? AND is_used = 0 AND expires_at > ?",
		strings.ToLower(strings.TrimSpace(email)), code, now).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check reset code: %w", err)
	}
	return n > 0, nil
}

func (r *ResetTokenRepo) MarkUsed(ctx context.Context, email, code string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_reset_tokens SET is_used = 1, used_at = ? WHERE email = ? AND token = ? AND is_used = 0",
		now, strings.ToLower(strings.TrimSpace(email)), code)
	if err != nil {
		return false, fmt.Errorf("mark reset code used: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteExpired removes codes whose expiry passed before now.
func (r *ResetTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset codes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
