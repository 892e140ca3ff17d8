package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
)

// InvitationRepo persists the invitation ledger.
type InvitationRepo struct{ DB *sql.DB }

func NewInvitationRepo(db *sql.DB) *InvitationRepo { return &InvitationRepo{DB: db} }

const invitationSelect = `SELECT i.id, i.email, i.phone_number, i.invited_by_user_id,
	CONCAT_WS(' ', u.first_name, u.last_name), i.role_id, r.name, i.is_used, i.expires_at, i.used_at, i.created_at
	FROM invitations i
	JOIN roles r ON r.id = i.role_id
	JOIN users u ON u.id = i.invited_by_user_id`

func scanInvitation(row rowScanner) (*model.Invitation, error) {
	var (
		inv    model.Invitation
		phone  sql.NullString
		usedAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.Email, &phone, &inv.InvitedByUserID, &inv.InvitedByName,
		&inv.RoleID, &inv.RoleName, &inv.IsUsed, &inv.ExpiresAt, &usedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.PhoneNumber = phone.String
	inv.UsedAt = timePtr(usedAt)
	return &inv, nil
}

func (r *InvitationRepo) one(ctx context.Context, query string, args ...any) (*model.Invitation, error) {
	inv, err := scanInvitation(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	return inv, nil
}

// Create stores a new invitation. Unused invitations already issued to the
// same email are removed first, so an address has at most one pending
// invitation.
func (r *InvitationRepo) Create(ctx context.Context, inv *model.Invitation) error {
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	inv.TouchCreated(utcNow())
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM invitations WHERE email = ? AND is_used = 0", inv.Email); err != nil {
			return fmt.Errorf("clear pending invitations: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO invitations (email, phone_number, invited_by_user_id, role_id, is_used, expires_at, created_at)
			 VALUES (?,?,?,?,0,?,?)`,
			inv.Email, nullString(inv.PhoneNumber), inv.InvitedByUserID, inv.RoleID, inv.ExpiresAt, inv.CreatedAt)
		switch {
		case isDuplicate(err, "uq_invitations_pending"):
			return ErrPendingInvitation
		case isMissingReference(err):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("insert invitation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("invitation id: %w", err)
		}
		inv.ID = id
		return nil
	})
}

func (r *InvitationRepo) GetByID(ctx context.Context, id int64) (*model.Invitation, error) {
	return r.one(ctx, invitationSelect+" WHERE i.id = ?", id)
}

func (r *InvitationRepo) List(ctx context.Context) ([]model.Invitation, error) {
	rows, err := r.DB.QueryContext(ctx, invitationSelect+" ORDER BY i.created_at DESC, i.id DESC")
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()
	var out []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// FindValid returns the newest invitation for email that is unused and
// unexpired at now.
func (r *InvitationRepo) FindValid(ctx context.Context, email string, now time.Time) (*model.Invitation, error) {
	return r.one(ctx, invitationSelect+
		" WHERE i.email = ? AND i.is_used = 0 AND i.expires_at > ? ORDER BY i.created_at DESC, i.id DESC LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)), now)
}

// LatestUnused returns the newest unused invitation for email, expired or not.
func (r *InvitationRepo) LatestUnused(ctx context.Context, email string) (*model.Invitation, error) {
	return r.one(ctx, invitationSelect+
		" WHERE i.email = ? AND i.is_used = 0 ORDER BY i.created_at DESC, i.id DESC LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
}

// Latest returns the newest invitation for email in any state.
func (r *InvitationRepo) Latest(ctx context.Context, email string) (*model.Invitation, error) {
	return r.one(ctx, invitationSelect+
		" WHERE i.email = ? ORDER BY i.created_at DESC, i.id DESC LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
}

// MarkUsed consumes the invitation. It reports false when the invitation
// does not exist or was already used; used_at is never overwritten.
func (r *InvitationRepo) MarkUsed(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE invitations SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0", now, id)
	if err != nil {
		return false, fmt.Errorf("mark invitation used: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// consumeInvitation is the transactional form of MarkUsed used during
// signup. It also refuses invitations that expired before now.
func consumeInvitation(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE invitations SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0 AND expires_at > ?",
		now, id, now)
	if err != nil {
		return false, fmt.Errorf("consume invitation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *InvitationRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM invitations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InvitationRepo) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM invitations WHERE role_id = ?", roleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count invitations by role: %w", err)
	}
	return n, nil
}
