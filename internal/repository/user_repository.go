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

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// UserRepo persists accounts in the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `u.id, u.first_name, u.last_name, u.email, u.phone_number, u.password_hash,
	u.profile_picture, u.is_super_admin, u.is_active, u.role_id, r.name, u.created_at, u.updated_at`

const userFrom = ` FROM users u JOIN roles r ON r.id = u.role_id`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u            model.User
		email, phone sql.NullString
		picture      sql.NullString
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &email, &phone, &u.PasswordHash,
		&picture, &u.IsSuperAdmin, &u.IsActive, &u.RoleID, &u.RoleName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.PhoneNumber = phone.String
	u.ProfilePicture = picture.String
	return &u, nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+userFrom+" WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// GetByID loads a user together with its role name.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "u.id = ?", id)
}

// GetByEmail loads a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "u.email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByLogin resolves a sign-in identifier, which is an email when it
// contains "@" and a phone number otherwise.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return r.GetByEmail(ctx, login)
	}
	return r.getOne(ctx, "u.phone_number = ?", login)
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+userFrom+" ORDER BY u.id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *UserRepo) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role_id = ?", roleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return n, nil
}

func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepo) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, "phone_number", strings.TrimSpace(phone))
}

func (r *UserRepo) exists(ctx context.Context, column, value string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE "+column+" = ? LIMIT 1", value).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user %s: %w", column, err)
	}
	return true, nil
}

// Create inserts an account created directly by an administrator.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	return insertUser(ctx, r.DB, u, sql.NullInt64{})
}

// Provision inserts a self-service account under adm in one transaction.
// A stored invitation is consumed with a compare-and-swap on is_used, so two
// signups racing for the same invitation cannot both succeed. The bootstrap
// grant sets bootstrap_marker, whose unique key admits a single first account.
func (r *UserRepo) Provision(ctx context.Context, u *model.User, adm model.Admission, now time.Time) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		marker := sql.NullInt64{}
		switch a := adm.(type) {
		case model.PersistedInvitation:
			ok, err := consumeInvitation(ctx, tx, a.Invitation.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvitationConsumed
			}
		case model.BootstrapGrant:
			marker = sql.NullInt64{Int64: 1, Valid: true}
		default:
			return fmt.Errorf("unsupported admission %T", adm)
		}
		return insertUser(ctx, tx, u, marker)
	})
}

func insertUser(ctx context.Context, db execer, u *model.User, marker sql.NullInt64) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.TouchCreated(utcNow())
	res, err := db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email, phone_number, password_hash, profile_picture,
			is_super_admin, is_active, role_id, bootstrap_marker, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.FirstName, u.LastName, nullString(u.Email), nullString(u.PhoneNumber), u.PasswordHash,
		nullString(u.ProfilePicture), u.IsSuperAdmin, u.IsActive, u.RoleID, marker, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		switch {
		case isDuplicate(err, "uq_users_email"):
			return ErrEmailExists
		case isDuplicate(err, "uq_users_phone"):
			return ErrPhoneExists
		case isDuplicate(err, "uq_users_bootstrap"):
			return ErrBootstrapTaken
		case isMissingReference(err):
			return ErrNotFound
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	u.ID = id
	return nil
}

// Update writes the editable profile fields.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.TouchUpdated(utcNow())
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, phone_number = ?, profile_picture = ?, updated_at = ?
		 WHERE id = ?`,
		u.FirstName, u.LastName, nullString(u.PhoneNumber), nullString(u.ProfilePicture), u.UpdatedAt, u.ID)
	if isDuplicate(err, "uq_users_phone") {
		return ErrPhoneExists
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.set(ctx, "password_hash", hash, id)
}

func (r *UserRepo) SetRole(ctx context.Context, id, roleID int64) error {
	err := r.set(ctx, "role_id", roleID, id)
	if isMissingReference(err) {
		return ErrNotFound
	}
	return err
}

func (r *UserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return r.set(ctx, "is_active", active, id)
}

func (r *UserRepo) SetProfilePicture(ctx context.Context, id int64, url string) error {
	return r.set(ctx, "profile_picture", nullString(url), id)
}

func (r *UserRepo) set(ctx context.Context, column string, value any, id int64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+column+" = ?, updated_at = ? WHERE id = ?", value, utcNow(), id)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}
	return nil
}

// Delete removes a user. Invitations reference their inviter with a
// restricting foreign key, so inviters cannot be deleted.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if isReferenced(err) {
		return ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
