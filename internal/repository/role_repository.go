package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/access-control-api/internal/model"
)

// RoleRepo persists roles, their hierarchy and their privilege assignments.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

const roleColumns = "id, name, description, parent_role_id, hierarchy_level, created_at"

func scanRole(row rowScanner) (*model.Role, error) {
	var (
		r      model.Role
		parent sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &parent, &r.HierarchyLevel, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ParentRoleID = int64Ptr(parent)
	return &r, nil
}

func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY hierarchy_level, id")
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	var out []model.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}

func (r *RoleRepo) GetByID(ctx context.Context, id int64) (*model.Role, error) {
	role, err := scanRole(r.DB.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

// NameTaken reports whether another role already uses name. The column
// collation makes the comparison case-insensitive.
func (r *RoleRepo) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM roles WHERE name = ? AND id <> ?", strings.TrimSpace(name), excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check role name: %w", err)
	}
	return n > 0, nil
}

func (r *RoleRepo) Create(ctx context.Context, role *model.Role) error {
	role.TouchCreated(utcNow())
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO roles (name, description, parent_role_id, hierarchy_level, created_at) VALUES (?,?,?,?,?)",
		role.Name, role.Description, nullInt64(role.ParentRoleID), role.HierarchyLevel, role.CreatedAt)
	if isDuplicate(err, "uq_roles_name") {
		return ErrRoleNameExists
	}
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("role id: %w", err)
	}
	role.ID = id
	return nil
}

func (r *RoleRepo) Update(ctx context.Context, role *model.Role) error {
	role.TouchUpdated(utcNow())
	_, err := r.DB.ExecContext(ctx, "UPDATE roles SET name = ?, description = ? WHERE id = ?",
		role.Name, role.Description, role.ID)
	if isDuplicate(err, "uq_roles_name") {
		return ErrRoleNameExists
	}
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// Delete removes a role. Users, invitations and child roles reference roles
// with restricting foreign keys; hitting one yields ErrReferenced.
func (r *RoleRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
	if isReferenced(err) {
		return ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RoleRepo) SetHierarchy(ctx context.Context, id int64, parentID *int64, level int) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE roles SET parent_role_id = ?, hierarchy_level = ? WHERE id = ?",
		nullInt64(parentID), level, id)
	if isMissingReference(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set role hierarchy: %w", err)
	}
	return nil
}

func (r *RoleRepo) CountChildren(ctx context.Context, id int64) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles WHERE parent_role_id = ?", id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count child roles: %w", err)
	}
	return n, nil
}

// ReplacePrivileges swaps the role's privilege set for privilegeIDs. The
// delete and all inserts share one transaction.
func (r *RoleRepo) ReplacePrivileges(ctx context.Context, roleID int64, privilegeIDs []int64) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_privileges WHERE role_id = ?", roleID); err != nil {
			return fmt.Errorf("clear role privileges: %w", err)
		}
		if len(privilegeIDs) == 0 {
			return nil
		}
		now := utcNow()
		values := make([]string, 0, len(privilegeIDs))
		args := make([]any, 0, len(privilegeIDs)*3)
		for _, pid := range privilegeIDs {
			values = append(values, "(?,?,?)")
			args = append(args, roleID, pid, now)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO role_privileges (role_id, privilege_id, assigned_at) VALUES "+strings.Join(values, ","),
			args...)
		if isMissingReference(err) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("insert role privileges: %w", err)
		}
		return nil
	})
}

// Privileges returns the privileges assigned directly to the role.
func (r *RoleRepo) Privileges(ctx context.Context, roleID int64) ([]model.Privilege, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT p.id, p.name, p.description, p.category, p.created_at
		 FROM role_privileges rp JOIN privileges p ON p.id = rp.privilege_id
		 WHERE rp.role_id = ? ORDER BY p.id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role privileges: %w", err)
	}
	defer rows.Close()
	return scanPrivileges(rows)
}

func (r *RoleRepo) RemovePrivilege(ctx context.Context, roleID, privilegeID int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM role_privileges WHERE role_id = ? AND privilege_id = ?", roleID, privilegeID)
	if err != nil {
		return false, fmt.Errorf("remove role privilege: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
