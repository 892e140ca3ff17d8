package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/access-control-api/internal/model"
)

type PrivilegeRepo struct{ DB *sql.DB }

func NewPrivilegeRepo(db *sql.DB) *PrivilegeRepo { return &PrivilegeRepo{DB: db} }

const privilegeColumns = "id, name, description, category, created_at"

func scanPrivileges(rows *sql.Rows) ([]model.Privilege, error) {
	var out []model.Privilege
	for rows.Next() {
		var p model.Privilege
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan privilege: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PrivilegeRepo) List(ctx context.Context) ([]model.Privilege, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+privilegeColumns+" FROM privileges ORDER BY category, id")
	if err != nil {
		return nil, fmt.Errorf("list privileges: %w", err)
	}
	defer rows.Close()
	return scanPrivileges(rows)
}

func (r *PrivilegeRepo) GetByID(ctx context.Context, id int64) (*model.Privilege, error) {
	var p model.Privilege
	err := r.DB.QueryRowContext(ctx, "SELECT "+privilegeColumns+" FROM privileges WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load privilege: %w", err)
	}
	return &p, nil
}

func (r *PrivilegeRepo) Create(ctx context.Context, p *model.Privilege) error {
	p.TouchCreated(utcNow())
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO privileges (name, description, category, created_at) VALUES (?,?,?,?)",
		p.Name, p.Description, p.Category, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert privilege: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("privilege id: %w", err)
	}
	p.ID = id
	return nil
}

func (r *PrivilegeRepo) Update(ctx context.Context, p *model.Privilege) error {
	p.TouchUpdated(utcNow())
	_, err := r.DB.ExecContext(ctx, "UPDATE privileges SET name = ?, description = ?, category = ? WHERE id = ?",
		p.Name, p.Description, p.Category, p.ID)
	if err != nil {
		return fmt.Errorf("update privilege: %w", err)
	}
	return nil
}

// Delete removes a privilege; its role assignments cascade.
func (r *PrivilegeRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM privileges WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete privilege: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountExisting returns how many of ids name a stored privilege.
func (r *PrivilegeRepo) CountExisting(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM privileges WHERE id IN ("+inPlaceholders(len(ids))+")", args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count privileges: %w", err)
	}
	return n, nil
}
