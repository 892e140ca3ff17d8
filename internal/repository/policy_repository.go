package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/access-control-api/internal/model"
)

type PolicyRepo struct{ DB *sql.DB }

func NewPolicyRepo(db *sql.DB) *PolicyRepo { return &PolicyRepo{DB: db} }

const policyColumns = "id, type, content, version, is_active, created_at, updated_at"

func scanPolicy(row rowScanner) (*model.Policy, error) {
	var p model.Policy
	if err := row.Scan(&p.ID, &p.Type, &p.Content, &p.Version, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PolicyRepo) one(ctx context.Context, query string, args ...any) (*model.Policy, error) {
	p, err := scanPolicy(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return p, nil
}

// ActiveByType returns the active policy of the given type.
func (r *PolicyRepo) ActiveByType(ctx context.Context, typ string) (*model.Policy, error) {
	return r.one(ctx, "SELECT "+policyColumns+" FROM policies WHERE type = ? AND is_active = 1 ORDER BY id DESC LIMIT 1", typ)
}

func (r *PolicyRepo) GetByID(ctx context.Context, id int64) (*model.Policy, error) {
	return r.one(ctx, "SELECT "+policyColumns+" FROM policies WHERE id = ?", id)
}

func (r *PolicyRepo) List(ctx context.Context) ([]model.Policy, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+policyColumns+" FROM policies ORDER BY type, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()
	var out []model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Create stores p as the active policy of its type, deactivating older
// policies of that type in the same transaction.
func (r *PolicyRepo) Create(ctx context.Context, p *model.Policy) error {
	p.TouchCreated(utcNow())
	p.IsActive = true
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE policies SET is_active = 0, updated_at = ? WHERE type = ? AND is_active = 1",
			p.CreatedAt, p.Type); err != nil {
			return fmt.Errorf("deactivate policies: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO policies (type, content, version, is_active, created_at, updated_at) VALUES (?,?,?,1,?,?)",
			p.Type, p.Content, p.Version, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert policy: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("policy id: %w", err)
		}
		p.ID = id
		return nil
	})
}

// Update rewrites content, version and the active flag. Activating a policy
// deactivates the other policies of its type.
func (r *PolicyRepo) Update(ctx context.Context, p *model.Policy) error {
	p.TouchUpdated(utcNow())
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if p.IsActive {
			if _, err := tx.ExecContext(ctx,
				"UPDATE policies SET is_active = 0, updated_at = ? WHERE type = ? AND id <> ? AND is_active = 1",
				p.UpdatedAt, p.Type, p.ID); err != nil {
				return fmt.Errorf("deactivate policies: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE policies SET content = ?, version = ?, is_active = ?, updated_at = ? WHERE id = ?",
			p.Content, p.Version, p.IsActive, p.UpdatedAt, p.ID); err != nil {
			return fmt.Errorf("update policy: %w", err)
		}
		return nil
	})
}

func (r *PolicyRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM policies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
