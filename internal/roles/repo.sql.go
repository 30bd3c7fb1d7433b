package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/authz"
	"github.com/keystone-erp/keystone-erp/internal/platform/db"
)

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the role catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new role. Maps duplicate ids to authz.ErrRoleExists.
func (r *Repository) Create(ctx context.Context, role Role) error {
	localized, err := json.Marshal(role.LocalizedNames)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO roles (id, name, localized_names, level, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		role.ID, role.Name, localized, role.Level, role.IsSystem, role.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", authz.ErrRoleExists, role.ID)
		}
		return err
	}
	return nil
}

// GetByID fetches a role and its permission set.
func (r *Repository) GetByID(ctx context.Context, id string) (Role, error) {
	var (
		role      Role
		localized []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, localized_names, level, is_system, is_active, created_at, updated_at
		FROM roles WHERE id = $1`, id).Scan(
		&role.ID, &role.Name, &localized, &role.Level, &role.IsSystem, &role.IsActive,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("%w: %s", authz.ErrUnknownRole, id)
		}
		return Role{}, err
	}
	if len(localized) > 0 {
		if err := json.Unmarshal(localized, &role.LocalizedNames); err != nil {
			return Role{}, err
		}
	}

	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, id)
	if err != nil {
		return Role{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return Role{}, err
		}
		role.Permissions = append(role.Permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return Role{}, err
	}
	return role, nil
}

// List returns all roles ordered by privilege level then id, without
// permission sets.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, localized_names, level, is_system, is_active, created_at, updated_at
		FROM roles ORDER BY level DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var (
			role      Role
			localized []byte
		)
		if err := rows.Scan(&role.ID, &role.Name, &localized, &role.Level, &role.IsSystem,
			&role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if len(localized) > 0 {
			if err := json.Unmarshal(localized, &role.LocalizedNames); err != nil {
				return nil, err
			}
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// SetActive flips the activation flag.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", authz.ErrUnknownRole, id)
	}
	return nil
}

// Delete removes the role, its permission links, and every assignment
// referencing it, in one transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", authz.ErrUnknownRole, id)
		}
		return nil
	})
}

// AttachPermission links a permission to a role; attaching twice is a no-op.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	return err
}

// DetachPermission unlinks a permission; detaching an absent link is a no-op.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}
