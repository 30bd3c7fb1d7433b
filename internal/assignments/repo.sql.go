package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-erp/keystone-erp/internal/authz"
)

const pgForeignKeyViolation = "23503"

// Repository provides PostgreSQL backed persistence for assignments. The
// user_roles table carries a unique constraint over (user_id, role_id,
// business_unit); business_unit stores the "*" sentinel for global grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or refreshes the triple. A missing role surfaces as
// authz.ErrUnknownRole via the foreign key.
func (r *Repository) Upsert(ctx context.Context, a authz.Assignment) error {
	var expires pgtype.Timestamptz
	if a.ExpiresAt != nil {
		expires = pgtype.Timestamptz{Time: a.ExpiresAt.UTC(), Valid: true}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, business_unit, is_active, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6)
		ON CONFLICT (user_id, role_id, business_unit)
		DO UPDATE SET is_active = TRUE, granted_by = EXCLUDED.granted_by,
		              granted_at = EXCLUDED.granted_at, expires_at = EXCLUDED.expires_at`,
		a.UserID, a.RoleID, a.Scope.Token(), a.GrantedBy, a.GrantedAt.UTC(), expires)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("%w: %s", authz.ErrUnknownRole, a.RoleID)
		}
		return err
	}
	return nil
}

// Revoke soft-revokes the triple, keeping the row for audit.
func (r *Repository) Revoke(ctx context.Context, userID int64, roleID, scopeToken string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET is_active = FALSE
		WHERE user_id = $1 AND role_id = $2 AND business_unit = $3`,
		userID, roleID, scopeToken)
	return err
}

// ListForUser returns all assignments for the user, active and revoked.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]authz.Assignment, error) {
	return r.queryForUser(ctx, `
		SELECT user_id, role_id, business_unit, is_active, granted_by, granted_at, expires_at
		FROM user_roles WHERE user_id = $1
		ORDER BY granted_at DESC, role_id, business_unit`, userID)
}

// ActiveForUser returns assignments with is_active = TRUE. Expiry is not
// filtered here; the engine applies its injected clock.
func (r *Repository) ActiveForUser(ctx context.Context, userID int64) ([]authz.Assignment, error) {
	return r.queryForUser(ctx, `
		SELECT user_id, role_id, business_unit, is_active, granted_by, granted_at, expires_at
		FROM user_roles WHERE user_id = $1 AND is_active = TRUE
		ORDER BY granted_at, role_id, business_unit`, userID)
}

// ExpireDue deactivates assignments whose expiry has passed and returns the
// distinct users affected.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE user_roles SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING user_id`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[int64]struct{})
	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *Repository) queryForUser(ctx context.Context, query string, userID int64) ([]authz.Assignment, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (authz.Assignment, error) {
	var (
		a       authz.Assignment
		token   string
		expires pgtype.Timestamptz
	)
	if err := row.Scan(&a.UserID, &a.RoleID, &token, &a.IsActive, &a.GrantedBy, &a.GrantedAt, &expires); err != nil {
		return authz.Assignment{}, err
	}
	scope, err := authz.ParseScope(token)
	if err != nil {
		return authz.Assignment{}, err
	}
	a.Scope = scope
	if expires.Valid {
		t := expires.Time
		a.ExpiresAt = &t
	}
	return a, nil
}
