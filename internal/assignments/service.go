// Package assignments manages the user-role-scope grants the resolution
// engine consumes.
package assignments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keystone-erp/keystone-erp/internal/authz"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// RepositoryPort defines data access methods for assignments.
type RepositoryPort interface {
	Upsert(ctx context.Context, a authz.Assignment) error
	Revoke(ctx context.Context, userID int64, roleID, scopeToken string) error
	ListForUser(ctx context.Context, userID int64) ([]authz.Assignment, error)
	ActiveForUser(ctx context.Context, userID int64) ([]authz.Assignment, error)
	ExpireDue(ctx context.Context, now time.Time) ([]int64, error)
}

// UserInvalidator drops a single user's cached decisions.
type UserInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// GrantParams describes a grant request.
type GrantParams struct {
	UserID    int64
	RoleID    string
	Scope     authz.Scope
	GrantedBy int64
	ExpiresAt *time.Time
}

// Service handles assignment business logic. Mutations for the same user
// are serialized through the lock table; the unique triple constraint in the
// store is the backstop.
type Service struct {
	repo   RepositoryPort
	cache  UserInvalidator
	clock  authz.Clock
	locks  *shared.UserLocks
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cache UserInvalidator, clock authz.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = authz.SystemClock
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		clock:  clock,
		locks:  shared.NewUserLocks(),
		logger: logger,
	}
}

// Grant upserts the (user, role, scope) triple. Granting an existing triple
// refreshes it rather than adding a second row. The expiry, when given, must
// be in the future.
func (s *Service) Grant(ctx context.Context, p GrantParams) (authz.Assignment, error) {
	now := s.clock()
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return authz.Assignment{}, fmt.Errorf("%w: %s", authz.ErrInvalidExpiry, p.ExpiresAt.Format(time.RFC3339))
	}

	unlock := s.locks.Lock(p.UserID)
	defer unlock()

	a := authz.Assignment{
		UserID:    p.UserID,
		RoleID:    p.RoleID,
		Scope:     p.Scope,
		IsActive:  true,
		GrantedBy: p.GrantedBy,
		GrantedAt: now,
		ExpiresAt: p.ExpiresAt,
	}
	if err := s.repo.Upsert(ctx, a); err != nil {
		return authz.Assignment{}, err
	}
	if err := s.invalidate(ctx, p.UserID); err != nil {
		return authz.Assignment{}, err
	}
	return a, nil
}

// Revoke soft-revokes the triple; the row stays for audit. Revoking an
// absent or already revoked triple is a no-op.
func (s *Service) Revoke(ctx context.Context, userID int64, roleID string, scope authz.Scope) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.repo.Revoke(ctx, userID, roleID, scope.Token()); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// ListForUser returns every assignment for administrative display, active
// and expired alike.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]authz.Assignment, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ActiveForUser adapts the store to the engine's AssignmentSource.
func (s *Service) ActiveForUser(ctx context.Context, userID int64) ([]authz.Assignment, error) {
	return s.repo.ActiveForUser(ctx, userID)
}

// ExpireSweep deactivates assignments whose expiry has passed and drops the
// affected users' cached decisions. Resolution is already expiry-correct
// without it; the sweep keeps listings and audit queries tidy.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	users, err := s.repo.ExpireDue(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	for _, userID := range users {
		if err := s.invalidate(ctx, userID); err != nil {
			return len(users), err
		}
	}
	return len(users), nil
}

// invalidate bumps the user's cache version before the mutating call
// returns, preserving read-after-invalidate consistency.
func (s *Service) invalidate(ctx context.Context, userID int64) error {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		if s.logger != nil {
			s.logger.Error("invalidate decision cache", slog.Int64("user", userID), slog.Any("error", err))
		}
		return fmt.Errorf("assignments: invalidate cache for user %d: %w", userID, err)
	}
	return nil
}
