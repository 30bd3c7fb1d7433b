package assignments

import (
	"time"

	"github.com/keystone-erp/keystone-erp/internal/authz"
)

type grantRequest struct {
	UserID    int64      `json:"user_id" validate:"required,gt=0"`
	RoleID    string     `json:"role_id" validate:"required"`
	Scope     string     `json:"scope" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type revokeRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	RoleID string `json:"role_id" validate:"required"`
	Scope  string `json:"scope" validate:"required"`
}

type assignmentResponse struct {
	UserID    int64      `json:"user_id"`
	RoleID    string     `json:"role_id"`
	Scope     string     `json:"scope"`
	IsActive  bool       `json:"is_active"`
	GrantedBy int64      `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toAssignmentResponse(a authz.Assignment) assignmentResponse {
	return assignmentResponse{
		UserID:    a.UserID,
		RoleID:    a.RoleID,
		Scope:     a.Scope.Token(),
		IsActive:  a.IsActive,
		GrantedBy: a.GrantedBy,
		GrantedAt: a.GrantedAt,
		ExpiresAt: a.ExpiresAt,
	}
}
