package roles

import "time"

type createRoleRequest struct {
	ID             string            `json:"id" validate:"required,min=2,max=64"`
	Name           string            `json:"name" validate:"required,min=2,max=128"`
	LocalizedNames map[string]string `json:"localized_names,omitempty" validate:"omitempty,dive,keys,bcp47_language_tag,endkeys,min=1"`
	Level          int               `json:"level" validate:"gte=0,lte=1000"`
	IsSystem       bool              `json:"is_system"`
}

type grantPermissionRequest struct {
	PermissionID string `json:"permission_id" validate:"required"`
}

type roleResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	LocalizedNames map[string]string `json:"localized_names,omitempty"`
	Level          int               `json:"level"`
	IsSystem       bool              `json:"is_system"`
	IsActive       bool              `json:"is_active"`
	Permissions    []string          `json:"permissions,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:             role.ID,
		Name:           role.Name,
		LocalizedNames: role.LocalizedNames,
		Level:          role.Level,
		IsSystem:       role.IsSystem,
		IsActive:       role.IsActive,
		Permissions:    role.Permissions,
		CreatedAt:      role.CreatedAt,
		UpdatedAt:      role.UpdatedAt,
	}
}
