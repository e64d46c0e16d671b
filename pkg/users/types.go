package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// User is a CRM user. TenantID is nil only for system admins.
type User struct {
	ID            int64     `json:"id"`
	Key           uuid.UUID `json:"key"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	TenantID      *int64    `json:"tenantId"`
	Role          rbac.Role `json:"role"`
	ManagerID     *int64    `json:"managerId"`
	IsActive      bool      `json:"isActive"`
	IsSystemAdmin bool      `json:"isSystemAdmin"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OwnerIDs is the user's own id; users are visible through themselves
func (u *User) OwnerIDs() []int64 {
	return []int64{u.ID}
}

// CreateUserRequest is the body of POST /api/User/Create
type CreateUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	TenantID    *int64 `json:"tenantId,omitempty"`
	Role        string `json:"role"`
	ManagerID   *int64 `json:"managerId,omitempty"`
}

// Validate checks the request and returns the parsed role
func (r *CreateUserRequest) Validate() (rbac.Role, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return "", apperror.Validation("a valid email is required")
	}
	if err := ValidatePassword(r.Password); err != nil {
		return "", err
	}
	role, err := rbac.ParseRole(r.Role)
	if err != nil {
		return "", apperror.Wrap(apperror.KindValidation, err, "invalid role")
	}
	if role == rbac.RoleSystemAdmin {
		return "", apperror.Validation("system admins cannot be created through the API")
	}
	return role, nil
}

// UpdateUserRequest is the body of PUT /api/User/Update/{id}. Nil fields
// are left unchanged; ClearManager removes the manager edge.
type UpdateUserRequest struct {
	DisplayName  *string `json:"displayName,omitempty"`
	Role         *string `json:"role,omitempty"`
	ManagerID    *int64  `json:"managerId,omitempty"`
	ClearManager bool    `json:"clearManager,omitempty"`
	IsActive     *bool   `json:"isActive,omitempty"`
}

// ChangesHierarchy reports whether applying the request can alter scopes
func (r *UpdateUserRequest) ChangesHierarchy() bool {
	return r.Role != nil || r.ManagerID != nil || r.ClearManager || r.IsActive != nil
}

// ChangePasswordRequest is the body of POST /api/User/ChangePassword
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// LoginRequest is the body of POST /api/User/Login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /api/User/Refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ListFilter narrows GET /api/User/GetAll
type ListFilter struct {
	Search     string
	ActiveOnly bool
}
