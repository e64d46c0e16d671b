package identity

import (
	"context"
	"strconv"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/contextkeys"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID        int64     `json:"userId"`
	Email         string    `json:"email"`
	TenantID      *int64    `json:"tenantId"`
	Role          rbac.Role `json:"role"`
	ManagerID     *int64    `json:"managerId"`
	IsSystemAdmin bool      `json:"isSystemAdmin"`
}

// Validate enforces the identity invariants: a canonical role, and a tenant
// for everyone except system admins.
func (id Identity) Validate() error {
	if id.UserID <= 0 {
		return apperror.Authentication("identity has no user")
	}
	if !id.Role.Valid() {
		return apperror.Authentication("identity has invalid role %q", id.Role)
	}
	if id.IsSystemAdmin != (id.Role == rbac.RoleSystemAdmin) {
		return apperror.Authentication("system admin flag does not match role %q", id.Role)
	}
	if id.TenantID == nil && !id.IsSystemAdmin {
		return apperror.Authentication("user %d has no tenant", id.UserID)
	}
	if id.ManagerID != nil && *id.ManagerID == id.UserID {
		return apperror.Authentication("user %d manages itself", id.UserID)
	}
	return nil
}

// Tenant returns the caller's tenant id, or 0 for a tenantless system admin.
func (id Identity) Tenant() int64 {
	if id.TenantID == nil {
		return 0
	}
	return *id.TenantID
}

// InTenant reports whether the caller belongs to tenantID. System admins
// belong to no tenant.
func (id Identity) InTenant(tenantID int64) bool {
	return id.TenantID != nil && *id.TenantID == tenantID
}

// WithIdentity stores id in ctx along with the log correlation keys.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = contextkeys.WithIdentity(ctx, id)
	ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(id.UserID, 10))
	if id.TenantID != nil {
		ctx = contextkeys.WithTenantID(ctx, strconv.FormatInt(*id.TenantID, 10))
	}
	return ctx
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextkeys.IdentityKey).(Identity)
	return id, ok
}

// Account is the stored user record as seen by identity resolution.
type Account struct {
	ID            int64
	Email         string
	PasswordHash  string
	TenantID      *int64
	TenantActive  bool
	Role          string
	ManagerID     *int64
	IsActive      bool
	IsSystemAdmin bool
}

// AccountSource loads accounts. Implementations return an apperror NotFound
// when the account does not exist.
type AccountSource interface {
	AccountByID(ctx context.Context, id int64) (*Account, error)
	AccountByEmail(ctx context.Context, email string) (*Account, error)
}

// FromAccount builds and validates an Identity from a stored account.
func FromAccount(acc *Account) (Identity, error) {
	if !acc.IsActive {
		return Identity{}, apperror.Authentication("account %d is inactive", acc.ID)
	}

	role, err := rbac.ParseRole(acc.Role)
	if err != nil {
		return Identity{}, apperror.Wrap(apperror.KindAuthentication, err, "account %d", acc.ID)
	}
	if acc.IsSystemAdmin {
		role = rbac.RoleSystemAdmin
	}
	if role == rbac.RoleSystemAdmin && !acc.IsSystemAdmin {
		return Identity{}, apperror.Authentication("account %d claims system-admin role without the flag", acc.ID)
	}
	if acc.TenantID != nil && !acc.TenantActive {
		return Identity{}, apperror.Authentication("tenant %d is inactive", *acc.TenantID)
	}

	id := Identity{
		UserID:        acc.ID,
		Email:         acc.Email,
		TenantID:      acc.TenantID,
		Role:          role,
		ManagerID:     acc.ManagerID,
		IsSystemAdmin: acc.IsSystemAdmin,
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}
