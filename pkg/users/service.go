package users

import (
	"context"
	"strconv"
	"strings"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// Service implements user management on top of the authorization gate
type Service struct {
	store  *Store
	gate   *authz.Gate
	hasher *Hasher
}

// NewService creates a user service
func NewService(store *Store, gate *authz.Gate, hasher *Hasher) *Service {
	return &Service{store: store, gate: gate, hasher: hasher}
}

func userTarget(u *User) *authz.Target {
	t := &authz.Target{ID: u.ID, OwnerIDs: u.OwnerIDs()}
	if u.TenantID != nil {
		t.TenantID = *u.TenantID
	}
	return t
}

func perm(action rbac.Action) rbac.Permission {
	return rbac.NewPermission(rbac.ResourceUser, action)
}

// Current returns the caller's own record
func (s *Service) Current(ctx context.Context, id identity.Identity) (*User, error) {
	return s.store.GetByID(ctx, id.UserID)
}

// Get returns a user the caller may read
func (s *Service) Get(ctx context.Context, id identity.Identity, userID int64) (*User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionRead), userTarget(u)); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns the users in the caller's scope
func (s *Service) List(ctx context.Context, id identity.Identity, filter ListFilter, p paging.Params) (paging.Page[*User], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceUser)
	if err != nil {
		return paging.Page[*User]{}, err
	}
	return s.store.List(ctx, sc, filter, p)
}

// Create adds a user to a tenant. Only system admins name the tenant;
// everyone else creates users in their own.
func (s *Service) Create(ctx context.Context, id identity.Identity, req CreateUserRequest) (*User, error) {
	role, err := req.Validate()
	if err != nil {
		return nil, err
	}

	tenantID := id.Tenant()
	if req.TenantID != nil {
		tenantID = *req.TenantID
	}
	if tenantID == 0 {
		return nil, apperror.Validation("tenantId is required")
	}
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionCreate), &authz.Target{TenantID: tenantID}); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		TenantID:    &tenantID,
		Role:        role,
		ManagerID:   req.ManagerID,
	}
	if err := s.store.Create(ctx, u, hash); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.EventTypeAdminUserCreate, u.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"email": u.Email, "role": string(u.Role), "tenant_id": tenantID},
	})
	return u, nil
}

// Update applies req to a user in the caller's scope
func (s *Service) Update(ctx context.Context, id identity.Identity, userID int64, req UpdateUserRequest) (*User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionUpdate), userTarget(u)); err != nil {
		return nil, err
	}
	if u.IsSystemAdmin && !id.IsSystemAdmin {
		return nil, apperror.PermissionDenied("system admins can only be changed by system admins")
	}

	before := snapshot(u)
	if req.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Role != nil {
		role, err := rbac.ParseRole(*req.Role)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindValidation, err, "invalid role")
		}
		if role == rbac.RoleSystemAdmin || (u.IsSystemAdmin && role != rbac.RoleSystemAdmin) {
			return nil, apperror.Validation("the system-admin role cannot be granted or removed through the API")
		}
		u.Role = role
	}
	switch {
	case req.ClearManager:
		u.ManagerID = nil
	case req.ManagerID != nil:
		u.ManagerID = req.ManagerID
	}
	if req.IsActive != nil {
		if !*req.IsActive && u.ID == id.UserID {
			return nil, apperror.Validation("you cannot deactivate yourself")
		}
		u.IsActive = *req.IsActive
	}

	if err := s.store.Update(ctx, u); err != nil {
		return nil, err
	}

	changes := &audit.ChangeDetails{Before: before, After: snapshot(u)}
	s.audit(ctx, audit.EventTypeAdminUserUpdate, u.ID, changes)
	if before["manager_id"] != changes.After["manager_id"] {
		s.audit(ctx, audit.EventTypeAdminManagerChange, u.ID, &audit.ChangeDetails{
			Before: map[string]interface{}{"manager_id": before["manager_id"]},
			After:  map[string]interface{}{"manager_id": changes.After["manager_id"]},
		})
	}
	return u, nil
}

// Delete deactivates a user in the caller's scope
func (s *Service) Delete(ctx context.Context, id identity.Identity, userID int64) error {
	if userID == id.UserID {
		return apperror.Validation("you cannot delete yourself")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionDelete), userTarget(u)); err != nil {
		return err
	}
	if u.IsSystemAdmin {
		return apperror.PermissionDenied("system admins cannot be deleted")
	}
	if err := s.store.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.audit(ctx, audit.EventTypeAdminUserDeactivate, userID, nil)
	return nil
}

func snapshot(u *User) map[string]interface{} {
	var manager interface{}
	if u.ManagerID != nil {
		manager = *u.ManagerID
	}
	return map[string]interface{}{
		"display_name": u.DisplayName,
		"role":         string(u.Role),
		"manager_id":   manager,
		"is_active":    u.IsActive,
	}
}

func (s *Service) audit(ctx context.Context, eventType audit.EventType, userID int64, changes *audit.ChangeDetails) {
	err := audit.LogMutation(ctx, audit.FromContext(ctx), eventType, string(rbac.ResourceUser), strconv.FormatInt(userID, 10), changes)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit user change")
	}
}
