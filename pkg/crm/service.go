package crm

import (
	"context"
	"strconv"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// UserDirectory answers membership questions about users
type UserDirectory interface {
	ExistsInTenant(ctx context.Context, userID, tenantID int64) (bool, error)
}

// Service implements the CRM operations. Each one passes the gate before
// it touches the store.
type Service struct {
	store *Store
	gate  *authz.Gate
	users UserDirectory
}

// NewService creates a CRM service
func NewService(store *Store, gate *authz.Gate, users UserDirectory) *Service {
	return &Service{store: store, gate: gate, users: users}
}

// targetTenant picks the tenant a new record goes to. Only system admins
// name one; everyone else writes into their own.
func targetTenant(id identity.Identity, requested *int64) (int64, error) {
	if id.IsSystemAdmin {
		if requested == nil || *requested <= 0 {
			return 0, apperror.Validation("tenantId is required")
		}
		return *requested, nil
	}
	if requested != nil && *requested != id.Tenant() {
		return 0, apperror.PermissionDenied("records can only be created in your own tenant")
	}
	return id.Tenant(), nil
}

// ownerOrSelf defaults a record's owner to the caller
func ownerOrSelf(id identity.Identity, owner *int64) int64 {
	if owner != nil {
		return *owner
	}
	return id.UserID
}

// requireTenantUser checks that userID is an active user of tenantID
func (s *Service) requireTenantUser(ctx context.Context, userID, tenantID int64) error {
	ok, err := s.users.ExistsInTenant(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Validation("user %d is not an active user of tenant %d", userID, tenantID)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, eventType audit.EventType, resource rbac.Resource, id int64, changes *audit.ChangeDetails) {
	err := audit.LogMutation(ctx, audit.FromContext(ctx), eventType, string(resource), strconv.FormatInt(id, 10), changes)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit change")
	}
}

func reassignChange(from, to int64) *audit.ChangeDetails {
	return &audit.ChangeDetails{
		Before: map[string]interface{}{"owner_id": from},
		After:  map[string]interface{}{"owner_id": to},
	}
}
