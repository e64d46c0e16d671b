package tenants

import (
	"context"
	"strconv"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/rbac"
)

// Service implements tenant administration
type Service struct {
	store *Store
	gate  *authz.Gate
}

// NewService creates a tenant service
func NewService(store *Store, gate *authz.Gate) *Service {
	return &Service{store: store, gate: gate}
}

func perm(action rbac.Action) rbac.Permission {
	return rbac.NewPermission(rbac.ResourceTenant, action)
}

// List returns the tenants the caller can see: all of them for a system
// admin, their own for everyone else.
func (s *Service) List(ctx context.Context, id identity.Identity, p paging.Params) (paging.Page[*Tenant], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceTenant)
	if err != nil {
		return paging.Page[*Tenant]{}, err
	}
	return s.store.List(ctx, sc, p)
}

// Get returns a tenant the caller can see
func (s *Service) Get(ctx context.Context, id identity.Identity, tenantID int64) (*Tenant, error) {
	t, err := s.store.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionRead), &authz.Target{ID: t.ID, TenantID: t.ID}); err != nil {
		return nil, err
	}
	return t, nil
}

// Create adds a tenant
func (s *Service) Create(ctx context.Context, id identity.Identity, req CreateTenantRequest) (*Tenant, error) {
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionCreate), nil); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &Tenant{
		Name:                    req.Name,
		Status:                  StatusActive,
		CurrencySymbol:          req.CurrencySymbol,
		FinancialYearStartMonth: req.FinancialYearStartMonth,
		FinancialYearEndMonth:   req.FinancialYearEndMonth,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeAdminTenantCreate, t.ID, &audit.ChangeDetails{After: snapshot(t)})
	return t, nil
}

// Update changes a tenant. Admins may update their own tenant.
func (s *Service) Update(ctx context.Context, id identity.Identity, tenantID int64, req UpdateTenantRequest) (*Tenant, error) {
	t, err := s.store.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, perm(rbac.ActionUpdate), &authz.Target{ID: t.ID, TenantID: t.ID}); err != nil {
		return nil, err
	}

	before := snapshot(t)
	if err := req.Apply(t); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeAdminTenantUpdate, t.ID, &audit.ChangeDetails{Before: before, After: snapshot(t)})
	return t, nil
}

func snapshot(t *Tenant) map[string]interface{} {
	return map[string]interface{}{
		"name":                       t.Name,
		"status":                     string(t.Status),
		"currency_symbol":            t.CurrencySymbol,
		"financial_year_start_month": t.FinancialYearStartMonth,
		"financial_year_end_month":   t.FinancialYearEndMonth,
	}
}

func (s *Service) audit(ctx context.Context, eventType audit.EventType, tenantID int64, changes *audit.ChangeDetails) {
	err := audit.LogMutation(ctx, audit.FromContext(ctx), eventType, string(rbac.ResourceTenant), strconv.FormatInt(tenantID, 10), changes)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit tenant change")
	}
}
