package scope

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/platinummonkey/crmgate/pkg/scope")

// Calculator computes scopes.
type Calculator struct {
	source  HierarchySource
	cache   *SnapshotCache
	metrics *observability.Metrics
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithSnapshotCache keeps tenant hierarchies for at most ttl. A ttl of zero
// disables caching.
func WithSnapshotCache(ttl time.Duration, size int) Option {
	return func(c *Calculator) {
		if ttl > 0 {
			c.cache = NewSnapshotCache(size, ttl)
		}
	}
}

// WithMetrics records computations and cache hits.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Calculator) {
		c.metrics = m
	}
}

// NewCalculator creates a Calculator over source.
func NewCalculator(source HierarchySource, opts ...Option) *Calculator {
	c := &Calculator{source: source}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute returns the scope of id for domain. The same identity and
// hierarchy always produce an equal scope.
func (c *Calculator) Compute(ctx context.Context, id identity.Identity, domain Domain) (*Scope, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "scope.Compute")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("crm.user_id", id.UserID),
		attribute.String("crm.role", id.Role.String()),
		attribute.String("crm.scope_domain", domain.String()),
	)

	if c.metrics != nil {
		c.metrics.ScopeComputationsTotal.WithLabelValues(id.Role.String(), domain.String()).Inc()
	}

	if id.IsSystemAdmin {
		return Universal(), nil
	}
	tenantID := *id.TenantID

	switch id.Role {
	case rbac.RoleAdmin:
		return Tenant(tenantID), nil
	case rbac.RoleAccountant:
		if domain == DomainFinancial {
			return Tenant(tenantID), nil
		}
		return Users(tenantID, id.UserID), nil
	case rbac.RoleSalesperson, rbac.RoleSalesAdmin:
		return Users(tenantID, id.UserID), nil
	case rbac.RoleManager, rbac.RoleGroupSalesManager:
		h, err := c.hierarchy(ctx, tenantID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if id.Role == rbac.RoleManager {
			return Users(tenantID, h.managerTeam(id.UserID)...), nil
		}
		return Users(tenantID, h.groupTeam(id.UserID)...), nil
	}
	return nil, apperror.PermissionDenied("role %q has no scope", id.Role)
}

// Invalidate drops the cached hierarchy of a tenant.
func (c *Calculator) Invalidate(tenantID int64) {
	if c.cache != nil {
		c.cache.Invalidate(tenantID)
	}
}

func (c *Calculator) hierarchy(ctx context.Context, tenantID int64) (*Hierarchy, error) {
	load := func(ctx context.Context) (*Hierarchy, error) {
		members, err := c.source.Members(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load hierarchy of tenant %d: %w", tenantID, err)
		}
		return NewHierarchy(tenantID, members), nil
	}

	if c.cache == nil {
		return load(ctx)
	}

	h, hit, err := c.cache.Get(ctx, tenantID, load)
	if c.metrics != nil && err == nil {
		if hit {
			c.metrics.CacheHitsTotal.WithLabelValues("hierarchy", "tenant").Inc()
		} else {
			c.metrics.CacheMissesTotal.WithLabelValues("hierarchy", "tenant").Inc()
		}
	}
	return h, err
}
