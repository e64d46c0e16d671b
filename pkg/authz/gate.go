package authz

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/platinummonkey/crmgate/pkg/authz")

// ScopeComputer computes the visible scope of an identity
type ScopeComputer interface {
	Compute(ctx context.Context, id identity.Identity, domain scope.Domain) (*scope.Scope, error)
}

// Target is the record an operation touches. OwnerIDs lists every user
// the record is visible through; the record is in scope when any of them is.
// A target without owners, such as a user being created, needs a scope
// covering every user of the tenant.
type Target struct {
	ID       int64
	TenantID int64
	OwnerIDs []int64
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed   bool
	Reason    string
	Scope     *scope.Scope
	CheckedAt time.Time
}

// Gate applies the permission matrix and the caller's scope to every data
// access. It holds no per-request state.
type Gate struct {
	scopes  ScopeComputer
	metrics *observability.Metrics
}

// NewGate creates a gate. metrics may be nil.
func NewGate(scopes ScopeComputer, metrics *observability.Metrics) *Gate {
	return &Gate{scopes: scopes, metrics: metrics}
}

// DomainFor returns the scope domain an operation on resource runs in
func DomainFor(resource rbac.Resource) scope.Domain {
	if resource == rbac.ResourceFinancialReport {
		return scope.DomainFinancial
	}
	return scope.DomainGeneral
}

// Authorize decides whether id may perform perm on target. A nil target
// checks the permission alone and returns the scope to filter with.
// Errors are reserved for invalid identities and scope failures.
func (g *Gate) Authorize(ctx context.Context, id identity.Identity, perm rbac.Permission, target *Target) (Decision, error) {
	ctx, span := tracer.Start(ctx, "authz.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("crm.permission", perm.String()),
		attribute.Int64("crm.user_id", id.UserID),
	)

	if err := id.Validate(); err != nil {
		return Decision{}, err
	}

	now := time.Now()
	if !rbac.Allowed(id.Role, perm) {
		return deny(now, fmt.Sprintf("role %s may not %s %s", id.Role, perm.Action, perm.Resource)), nil
	}

	sc, err := g.scopes.Compute(ctx, id, DomainFor(perm.Resource))
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}

	if target == nil {
		return Decision{Allowed: true, Reason: "permission granted", Scope: sc, CheckedAt: now}, nil
	}

	if !sc.PermitsTenant(target.TenantID) {
		return deny(now, fmt.Sprintf("%s %d belongs to another tenant", perm.Resource, target.ID)), nil
	}
	if perm.Resource.Owned() && !permitsAnyOwner(sc, target.OwnerIDs) {
		return deny(now, fmt.Sprintf("%s %d is outside your scope", perm.Resource, target.ID)), nil
	}
	return Decision{Allowed: true, Reason: "in scope", Scope: sc, CheckedAt: now}, nil
}

func permitsAnyOwner(sc *scope.Scope, owners []int64) bool {
	if len(owners) == 0 {
		return sc.AllUsers
	}
	for _, owner := range owners {
		if sc.PermitsUser(owner) {
			return true
		}
	}
	return false
}

func deny(at time.Time, reason string) Decision {
	return Decision{Allowed: false, Reason: reason, CheckedAt: at}
}

// Require is Authorize with denials turned into PermissionDenied errors.
// Every decision is counted and denials are audited.
func (g *Gate) Require(ctx context.Context, id identity.Identity, perm rbac.Permission, target *Target) (*scope.Scope, error) {
	decision, err := g.Authorize(ctx, id, perm, target)
	if err != nil {
		return nil, err
	}
	g.record(ctx, perm, target, decision)
	if !decision.Allowed {
		return nil, apperror.PermissionDenied("%s", decision.Reason)
	}
	return decision.Scope, nil
}

// ListScope authorizes a list or aggregate over resource and returns the
// filter the query must apply.
func (g *Gate) ListScope(ctx context.Context, id identity.Identity, resource rbac.Resource) (*scope.Scope, error) {
	return g.Require(ctx, id, rbac.NewPermission(resource, rbac.ActionList), nil)
}

// RequireReassign checks both the current record and the new owner. The
// new owner must be visible to the caller in the record's tenant.
func (g *Gate) RequireReassign(ctx context.Context, id identity.Identity, resource rbac.Resource, target *Target, newOwnerID int64) error {
	perm := rbac.NewPermission(resource, rbac.ActionReassign)
	if _, err := g.Require(ctx, id, perm, target); err != nil {
		return err
	}
	_, err := g.Require(ctx, id, perm, &Target{ID: target.ID, TenantID: target.TenantID, OwnerIDs: []int64{newOwnerID}})
	return err
}

func (g *Gate) record(ctx context.Context, perm rbac.Permission, target *Target, decision Decision) {
	outcome := "allow"
	if !decision.Allowed {
		outcome = "deny"
	}
	if g.metrics != nil {
		g.metrics.AuthzDecisionsTotal.WithLabelValues(string(perm.Resource), string(perm.Action), outcome).Inc()
	}
	if decision.Allowed {
		return
	}

	resourceID := ""
	if target != nil {
		resourceID = strconv.FormatInt(target.ID, 10)
	}
	if err := audit.LogDenied(ctx, audit.FromContext(ctx), string(perm.Resource), resourceID, decision.Reason); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit access denial")
	}
}
