package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
)

// Deals are visible through their owner and through their client's owner
const (
	dealColumns = `d.id, d.key, d.tenant_id, d.client_id, d.owner_id, d.title, d.value, d.stage,
		       d.created_at, d.updated_at, c.assigned_sales_person_id`
	dealFrom = `deals d JOIN clients c ON c.id = d.client_id`
)

func scanDeal(row rowScanner) (*Deal, error) {
	d := &Deal{}
	err := row.Scan(
		&d.ID, &d.Key, &d.TenantID, &d.ClientID, &d.OwnerID, &d.Title, &d.Value, &d.Stage,
		&d.CreatedAt, &d.UpdatedAt, &d.clientOwnerID,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDeal retrieves a deal by id
func (s *Store) GetDeal(ctx context.Context, id int64) (*Deal, error) {
	d, err := scanDeal(s.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM `+dealFrom+` WHERE d.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("deal %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return d, nil
}

// ListDeals returns the deals visible through sc
func (s *Store) ListDeals(ctx context.Context, sc *scope.Scope, filter DealFilter, p paging.Params) (paging.Page[*Deal], error) {
	var w postgres.Where
	w.Scope(sc, "d.tenant_id", "d.owner_id", "c.assigned_sales_person_id")
	if filter.ClientID != nil {
		w.And("d.client_id = " + w.Arg(*filter.ClientID))
	}
	if filter.Stage != "" {
		w.And("d.stage = " + w.Arg(string(filter.Stage)))
	}
	return listPage(ctx, s.db, dealColumns, dealFrom, "d.id", &w, p, scanDeal)
}

// CreateDeal inserts d
func (s *Store) CreateDeal(ctx context.Context, d *Deal) error {
	d.Key = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO deals (key, tenant_id, client_id, owner_id, title, value, stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, d.Key, d.TenantID, d.ClientID, d.OwnerID, d.Title, d.Value, string(d.Stage)).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

// UpdateDeal writes title, value and stage
func (s *Store) UpdateDeal(ctx context.Context, d *Deal) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE deals
		SET title = $1, value = $2, stage = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`, d.Title, d.Value, string(d.Stage), d.ID).Scan(&d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("deal %d not found", d.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	return nil
}

// ReassignDeal moves d to newOwner if it is still owned by d.OwnerID.
// A concurrent reassignment makes it fail with Conflict.
func (s *Store) ReassignDeal(ctx context.Context, d *Deal, newOwner int64) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE deals
		SET owner_id = $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3
		RETURNING updated_at
	`, newOwner, d.ID, d.OwnerID).Scan(&d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Conflict("deal %d was changed by someone else", d.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to reassign deal: %w", err)
	}
	d.OwnerID = newOwner
	return nil
}

// DeleteDeal removes a deal
func (s *Store) DeleteDeal(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deal: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("deal %d not found", id)
	}
	return nil
}

// dealTarget is readable through either owner
func dealTarget(d *Deal) *authz.Target {
	return &authz.Target{ID: d.ID, TenantID: d.TenantID, OwnerIDs: []int64{d.OwnerID, d.clientOwnerID}}
}

// dealWriteTarget only lets the deal owner's scope change the deal
func dealWriteTarget(d *Deal) *authz.Target {
	return &authz.Target{ID: d.ID, TenantID: d.TenantID, OwnerIDs: []int64{d.OwnerID}}
}

func dealPerm(action rbac.Action) rbac.Permission {
	return rbac.NewPermission(rbac.ResourceDeal, action)
}

// ListDeals returns the deals in the caller's scope
func (s *Service) ListDeals(ctx context.Context, id identity.Identity, filter DealFilter, p paging.Params) (paging.Page[*Deal], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceDeal)
	if err != nil {
		return paging.Page[*Deal]{}, err
	}
	return s.store.ListDeals(ctx, sc, filter, p)
}

// GetDeal returns one deal in the caller's scope
func (s *Service) GetDeal(ctx context.Context, id identity.Identity, dealID int64) (*Deal, error) {
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, dealPerm(rbac.ActionRead), dealTarget(d)); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDeal opens a deal on a client the caller can read. The owner
// defaults to the caller and must be in their scope.
func (s *Service) CreateDeal(ctx context.Context, id identity.Identity, req CreateDealRequest) (*Deal, error) {
	title, err := requireName("title", req.Title, 300)
	if err != nil {
		return nil, err
	}
	if err := requireNonNegative("value", req.Value); err != nil {
		return nil, err
	}
	stage := StageLead
	if req.Stage != "" {
		if stage, err = ParseDealStage(req.Stage); err != nil {
			return nil, err
		}
	}

	c, err := s.readableClient(ctx, id, req.ClientID)
	if err != nil {
		return nil, err
	}
	d := &Deal{
		TenantID: c.TenantID,
		ClientID: c.ID,
		OwnerID:  ownerOrSelf(id, req.OwnerID),
		Title:    title,
		Value:    req.Value,
		Stage:    stage,
	}
	owner := &authz.Target{TenantID: d.TenantID, OwnerIDs: []int64{d.OwnerID}}
	if _, err := s.gate.Require(ctx, id, dealPerm(rbac.ActionCreate), owner); err != nil {
		return nil, err
	}
	if err := s.requireTenantUser(ctx, d.OwnerID, d.TenantID); err != nil {
		return nil, err
	}
	if err := s.store.CreateDeal(ctx, d); err != nil {
		return nil, err
	}
	d.clientOwnerID = c.AssignedSalesPersonID
	s.audit(ctx, audit.EventTypeDataCreate, rbac.ResourceDeal, d.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"title": d.Title, "client_id": d.ClientID, "owner_id": d.OwnerID},
	})
	return d, nil
}

// UpdateDeal changes a deal in the caller's scope
func (s *Service) UpdateDeal(ctx context.Context, id identity.Identity, dealID int64, req UpdateDealRequest) (*Deal, error) {
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, dealPerm(rbac.ActionUpdate), dealWriteTarget(d)); err != nil {
		return nil, err
	}

	before := map[string]interface{}{"title": d.Title, "value": d.Value, "stage": string(d.Stage)}
	if req.Title != nil {
		if d.Title, err = requireName("title", *req.Title, 300); err != nil {
			return nil, err
		}
	}
	if req.Value != nil {
		if err := requireNonNegative("value", *req.Value); err != nil {
			return nil, err
		}
		d.Value = *req.Value
	}
	if req.Stage != nil {
		if d.Stage, err = ParseDealStage(*req.Stage); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateDeal(ctx, d); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataUpdate, rbac.ResourceDeal, d.ID, &audit.ChangeDetails{
		Before: before,
		After:  map[string]interface{}{"title": d.Title, "value": d.Value, "stage": string(d.Stage)},
	})
	return d, nil
}

// ReassignDeal moves a deal to a new owner in the caller's scope
func (s *Service) ReassignDeal(ctx context.Context, id identity.Identity, dealID int64, req ReassignRequest) (*Deal, error) {
	if req.AssignedSalesPersonID <= 0 {
		return nil, apperror.Validation("assignedSalesPersonId is required")
	}
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireReassign(ctx, id, rbac.ResourceDeal, dealWriteTarget(d), req.AssignedSalesPersonID); err != nil {
		return nil, err
	}
	if err := s.requireTenantUser(ctx, req.AssignedSalesPersonID, d.TenantID); err != nil {
		return nil, err
	}
	previous := d.OwnerID
	if err := s.store.ReassignDeal(ctx, d, req.AssignedSalesPersonID); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataReassign, rbac.ResourceDeal, d.ID, reassignChange(previous, d.OwnerID))
	return d, nil
}

// DeleteDeal removes a deal in the caller's scope
func (s *Service) DeleteDeal(ctx context.Context, id identity.Identity, dealID int64) error {
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, id, dealPerm(rbac.ActionDelete), dealWriteTarget(d)); err != nil {
		return err
	}
	if err := s.store.DeleteDeal(ctx, d.ID); err != nil {
		return err
	}
	s.audit(ctx, audit.EventTypeDataDelete, rbac.ResourceDeal, d.ID, nil)
	return nil
}
