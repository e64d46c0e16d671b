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

const clientColumns = `c.id, c.key, c.tenant_id, c.name, c.status, c.assigned_sales_person_id, c.pipeline_status_id,
		       c.email, c.phone, c.annual_value, c.forecast_value, c.collected_value, c.is_active,
		       c.created_at, c.updated_at`

func scanClient(row rowScanner) (*Client, error) {
	c := &Client{}
	var pipeline sql.NullInt64
	err := row.Scan(
		&c.ID, &c.Key, &c.TenantID, &c.Name, &c.Status, &c.AssignedSalesPersonID, &pipeline,
		&c.Email, &c.Phone, &c.AnnualValue, &c.ForecastValue, &c.CollectedValue, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.PipelineStatusID = int64Ptr(pipeline)
	return c, nil
}

// GetClient retrieves a client by id, including soft-deleted ones
func (s *Store) GetClient(ctx context.Context, id int64) (*Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients c WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("client %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// ListClients returns the clients visible through sc
func (s *Store) ListClients(ctx context.Context, sc *scope.Scope, filter ClientFilter, p paging.Params) (paging.Page[*Client], error) {
	var w postgres.Where
	w.Scope(sc, "c.tenant_id", "c.assigned_sales_person_id")
	if !filter.IncludeInactive {
		w.And("c.is_active")
	}
	if filter.Status != "" {
		w.And("c.status = " + w.Arg(string(filter.Status)))
	}
	if filter.Search != "" {
		pattern := w.Arg("%" + filter.Search + "%")
		w.And("(c.name ILIKE " + pattern + " OR c.email ILIKE " + pattern + ")")
	}
	return listPage(ctx, s.db, clientColumns, "clients c", "c.name, c.id", &w, p, scanClient)
}

// CreateClient inserts c and fills its generated fields
func (s *Store) CreateClient(ctx context.Context, c *Client) error {
	c.Key = uuid.New()
	query := `
		INSERT INTO clients (key, tenant_id, name, status, assigned_sales_person_id, pipeline_status_id,
		                     email, phone, annual_value, forecast_value, collected_value, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.Key, c.TenantID, c.Name, string(c.Status), c.AssignedSalesPersonID, c.PipelineStatusID,
		c.Email, c.Phone, c.AnnualValue, c.ForecastValue, c.CollectedValue, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if postgres.IsForeignKeyViolation(err) {
		return apperror.Validation("client references an unknown tenant or user")
	}
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// UpdateClient writes the mutable fields of c. The owner is not touched.
func (s *Store) UpdateClient(ctx context.Context, c *Client) error {
	query := `
		UPDATE clients
		SET name = $1, status = $2, pipeline_status_id = $3, email = $4, phone = $5,
		    annual_value = $6, forecast_value = $7, collected_value = $8, is_active = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.Name, string(c.Status), c.PipelineStatusID, c.Email, c.Phone,
		c.AnnualValue, c.ForecastValue, c.CollectedValue, c.IsActive, c.ID,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("client %d not found", c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// ReassignClient moves a client to newOwner if it is still owned by
// oldOwner. A concurrent reassignment makes it fail with Conflict.
func (s *Store) ReassignClient(ctx context.Context, id, oldOwner, newOwner int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET assigned_sales_person_id = $1, updated_at = NOW()
		WHERE id = $2 AND assigned_sales_person_id = $3
	`, newOwner, id, oldOwner)
	if err != nil {
		return fmt.Errorf("failed to reassign client: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Conflict("client %d was changed by someone else", id)
	}
	return nil
}

// DeactivateClient soft-deletes a client
func (s *Store) DeactivateClient(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE clients SET is_active = FALSE, status = 'Inactive', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("client %d not found", id)
	}
	return nil
}

func clientTarget(c *Client) *authz.Target {
	return &authz.Target{ID: c.ID, TenantID: c.TenantID, OwnerIDs: []int64{c.AssignedSalesPersonID}}
}

func clientPerm(action rbac.Action) rbac.Permission {
	return rbac.NewPermission(rbac.ResourceClient, action)
}

// ListClients returns the clients in the caller's scope
func (s *Service) ListClients(ctx context.Context, id identity.Identity, filter ClientFilter, p paging.Params) (paging.Page[*Client], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceClient)
	if err != nil {
		return paging.Page[*Client]{}, err
	}
	return s.store.ListClients(ctx, sc, filter, p)
}

// GetClient returns one client in the caller's scope
func (s *Service) GetClient(ctx context.Context, id identity.Identity, clientID int64) (*Client, error) {
	return s.readableClient(ctx, id, clientID)
}

func (s *Service) readableClient(ctx context.Context, id identity.Identity, clientID int64) (*Client, error) {
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, clientPerm(rbac.ActionRead), clientTarget(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateClient adds a client. The owner must be in the caller's scope and
// an active user of the client's tenant.
func (s *Service) CreateClient(ctx context.Context, id identity.Identity, req CreateClientRequest) (*Client, error) {
	c, err := req.build()
	if err != nil {
		return nil, err
	}
	if c.TenantID, err = targetTenant(id, req.TenantID); err != nil {
		return nil, err
	}
	c.AssignedSalesPersonID = ownerOrSelf(id, req.AssignedSalesPersonID)

	if _, err := s.gate.Require(ctx, id, clientPerm(rbac.ActionCreate), clientTarget(c)); err != nil {
		return nil, err
	}
	if err := s.requireTenantUser(ctx, c.AssignedSalesPersonID, c.TenantID); err != nil {
		return nil, err
	}
	if err := s.store.CreateClient(ctx, c); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataCreate, rbac.ResourceClient, c.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"name": c.Name, "owner_id": c.AssignedSalesPersonID},
	})
	return c, nil
}

// UpdateClient changes a client in the caller's scope
func (s *Service) UpdateClient(ctx context.Context, id identity.Identity, clientID int64, req UpdateClientRequest) (*Client, error) {
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, clientPerm(rbac.ActionUpdate), clientTarget(c)); err != nil {
		return nil, err
	}
	before := map[string]interface{}{"name": c.Name, "status": string(c.Status)}
	if err := req.apply(c); err != nil {
		return nil, err
	}
	if err := s.store.UpdateClient(ctx, c); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataUpdate, rbac.ResourceClient, c.ID, &audit.ChangeDetails{
		Before: before,
		After:  map[string]interface{}{"name": c.Name, "status": string(c.Status)},
	})
	return c, nil
}

// ReassignClient transfers a client to another salesperson. Both the
// current owner and the new one must be in the caller's scope, and the new
// owner must be an active user of the client's tenant.
func (s *Service) ReassignClient(ctx context.Context, id identity.Identity, clientID int64, req ReassignRequest) (*Client, error) {
	if req.AssignedSalesPersonID <= 0 {
		return nil, apperror.Validation("assignedSalesPersonId is required")
	}
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireReassign(ctx, id, rbac.ResourceClient, clientTarget(c), req.AssignedSalesPersonID); err != nil {
		return nil, err
	}
	if req.AssignedSalesPersonID == c.AssignedSalesPersonID {
		return c, nil
	}
	if err := s.requireTenantUser(ctx, req.AssignedSalesPersonID, c.TenantID); err != nil {
		return nil, err
	}
	if err := s.store.ReassignClient(ctx, c.ID, c.AssignedSalesPersonID, req.AssignedSalesPersonID); err != nil {
		return nil, err
	}

	s.audit(ctx, audit.EventTypeDataReassign, rbac.ResourceClient, c.ID, reassignChange(c.AssignedSalesPersonID, req.AssignedSalesPersonID))
	c.AssignedSalesPersonID = req.AssignedSalesPersonID
	return c, nil
}

// DeleteClient soft-deletes a client in the caller's scope
func (s *Service) DeleteClient(ctx context.Context, id identity.Identity, clientID int64) error {
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, id, clientPerm(rbac.ActionDelete), clientTarget(c)); err != nil {
		return err
	}
	if err := s.store.DeactivateClient(ctx, c.ID); err != nil {
		return err
	}
	s.audit(ctx, audit.EventTypeDataDelete, rbac.ResourceClient, c.ID, nil)
	return nil
}
