package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

const productColumns = `p.id, p.key, p.tenant_id, p.name, p.sku, p.unit_price, p.is_active, p.created_at, p.updated_at`

func scanProduct(row rowScanner) (*Product, error) {
	p := &Product{}
	err := row.Scan(&p.ID, &p.Key, &p.TenantID, &p.Name, &p.SKU, &p.UnitPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProduct retrieves a product by id
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListProducts returns the catalogue of every tenant in sc
func (s *Store) ListProducts(ctx context.Context, sc *scope.Scope, p paging.Params) (paging.Page[*Product], error) {
	var w postgres.Where
	w.Scope(sc, "p.tenant_id")
	return listPage(ctx, s.db, productColumns, "products p", "p.name, p.id", &w, p, scanProduct)
}

// CreateProduct inserts p
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	p.Key = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (key, tenant_id, name, sku, unit_price, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at, updated_at
	`, p.Key, p.TenantID, p.Name, p.SKU, p.UnitPrice).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return apperror.Conflict("sku %q already exists", p.SKU)
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	p.IsActive = true
	return nil
}

// UpdateProduct writes the mutable fields of p
func (s *Store) UpdateProduct(ctx context.Context, p *Product) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $1, sku = $2, unit_price = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`, p.Name, p.SKU, p.UnitPrice, p.IsActive, p.ID).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("product %d not found", p.ID)
	}
	if postgres.IsUniqueViolation(err) {
		return apperror.Conflict("sku %q already exists", p.SKU)
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("product %d not found", id)
	}
	return nil
}

func productPerm(action rbac.Action) rbac.Permission {
	return rbac.NewPermission(rbac.ResourceProduct, action)
}

func productTarget(p *Product) *authz.Target {
	return &authz.Target{ID: p.ID, TenantID: p.TenantID}
}

// ListProducts returns the catalogue of the caller's tenant
func (s *Service) ListProducts(ctx context.Context, id identity.Identity, p paging.Params) (paging.Page[*Product], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceProduct)
	if err != nil {
		return paging.Page[*Product]{}, err
	}
	return s.store.ListProducts(ctx, sc, p)
}

// GetProduct returns one product of the caller's tenant
func (s *Service) GetProduct(ctx context.Context, id identity.Identity, productID int64) (*Product, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, productPerm(rbac.ActionRead), productTarget(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProduct adds a catalogue item
func (s *Service) CreateProduct(ctx context.Context, id identity.Identity, req CreateProductRequest) (*Product, error) {
	name, err := requireName("name", req.Name, 300)
	if err != nil {
		return nil, err
	}
	sku, err := requireName("sku", req.SKU, 64)
	if err != nil {
		return nil, err
	}
	if err := requireNonNegative("unitPrice", req.UnitPrice); err != nil {
		return nil, err
	}
	tenantID, err := targetTenant(id, req.TenantID)
	if err != nil {
		return nil, err
	}

	p := &Product{TenantID: tenantID, Name: name, SKU: strings.ToUpper(sku), UnitPrice: req.UnitPrice}
	if _, err := s.gate.Require(ctx, id, productPerm(rbac.ActionCreate), productTarget(p)); err != nil {
		return nil, err
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataCreate, rbac.ResourceProduct, p.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"name": p.Name, "sku": p.SKU, "unit_price": p.UnitPrice},
	})
	return p, nil
}

// UpdateProduct changes a catalogue item
func (s *Service) UpdateProduct(ctx context.Context, id identity.Identity, productID int64, req UpdateProductRequest) (*Product, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, productPerm(rbac.ActionUpdate), productTarget(p)); err != nil {
		return nil, err
	}

	before := map[string]interface{}{"name": p.Name, "sku": p.SKU, "unit_price": p.UnitPrice, "is_active": p.IsActive}
	if req.Name != nil {
		if p.Name, err = requireName("name", *req.Name, 300); err != nil {
			return nil, err
		}
	}
	if req.SKU != nil {
		sku, err := requireName("sku", *req.SKU, 64)
		if err != nil {
			return nil, err
		}
		p.SKU = strings.ToUpper(sku)
	}
	if req.UnitPrice != nil {
		if err := requireNonNegative("unitPrice", *req.UnitPrice); err != nil {
			return nil, err
		}
		p.UnitPrice = *req.UnitPrice
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataUpdate, rbac.ResourceProduct, p.ID, &audit.ChangeDetails{
		Before: before,
		After:  map[string]interface{}{"name": p.Name, "sku": p.SKU, "unit_price": p.UnitPrice, "is_active": p.IsActive},
	})
	return p, nil
}

// DeleteProduct removes a catalogue item
func (s *Service) DeleteProduct(ctx context.Context, id identity.Identity, productID int64) error {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, id, productPerm(rbac.ActionDelete), productTarget(p)); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, p.ID); err != nil {
		return err
	}
	s.audit(ctx, audit.EventTypeDataDelete, rbac.ResourceProduct, p.ID, nil)
	return nil
}
