package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

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

const (
	interactionColumns = `i.id, i.key, i.tenant_id, i.client_id, i.owner_id, i.kind, i.notes, i.occurred_at,
		       i.created_at, c.assigned_sales_person_id`
	interactionFrom = `interactions i JOIN clients c ON c.id = i.client_id`
)

func scanInteraction(row rowScanner) (*Interaction, error) {
	i := &Interaction{}
	err := row.Scan(
		&i.ID, &i.Key, &i.TenantID, &i.ClientID, &i.OwnerID, &i.Kind, &i.Notes, &i.OccurredAt,
		&i.CreatedAt, &i.clientOwnerID,
	)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// ListInteractions returns the interactions of one client visible through
// sc, newest first
func (s *Store) ListInteractions(ctx context.Context, sc *scope.Scope, clientID int64, p paging.Params) (paging.Page[*Interaction], error) {
	var w postgres.Where
	w.Scope(sc, "i.tenant_id", "i.owner_id", "c.assigned_sales_person_id")
	w.And("i.client_id = " + w.Arg(clientID))
	return listPage(ctx, s.db, interactionColumns, interactionFrom, "i.occurred_at DESC, i.id DESC", &w, p, scanInteraction)
}

// CreateInteraction inserts i
func (s *Store) CreateInteraction(ctx context.Context, i *Interaction) error {
	i.Key = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO interactions (key, tenant_id, client_id, owner_id, kind, notes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, i.Key, i.TenantID, i.ClientID, i.OwnerID, i.Kind, i.Notes, i.OccurredAt).
		Scan(&i.ID, &i.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}
	return nil
}

// ListInteractionsByClient returns a client's interactions. The client
// itself must be readable.
func (s *Service) ListInteractionsByClient(ctx context.Context, id identity.Identity, clientID int64, p paging.Params) (paging.Page[*Interaction], error) {
	if _, err := s.readableClient(ctx, id, clientID); err != nil {
		return paging.Page[*Interaction]{}, err
	}
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceInteraction)
	if err != nil {
		return paging.Page[*Interaction]{}, err
	}
	return s.store.ListInteractions(ctx, sc, clientID, p)
}

// CreateInteraction logs a touchpoint on a client the caller can read.
// The caller owns the interaction.
func (s *Service) CreateInteraction(ctx context.Context, id identity.Identity, req CreateInteractionRequest) (*Interaction, error) {
	kind, err := requireName("kind", req.Kind, 40)
	if err != nil {
		return nil, err
	}
	c, err := s.readableClient(ctx, id, req.ClientID)
	if err != nil {
		return nil, err
	}
	if id.IsSystemAdmin {
		return nil, apperror.Validation("system admins cannot log interactions")
	}

	i := &Interaction{
		TenantID:      c.TenantID,
		ClientID:      c.ID,
		OwnerID:       id.UserID,
		Kind:          kind,
		Notes:         strings.TrimSpace(req.Notes),
		OccurredAt:    time.Now().UTC(),
		clientOwnerID: c.AssignedSalesPersonID,
	}
	if req.OccurredAt != nil {
		i.OccurredAt = req.OccurredAt.UTC()
	}
	target := &authz.Target{TenantID: i.TenantID, OwnerIDs: []int64{i.OwnerID}}
	if _, err := s.gate.Require(ctx, id, rbac.NewPermission(rbac.ResourceInteraction, rbac.ActionCreate), target); err != nil {
		return nil, err
	}
	if err := s.store.CreateInteraction(ctx, i); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataCreate, rbac.ResourceInteraction, i.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"client_id": i.ClientID, "kind": i.Kind},
	})
	return i, nil
}
