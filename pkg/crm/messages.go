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

const messageColumns = `m.id, m.key, m.tenant_id, m.sender_id, m.recipient_id, m.client_id, m.body, m.sent_at`

func scanMessage(row rowScanner) (*Message, error) {
	m := &Message{}
	var clientID sql.NullInt64
	err := row.Scan(&m.ID, &m.Key, &m.TenantID, &m.SenderID, &m.RecipientID, &clientID, &m.Body, &m.SentAt)
	if err != nil {
		return nil, err
	}
	m.ClientID = int64Ptr(clientID)
	return m, nil
}

// GetMessage retrieves a message by id
func (s *Store) GetMessage(ctx context.Context, id int64) (*Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("message %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// ListMessages returns the messages sent or received by a user in sc,
// newest first
func (s *Store) ListMessages(ctx context.Context, sc *scope.Scope, filter MessageFilter, p paging.Params) (paging.Page[*Message], error) {
	var w postgres.Where
	w.Scope(sc, "m.tenant_id", "m.sender_id", "m.recipient_id")
	if filter.ClientID != nil {
		w.And("m.client_id = " + w.Arg(*filter.ClientID))
	}
	return listPage(ctx, s.db, messageColumns, "messages m", "m.sent_at DESC, m.id DESC", &w, p, scanMessage)
}

// CreateMessage inserts m
func (s *Store) CreateMessage(ctx context.Context, m *Message) error {
	m.Key = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (key, tenant_id, sender_id, recipient_id, client_id, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sent_at
	`, m.Key, m.TenantID, m.SenderID, m.RecipientID, m.ClientID, m.Body).Scan(&m.ID, &m.SentAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func messageTarget(m *Message) *authz.Target {
	return &authz.Target{ID: m.ID, TenantID: m.TenantID, OwnerIDs: []int64{m.SenderID, m.RecipientID}}
}

// ListMessages returns the messages in the caller's scope
func (s *Service) ListMessages(ctx context.Context, id identity.Identity, filter MessageFilter, p paging.Params) (paging.Page[*Message], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceMessage)
	if err != nil {
		return paging.Page[*Message]{}, err
	}
	return s.store.ListMessages(ctx, sc, filter, p)
}

// GetMessage returns a message whose sender or recipient is in scope
func (s *Service) GetMessage(ctx context.Context, id identity.Identity, messageID int64) (*Message, error) {
	m, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, rbac.NewPermission(rbac.ResourceMessage, rbac.ActionRead), messageTarget(m)); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMessage sends a message from the caller to any active user of the
// same tenant
func (s *Service) CreateMessage(ctx context.Context, id identity.Identity, req CreateMessageRequest) (*Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperror.Validation("body is required")
	}
	if req.RecipientID <= 0 {
		return nil, apperror.Validation("recipientId is required")
	}
	if req.RecipientID == id.UserID {
		return nil, apperror.Validation("you cannot message yourself")
	}

	tenantID, err := targetTenant(id, req.TenantID)
	if err != nil {
		return nil, err
	}
	m := &Message{TenantID: tenantID, SenderID: id.UserID, RecipientID: req.RecipientID, ClientID: req.ClientID, Body: body}

	sender := &authz.Target{TenantID: tenantID, OwnerIDs: []int64{m.SenderID}}
	if _, err := s.gate.Require(ctx, id, rbac.NewPermission(rbac.ResourceMessage, rbac.ActionCreate), sender); err != nil {
		return nil, err
	}
	if m.ClientID != nil {
		c, err := s.readableClient(ctx, id, *m.ClientID)
		if err != nil {
			return nil, err
		}
		if c.TenantID != tenantID {
			return nil, apperror.Validation("client %d belongs to another tenant", c.ID)
		}
	}
	if err := s.requireTenantUser(ctx, m.RecipientID, tenantID); err != nil {
		return nil, err
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataCreate, rbac.ResourceMessage, m.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"recipient_id": m.RecipientID},
	})
	return m, nil
}
