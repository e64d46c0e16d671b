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

const (
	taskColumns = `t.id, t.key, t.tenant_id, t.client_id, t.assigned_to_id, t.title, t.due_at, t.is_done,
		       t.created_at, t.updated_at, c.assigned_sales_person_id`
	taskFrom = `tasks t LEFT JOIN clients c ON c.id = t.client_id`
)

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var clientID, clientOwner sql.NullInt64
	var due sql.NullTime
	err := row.Scan(
		&t.ID, &t.Key, &t.TenantID, &clientID, &t.AssignedToID, &t.Title, &due, &t.IsDone,
		&t.CreatedAt, &t.UpdatedAt, &clientOwner,
	)
	if err != nil {
		return nil, err
	}
	t.ClientID = int64Ptr(clientID)
	t.clientOwnerID = int64Ptr(clientOwner)
	if due.Valid {
		t.DueAt = &due.Time
	}
	return t, nil
}

// GetTask retrieves a task by id
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM `+taskFrom+` WHERE t.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("task %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks visible through sc, soonest due first
func (s *Store) ListTasks(ctx context.Context, sc *scope.Scope, filter TaskFilter, p paging.Params) (paging.Page[*Task], error) {
	var w postgres.Where
	w.Scope(sc, "t.tenant_id", "t.assigned_to_id", "c.assigned_sales_person_id")
	if filter.ClientID != nil {
		w.And("t.client_id = " + w.Arg(*filter.ClientID))
	}
	if filter.OpenOnly {
		w.And("NOT t.is_done")
	}
	return listPage(ctx, s.db, taskColumns, taskFrom, "t.due_at NULLS LAST, t.id", &w, p, scanTask)
}

// CreateTask inserts t
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	t.Key = uuid.New()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (key, tenant_id, client_id, assigned_to_id, title, due_at, is_done)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id, created_at, updated_at
	`, t.Key, t.TenantID, t.ClientID, t.AssignedToID, t.Title, t.DueAt).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// UpdateTask writes title, due date and completion
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title = $1, due_at = $2, is_done = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`, t.Title, t.DueAt, t.IsDone, t.ID).Scan(&t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("task %d not found", t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// ReassignTask hands t to newAssignee if it is still assigned to
// t.AssignedToID. A concurrent reassignment makes it fail with Conflict.
func (s *Store) ReassignTask(ctx context.Context, t *Task, newAssignee int64) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET assigned_to_id = $1, updated_at = NOW()
		WHERE id = $2 AND assigned_to_id = $3
		RETURNING updated_at
	`, newAssignee, t.ID, t.AssignedToID).Scan(&t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Conflict("task %d was changed by someone else", t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to reassign task: %w", err)
	}
	t.AssignedToID = newAssignee
	return nil
}

// DeleteTask removes a task
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("task %d not found", id)
	}
	return nil
}

func taskTarget(t *Task) *authz.Target {
	owners := []int64{t.AssignedToID}
	if t.clientOwnerID != nil {
		owners = append(owners, *t.clientOwnerID)
	}
	return &authz.Target{ID: t.ID, TenantID: t.TenantID, OwnerIDs: owners}
}

func taskWriteTarget(t *Task) *authz.Target {
	return &authz.Target{ID: t.ID, TenantID: t.TenantID, OwnerIDs: []int64{t.AssignedToID}}
}

func taskPerm(action rbac.Action) rbac.Permission {
	return rbac.NewPermission(rbac.ResourceTask, action)
}

// ListTasks returns the tasks in the caller's scope
func (s *Service) ListTasks(ctx context.Context, id identity.Identity, filter TaskFilter, p paging.Params) (paging.Page[*Task], error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceTask)
	if err != nil {
		return paging.Page[*Task]{}, err
	}
	return s.store.ListTasks(ctx, sc, filter, p)
}

// GetTask returns one task in the caller's scope
func (s *Service) GetTask(ctx context.Context, id identity.Identity, taskID int64) (*Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, taskPerm(rbac.ActionRead), taskTarget(t)); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask adds a task. A task about a client lives in the client's
// tenant and needs read access to the client.
func (s *Service) CreateTask(ctx context.Context, id identity.Identity, req CreateTaskRequest) (*Task, error) {
	title, err := requireName("title", req.Title, 300)
	if err != nil {
		return nil, err
	}
	t := &Task{
		ClientID:     req.ClientID,
		AssignedToID: ownerOrSelf(id, req.AssignedToID),
		Title:        title,
		DueAt:        req.DueAt,
	}
	if req.ClientID != nil {
		c, err := s.readableClient(ctx, id, *req.ClientID)
		if err != nil {
			return nil, err
		}
		t.TenantID = c.TenantID
		t.clientOwnerID = &c.AssignedSalesPersonID
	} else if t.TenantID, err = targetTenant(id, req.TenantID); err != nil {
		return nil, err
	}

	assignee := &authz.Target{TenantID: t.TenantID, OwnerIDs: []int64{t.AssignedToID}}
	if _, err := s.gate.Require(ctx, id, taskPerm(rbac.ActionCreate), assignee); err != nil {
		return nil, err
	}
	if err := s.requireTenantUser(ctx, t.AssignedToID, t.TenantID); err != nil {
		return nil, err
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataCreate, rbac.ResourceTask, t.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"title": t.Title, "assigned_to_id": t.AssignedToID},
	})
	return t, nil
}

// UpdateTask changes a task in the caller's scope
func (s *Service) UpdateTask(ctx context.Context, id identity.Identity, taskID int64, req UpdateTaskRequest) (*Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, id, taskPerm(rbac.ActionUpdate), taskWriteTarget(t)); err != nil {
		return nil, err
	}
	if req.Title != nil {
		if t.Title, err = requireName("title", *req.Title, 300); err != nil {
			return nil, err
		}
	}
	if req.DueAt != nil {
		t.DueAt = req.DueAt
	}
	if req.IsDone != nil {
		t.IsDone = *req.IsDone
	}
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataUpdate, rbac.ResourceTask, t.ID, &audit.ChangeDetails{
		After: map[string]interface{}{"title": t.Title, "is_done": t.IsDone},
	})
	return t, nil
}

// ReassignTask hands a task to another user in the caller's scope
func (s *Service) ReassignTask(ctx context.Context, id identity.Identity, taskID int64, req ReassignRequest) (*Task, error) {
	if req.AssignedSalesPersonID <= 0 {
		return nil, apperror.Validation("assignedSalesPersonId is required")
	}
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireReassign(ctx, id, rbac.ResourceTask, taskWriteTarget(t), req.AssignedSalesPersonID); err != nil {
		return nil, err
	}
	if err := s.requireTenantUser(ctx, req.AssignedSalesPersonID, t.TenantID); err != nil {
		return nil, err
	}
	previous := t.AssignedToID
	if err := s.store.ReassignTask(ctx, t, req.AssignedSalesPersonID); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventTypeDataReassign, rbac.ResourceTask, t.ID, reassignChange(previous, t.AssignedToID))
	return t, nil
}

// DeleteTask removes a task in the caller's scope
func (s *Service) DeleteTask(ctx context.Context, id identity.Identity, taskID int64) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, id, taskPerm(rbac.ActionDelete), taskWriteTarget(t)); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, t.ID); err != nil {
		return err
	}
	s.audit(ctx, audit.EventTypeDataDelete, rbac.ResourceTask, t.ID, nil)
	return nil
}
