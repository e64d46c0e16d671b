package crm

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dealRowColumns = []string{
	"id", "key", "tenant_id", "client_id", "owner_id", "title", "value", "stage",
	"created_at", "updated_at", "client_owner",
}

func expectDeal(mock sqlmock.Sqlmock, id, clientID, ownerID, clientOwner int64) {
	now := time.Now()
	mock.ExpectQuery(q("WHERE d.id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(dealRowColumns).
			AddRow(id, uuid.NewString(), 1, clientID, ownerID, "Renewal", 50000, "Proposal", now, now, clientOwner))
}

func TestDealVisibilityFollowsClientOwner(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		owner   int64
		client  int64
		allowed bool
	}{
		{"deal owner", "lisa@speccon.co.za", 6, 5, true},
		{"client owner", "tom@speccon.co.za", 6, 5, true},
		{"neither", "ben@speccon.co.za", 6, 5, false},
		{"manager of deal owner only", "sarah@speccon.co.za", 7, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, ds := newTestService(t)
			expectDeal(mock, 900, 101, tt.owner, tt.client)

			d, err := svc.GetDeal(context.Background(), ds.Identity(tt.caller), 900)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, StageProposal, d.Stage)
			} else {
				assert.True(t, apperror.IsPermissionDenied(err), "got %v", err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListDealsScopesBothOwners(t *testing.T) {
	svc, mock, ds := newTestService(t)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM deals d JOIN clients c ON c.id = d.client_id WHERE d.tenant_id = $1 AND (d.owner_id = ANY($2) OR c.assigned_sales_person_id = ANY($2)) AND d.stage = $3")).
		WithArgs(int64(1), pq.Array([]int64{5}), "Won").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	page, err := svc.ListDeals(context.Background(), ds.Identity("tom@speccon.co.za"), DealFilter{Stage: StageWon}, paging.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeal(t *testing.T) {
	t.Run("on own client", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		now := time.Now()
		expectClient(t, mock, ds, 101)
		mock.ExpectQuery(q("INSERT INTO deals")).
			WithArgs(sqlmock.AnyArg(), int64(1), int64(101), int64(5), "Renewal", int64(5000), "Lead").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(901, now, now))

		d, err := svc.CreateDeal(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateDealRequest{ClientID: 101, Title: "Renewal", Value: 5000})
		require.NoError(t, err)
		assert.Equal(t, int64(901), d.ID)
		assert.Equal(t, StageLead, d.Stage)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("on a client outside scope", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		expectClient(t, mock, ds, 105)

		_, err := svc.CreateDeal(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateDealRequest{ClientID: 105, Title: "Sneaky"})
		assert.True(t, apperror.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown stage", func(t *testing.T) {
		svc, _, ds := newTestService(t)
		_, err := svc.CreateDeal(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateDealRequest{ClientID: 101, Title: "Renewal", Stage: "Maybe"})
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("negative value", func(t *testing.T) {
		svc, _, ds := newTestService(t)
		_, err := svc.CreateDeal(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateDealRequest{ClientID: 101, Title: "Renewal", Value: -1})
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestReassignDeal(t *testing.T) {
	t.Run("moves the owner", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		rec := &recordingAudit{}
		ctx := audit.WithLogger(context.Background(), rec)

		expectDeal(mock, 900, 101, 5, 5)
		mock.ExpectQuery(q("UPDATE deals SET owner_id = $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3")).
			WithArgs(int64(6), int64(900), int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

		d, err := svc.ReassignDeal(ctx, ds.Identity("mike@speccon.co.za"), 900, ReassignRequest{AssignedSalesPersonID: 6})
		require.NoError(t, err)
		assert.Equal(t, int64(6), d.OwnerID)
		require.Len(t, rec.events, 1)
		assert.Equal(t, audit.EventTypeDataReassign, rec.events[0].EventType)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner changed underneath", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		rec := &recordingAudit{}
		ctx := audit.WithLogger(context.Background(), rec)

		expectDeal(mock, 900, 101, 5, 5)
		mock.ExpectQuery(q("UPDATE deals SET owner_id = $1")).
			WithArgs(int64(6), int64(900), int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

		_, err := svc.ReassignDeal(ctx, ds.Identity("mike@speccon.co.za"), 900, ReassignRequest{AssignedSalesPersonID: 6})
		assert.True(t, apperror.IsConflict(err), "got %v", err)
		assert.Empty(t, rec.events)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// Deal 900 is Ben's (Team B) on Tom's client 101 (Team A). Tom may read
// it but only Ben's side of the hierarchy may change it.
func TestDealWritesRequireDealOwnerInScope(t *testing.T) {
	title := "Renewal 2027"
	tests := []struct {
		name    string
		caller  string
		op      string
		allowed bool
	}{
		{"client owner deletes", "tom@speccon.co.za", "delete", false},
		{"client owner updates", "tom@speccon.co.za", "update", false},
		{"client owner's manager reassigns to client owner", "mike@speccon.co.za", "reassign", false},
		{"client owner's manager deletes", "mike@speccon.co.za", "delete", false},
		{"deal owner deletes", "ben@speccon.co.za", "delete", true},
		{"deal owner's manager updates", "sarah@speccon.co.za", "update", true},
		{"group sales manager deletes", "john@speccon.co.za", "delete", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, ds := newTestService(t)
			ctx := context.Background()
			caller := ds.Identity(tt.caller)
			expectDeal(mock, 900, 101, 7, 5)

			var err error
			switch tt.op {
			case "delete":
				if tt.allowed {
					mock.ExpectExec(q("DELETE FROM deals WHERE id = $1")).
						WithArgs(int64(900)).
						WillReturnResult(sqlmock.NewResult(0, 1))
				}
				err = svc.DeleteDeal(ctx, caller, 900)
			case "update":
				if tt.allowed {
					mock.ExpectQuery(q("UPDATE deals SET title = $1")).
						WithArgs(title, int64(50000), "Proposal", int64(900)).
						WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
				}
				_, err = svc.UpdateDeal(ctx, caller, 900, UpdateDealRequest{Title: &title})
			case "reassign":
				_, err = svc.ReassignDeal(ctx, caller, 900, ReassignRequest{AssignedSalesPersonID: 5})
			}

			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperror.IsPermissionDenied(err), "got %v", err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

var taskRowColumns = []string{
	"id", "key", "tenant_id", "client_id", "assigned_to_id", "title", "due_at", "is_done",
	"created_at", "updated_at", "client_owner",
}

func expectTask(mock sqlmock.Sqlmock, id, clientID, assignee, clientOwner int64) {
	now := time.Now()
	mock.ExpectQuery(q("WHERE t.id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(id, uuid.NewString(), 1, clientID, assignee, "Call back", nil, false, now, now, clientOwner))
}

func TestTaskWritesRequireAssigneeInScope(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		op      string
		allowed bool
	}{
		{"client owner reads", "tom@speccon.co.za", "read", true},
		{"client owner deletes", "tom@speccon.co.za", "delete", false},
		{"client owner completes", "tom@speccon.co.za", "update", false},
		{"client owner's manager reassigns to client owner", "mike@speccon.co.za", "reassign", false},
		{"assignee completes", "ben@speccon.co.za", "update", true},
		{"assignee's manager deletes", "sarah@speccon.co.za", "delete", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, ds := newTestService(t)
			ctx := context.Background()
			caller := ds.Identity(tt.caller)
			done := true
			expectTask(mock, 700, 101, 7, 5)

			var err error
			switch tt.op {
			case "read":
				_, err = svc.GetTask(ctx, caller, 700)
			case "delete":
				if tt.allowed {
					mock.ExpectExec(q("DELETE FROM tasks WHERE id = $1")).
						WithArgs(int64(700)).
						WillReturnResult(sqlmock.NewResult(0, 1))
				}
				err = svc.DeleteTask(ctx, caller, 700)
			case "update":
				if tt.allowed {
					mock.ExpectQuery(q("UPDATE tasks SET title = $1")).
						WithArgs("Call back", nil, true, int64(700)).
						WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
				}
				_, err = svc.UpdateTask(ctx, caller, 700, UpdateTaskRequest{IsDone: &done})
			case "reassign":
				_, err = svc.ReassignTask(ctx, caller, 700, ReassignRequest{AssignedSalesPersonID: 5})
			}

			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperror.IsPermissionDenied(err), "got %v", err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReassignTaskConflict(t *testing.T) {
	svc, mock, ds := newTestService(t)
	expectTask(mock, 700, 101, 5, 5)
	mock.ExpectQuery(q("UPDATE tasks SET assigned_to_id = $1, updated_at = NOW() WHERE id = $2 AND assigned_to_id = $3")).
		WithArgs(int64(6), int64(700), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	_, err := svc.ReassignTask(context.Background(), ds.Identity("mike@speccon.co.za"), 700, ReassignRequest{AssignedSalesPersonID: 6})
	assert.True(t, apperror.IsConflict(err), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTaskWithoutClient(t *testing.T) {
	svc, mock, ds := newTestService(t)
	now := time.Now()

	mock.ExpectQuery(q("INSERT INTO tasks")).
		WithArgs(sqlmock.AnyArg(), int64(1), nil, int64(5), "Call back", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(700, now, now))

	task, err := svc.CreateTask(context.Background(), ds.Identity("tom@speccon.co.za"), CreateTaskRequest{Title: "Call back"})
	require.NoError(t, err)
	assert.Equal(t, int64(700), task.ID)
	assert.Equal(t, int64(5), task.AssignedToID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTaskForAnotherTeamIsDenied(t *testing.T) {
	svc, mock, ds := newTestService(t)
	kate := int64(8)

	_, err := svc.CreateTask(context.Background(), ds.Identity("mike@speccon.co.za"),
		CreateTaskRequest{Title: "Not mine", AssignedToID: &kate})
	assert.True(t, apperror.IsPermissionDenied(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListInteractionsRequiresReadableClient(t *testing.T) {
	t.Run("readable", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		expectClient(t, mock, ds, 103)
		mock.ExpectQuery(q("SELECT COUNT(*) FROM interactions i JOIN clients c ON c.id = i.client_id WHERE i.tenant_id = $1 AND (i.owner_id = ANY($2) OR c.assigned_sales_person_id = ANY($2)) AND i.client_id = $3")).
			WithArgs(int64(1), pq.Array([]int64{6}), int64(103)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := svc.ListInteractionsByClient(context.Background(), ds.Identity("lisa@speccon.co.za"), 103, paging.Params{})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreadable", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		expectClient(t, mock, ds, 103)

		_, err := svc.ListInteractionsByClient(context.Background(), ds.Identity("tom@speccon.co.za"), 103, paging.Params{})
		assert.True(t, apperror.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateInteractionDefaultsToNow(t *testing.T) {
	svc, mock, ds := newTestService(t)
	before := time.Now().UTC()
	expectClient(t, mock, ds, 101)
	mock.ExpectQuery(q("INSERT INTO interactions")).
		WithArgs(sqlmock.AnyArg(), int64(1), int64(101), int64(3), "call", "left voicemail", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(40, time.Now()))

	i, err := svc.CreateInteraction(context.Background(), ds.Identity("mike@speccon.co.za"),
		CreateInteractionRequest{ClientID: 101, Kind: " call ", Notes: "left voicemail"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), i.OwnerID)
	assert.False(t, i.OccurredAt.Before(before))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessage(t *testing.T) {
	t.Run("to a colleague", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		mock.ExpectQuery(q("INSERT INTO messages")).
			WithArgs(sqlmock.AnyArg(), int64(1), int64(5), int64(7), nil, "lunch?").
			WillReturnRows(sqlmock.NewRows([]string{"id", "sent_at"}).AddRow(12, time.Now()))

		m, err := svc.CreateMessage(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateMessageRequest{RecipientID: 7, Body: " lunch? "})
		require.NoError(t, err)
		assert.Equal(t, int64(5), m.SenderID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("to another tenant", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		_, err := svc.CreateMessage(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateMessageRequest{RecipientID: 22, Body: "hello"})
		assert.True(t, apperror.IsValidation(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("to self", func(t *testing.T) {
		svc, _, ds := newTestService(t)
		_, err := svc.CreateMessage(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateMessageRequest{RecipientID: 5, Body: "memo"})
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestGetMessageVisibleToEitherParty(t *testing.T) {
	for caller, allowed := range map[string]bool{
		"tom@speccon.co.za":   true,
		"ben@speccon.co.za":   true,
		"sarah@speccon.co.za": true,
		"lisa@speccon.co.za":  false,
	} {
		t.Run(caller, func(t *testing.T) {
			svc, mock, ds := newTestService(t)
			mock.ExpectQuery(q("FROM messages m WHERE m.id = $1")).
				WithArgs(int64(12)).
				WillReturnRows(sqlmock.NewRows([]string{"id", "key", "tenant_id", "sender_id", "recipient_id", "client_id", "body", "sent_at"}).
					AddRow(12, uuid.NewString(), 1, 5, 7, nil, "lunch?", time.Now()))

			_, err := svc.GetMessage(context.Background(), ds.Identity(caller), 12)
			if allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperror.IsPermissionDenied(err))
			}
		})
	}
}

func TestProducts(t *testing.T) {
	t.Run("salesperson lists tenant catalogue", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		mock.ExpectQuery(q("SELECT COUNT(*) FROM products p WHERE p.tenant_id = $1")).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		_, err := svc.ListProducts(context.Background(), ds.Identity("tom@speccon.co.za"), paging.Params{})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("salesperson cannot create", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		_, err := svc.CreateProduct(context.Background(), ds.Identity("tom@speccon.co.za"),
			CreateProductRequest{Name: "Widget", SKU: "wid-1", UnitPrice: 1999})
		assert.True(t, apperror.IsPermissionDenied(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin creates", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		now := time.Now()
		mock.ExpectQuery(q("INSERT INTO products")).
			WithArgs(sqlmock.AnyArg(), int64(1), "Widget", "WID-1", int64(1999)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))

		p, err := svc.CreateProduct(context.Background(), ds.Identity("hein@speccon.co.za"),
			CreateProductRequest{Name: "Widget", SKU: "wid-1", UnitPrice: 1999})
		require.NoError(t, err)
		assert.Equal(t, "WID-1", p.SKU)
		assert.True(t, p.IsActive)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate sku", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		mock.ExpectQuery(q("INSERT INTO products")).
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := svc.CreateProduct(context.Background(), ds.Identity("hein@speccon.co.za"),
			CreateProductRequest{Name: "Widget", SKU: "WID-1"})
		assert.True(t, apperror.IsConflict(err))
	})
}
