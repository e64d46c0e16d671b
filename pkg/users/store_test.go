package users

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	tenants []int64
}

func (r *recordingInvalidator) Invalidate(tenantID int64) {
	r.tenants = append(r.tenants, tenantID)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *recordingInvalidator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	inv := &recordingInvalidator{}
	return NewStore(db, inv), mock, inv
}

var userRowColumns = []string{
	"id", "key", "email", "display_name", "tenant_id", "role", "manager_id",
	"is_active", "is_system_admin", "created_at", "updated_at",
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestGetByID(t *testing.T) {
	store, mock, _ := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(q("FROM users u WHERE u.id = $1")).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(5, "6f1c2b4e-8a0d-4a57-9a43-5b0d7f0c9e11", "tom@speccon.co.za", "Tom", 1, "salesperson", 3, true, false, now, now))

		u, err := store.GetByID(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "tom@speccon.co.za", u.Email)
		assert.Equal(t, rbac.RoleSalesperson, u.Role)
		require.NotNil(t, u.TenantID)
		assert.Equal(t, int64(1), *u.TenantID)
		require.NotNil(t, u.ManagerID)
		assert.Equal(t, int64(3), *u.ManagerID)
		assert.Equal(t, "6f1c2b4e-8a0d-4a57-9a43-5b0d7f0c9e11", u.Key.String())
	})

	t.Run("system admin has no tenant", func(t *testing.T) {
		mock.ExpectQuery(q("FROM users u WHERE u.id = $1")).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(99, "1d7f7a59-9d8e-4e0e-b0a4-0e5e9e8e3c01", "root@crmgate.local", "Root", nil, "system-admin", nil, true, true, now, now))

		u, err := store.GetByID(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, u.TenantID)
		assert.Nil(t, u.ManagerID)
		assert.True(t, u.IsSystemAdmin)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(q("FROM users u WHERE u.id = $1")).
			WithArgs(int64(404)).
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := store.GetByID(ctx, 404)
		assert.True(t, apperror.IsNotFound(err))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesScope(t *testing.T) {
	store, mock, _ := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(q("SELECT COUNT(*) FROM users u WHERE u.tenant_id = $1 AND u.id = ANY($2) AND u.is_active")).
		WithArgs(int64(1), pq.Array([]int64{3, 5, 6})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(q("WHERE u.tenant_id = $1 AND u.id = ANY($2) AND u.is_active ORDER BY u.id LIMIT $3 OFFSET $4")).
		WithArgs(int64(1), pq.Array([]int64{3, 5, 6}), 2, 0).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(3, "0b3c7e9e-3f0a-4c1c-9d5e-8a9f0e1d2c03", "mike@speccon.co.za", "Mike", 1, "manager", 2, true, false, now, now).
			AddRow(5, "0b3c7e9e-3f0a-4c1c-9d5e-8a9f0e1d2c05", "tom@speccon.co.za", "Tom", 1, "salesperson", 3, true, false, now, now))

	page, err := store.List(ctx, scope.Users(1, 3, 5, 6), ListFilter{ActiveOnly: true}, paging.Params{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEmptyScopeSkipsRows(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM users u WHERE FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	page, err := store.List(context.Background(), &scope.Scope{}, ListFilter{}, paging.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.TotalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	tenant := int64(1)
	manager := int64(3)

	t.Run("success", func(t *testing.T) {
		store, mock, inv := newMockStore(t)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(q("SELECT tenant_id, is_active FROM users WHERE id = $1")).
			WithArgs(manager).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "is_active"}).AddRow(1, true))
		mock.ExpectQuery(q("INSERT INTO users")).
			WithArgs(sqlmock.AnyArg(), "new@speccon.co.za", "New", "hash", tenant, "salesperson", &manager).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(50, now, now))
		mock.ExpectCommit()

		u := &User{Email: "new@speccon.co.za", DisplayName: "New", TenantID: &tenant, Role: rbac.RoleSalesperson, ManagerID: &manager}
		require.NoError(t, store.Create(ctx, u, "hash"))
		assert.Equal(t, int64(50), u.ID)
		assert.True(t, u.IsActive)
		assert.Equal(t, []int64{1}, inv.tenants)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("manager in another tenant", func(t *testing.T) {
		store, mock, inv := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(q("SELECT tenant_id, is_active FROM users WHERE id = $1")).
			WithArgs(manager).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "is_active"}).AddRow(2, true))
		mock.ExpectRollback()

		u := &User{Email: "new@speccon.co.za", TenantID: &tenant, Role: rbac.RoleSalesperson, ManagerID: &manager}
		err := store.Create(ctx, u, "hash")
		assert.True(t, apperror.IsValidation(err))
		assert.Empty(t, inv.tenants)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(q("INSERT INTO users")).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		u := &User{Email: "tom@speccon.co.za", TenantID: &tenant, Role: rbac.RoleSalesperson}
		err := store.Create(ctx, u, "hash")
		assert.True(t, apperror.IsConflict(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateRejectsManagerCycle(t *testing.T) {
	store, mock, inv := newMockStore(t)
	tenant := int64(1)
	manager := int64(5)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT manager_id FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"manager_id"}).AddRow(2))
	mock.ExpectQuery(q("SELECT tenant_id, is_active FROM users WHERE id = $1")).
		WithArgs(manager).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "is_active"}).AddRow(1, true))
	mock.ExpectQuery(q("WITH RECURSIVE chain AS")).
		WithArgs(manager, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	u := &User{ID: 3, TenantID: &tenant, Role: rbac.RoleManager, ManagerID: &manager, IsActive: true}
	err := store.Update(context.Background(), u)
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, inv.tenants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateKeepsUnchangedManagerWithoutValidation(t *testing.T) {
	store, mock, inv := newMockStore(t)
	tenant := int64(1)
	sarah := int64(4)

	// sarah has since been deactivated; renaming her report must still work
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT manager_id FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"manager_id"}).AddRow(sarah))
	mock.ExpectQuery(q("UPDATE users")).
		WithArgs("Benjamin", "salesperson", &sarah, true, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	u := &User{ID: 7, DisplayName: "Benjamin", TenantID: &tenant, Role: rbac.RoleSalesperson, ManagerID: &sarah, IsActive: true}
	require.NoError(t, store.Update(context.Background(), u))
	assert.Equal(t, []int64{1}, inv.tenants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDeactivationRevokesTokens(t *testing.T) {
	store, mock, inv := newMockStore(t)
	tenant := int64(1)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE users")).
		WithArgs("Tom", "salesperson", nil, false, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	u := &User{ID: 5, DisplayName: "Tom", TenantID: &tenant, Role: rbac.RoleSalesperson, IsActive: false}
	require.NoError(t, store.Update(context.Background(), u))
	assert.Equal(t, []int64{1}, inv.tenants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateManager(t *testing.T) {
	ctx := context.Background()

	t.Run("self", func(t *testing.T) {
		store, _, _ := newMockStore(t)
		err := validateManager(ctx, store.db, 1, 3, 3)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("missing", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(q("SELECT tenant_id, is_active FROM users WHERE id = $1")).
			WithArgs(int64(404)).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "is_active"}))
		err := validateManager(ctx, store.db, 1, 3, 404)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("inactive", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(q("SELECT tenant_id, is_active FROM users WHERE id = $1")).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "is_active"}).AddRow(1, false))
		err := validateManager(ctx, store.db, 1, 7, 4)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("valid", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(q("SELECT tenant_id, is_active FROM users WHERE id = $1")).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "is_active"}).AddRow(1, true))
		mock.ExpectQuery(q("WITH RECURSIVE chain AS")).
			WithArgs(int64(4), int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		assert.NoError(t, validateManager(ctx, store.db, 1, 7, 4))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMembers(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(q("SELECT id, tenant_id, role, manager_id, is_active FROM users WHERE tenant_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "role", "manager_id", "is_active"}).
			AddRow(3, 1, "manager", 2, true).
			AddRow(5, 1, "salesperson", 3, true).
			AddRow(6, 1, "retired-role", 3, false))

	members, err := store.Members(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, rbac.RoleManager, members[0].Role)
	require.NotNil(t, members[1].ManagerID)
	assert.Equal(t, int64(3), *members[1].ManagerID)
	assert.Equal(t, rbac.Role(""), members[2].Role)
	assert.False(t, members[2].IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountByEmail(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectQuery(q("LEFT JOIN tenants t ON t.id = u.tenant_id WHERE LOWER(u.email) = LOWER($1)")).
		WithArgs("Hein@Speccon.co.za").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(1, "hein@speccon.co.za", "hash", 1, true, "admin", nil, true, false))

	acc, err := store.AccountByEmail(context.Background(), "Hein@Speccon.co.za")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ID)
	assert.True(t, acc.TenantActive)
	assert.Equal(t, "admin", acc.Role)
	assert.Nil(t, acc.ManagerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

var accountColumns = []string{
	"id", "email", "password_hash", "tenant_id", "tenant_active", "role", "manager_id", "is_active", "is_system_admin",
}

func TestConsumeRefreshToken(t *testing.T) {
	store, mock, _ := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(q("UPDATE refresh_tokens")).
		WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(5))
	userID, err := store.ConsumeRefreshToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, int64(5), userID)

	mock.ExpectQuery(q("UPDATE refresh_tokens")).
		WithArgs("spent").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	_, err = store.ConsumeRefreshToken(ctx, "spent")
	assert.True(t, apperror.IsAuthentication(err))

	require.NoError(t, mock.ExpectationsWereMet())
}
