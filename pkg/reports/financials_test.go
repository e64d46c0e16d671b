package reports

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/fixtures"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureTenants struct {
	ds *fixtures.Dataset
}

func (f fixtureTenants) GetByID(ctx context.Context, id int64) (*tenants.Tenant, error) {
	for _, t := range f.ds.Tenants {
		if t.ID == id {
			return f.tenant(t), nil
		}
	}
	return nil, apperror.NotFound("tenant %d not found", id)
}

func (f fixtureTenants) All(ctx context.Context) ([]*tenants.Tenant, error) {
	var all []*tenants.Tenant
	for _, t := range f.ds.Tenants {
		all = append(all, f.tenant(t))
	}
	return all, nil
}

func (f fixtureTenants) tenant(t fixtures.Tenant) *tenants.Tenant {
	return &tenants.Tenant{
		ID:                      t.ID,
		Name:                    t.Name,
		Status:                  tenants.StatusActive,
		CurrencySymbol:          t.CurrencySymbol,
		FinancialYearStartMonth: t.FinancialYearStartMonth,
		FinancialYearEndMonth:   t.FinancialYearEndMonth,
	}
}

var (
	clientTotalColumns = []string{"owner", "name", "count", "annual", "forecast", "collected"}
	dealTotalColumns   = []string{"owner", "name", "won_deals", "won_value", "pipeline"}
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *fixtures.Dataset) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ds := fixtures.Speccon()
	gate := authz.NewGate(scope.NewCalculator(ds), nil)
	svc := NewService(db, fixtureTenants{ds: ds}, gate, 1)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }
	return svc, mock, ds
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestFinancialYearSelection(t *testing.T) {
	svc, _, ds := newTestService(t)
	speccon, err := fixtureTenants{ds: ds}.GetByID(context.Background(), 1)
	require.NoError(t, err)

	current := svc.yearOf(speccon, 0)
	assert.Equal(t, 2027, current.Label)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), current.Start)
	assert.Equal(t, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC), current.End)

	past := svc.yearOf(speccon, 2025)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), past.Start)
}

func TestFinancialsForManager(t *testing.T) {
	svc, mock, ds := newTestService(t)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	team := pq.Array([]int64{3, 5, 6})

	mock.ExpectQuery(q("WHERE c.tenant_id = $1 AND c.tenant_id = $2 AND c.assigned_sales_person_id = ANY($3) AND c.is_active")).
		WithArgs(int64(1), int64(1), team).
		WillReturnRows(sqlmock.NewRows(clientTotalColumns).
			AddRow(5, "Tom", 2, 2000000, 2300000, 1300000).
			AddRow(6, "Lisa", 2, 500000, 950000, 500000))
	mock.ExpectQuery(q("FROM deals d JOIN clients c ON c.id = d.client_id")).
		WithArgs(int64(1), int64(1), team, start, end).
		WillReturnRows(sqlmock.NewRows(dealTotalColumns).
			AddRow(5, "Tom", 1, 40000, 10000))

	summary, err := svc.Financials(context.Background(), ds.Identity("mike@speccon.co.za"), 0, 2026)
	require.NoError(t, err)
	assert.Equal(t, "Speccon", summary.TenantName)
	assert.Equal(t, "R", summary.CurrencySymbol)
	assert.Equal(t, Totals{
		Clients:        4,
		AnnualValue:    2500000,
		ForecastValue:  3250000,
		CollectedValue: 1800000,
		WonDeals:       1,
		WonValue:       40000,
		PipelineValue:  10000,
	}, summary.Totals)
	require.Len(t, summary.Salespeople, 2)
	assert.Equal(t, int64(5), summary.Salespeople[0].UserID)
	assert.Equal(t, int64(40000), summary.Salespeople[0].WonValue)
	assert.Equal(t, "Lisa", summary.Salespeople[1].DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinancialsAccountantSeesWholeTenant(t *testing.T) {
	svc, mock, ds := newTestService(t)

	mock.ExpectQuery(q("WHERE c.tenant_id = $1 AND c.tenant_id = $2 AND c.is_active")).
		WithArgs(int64(1), int64(1)).
		WillReturnRows(sqlmock.NewRows(clientTotalColumns))
	mock.ExpectQuery(q("WHERE d.tenant_id = $1 AND d.tenant_id = $2 AND d.created_at >= $3 AND d.created_at < $4")).
		WithArgs(int64(1), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(dealTotalColumns))

	summary, err := svc.Financials(context.Background(), ds.Identity("anna@speccon.co.za"), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, summary.Salespeople)
	assert.Equal(t, 2027, summary.FinancialYear.Label)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinancialsDenials(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		tenant int64
	}{
		{"other tenant", "hein@speccon.co.za", 2},
		{"sales admin has no financial access", "sam@speccon.co.za", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, ds := newTestService(t)
			_, err := svc.Financials(context.Background(), ds.Identity(tt.caller), tt.tenant, 0)
			assert.True(t, apperror.IsPermissionDenied(err), "got %v", err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("system admin must name a tenant", func(t *testing.T) {
		svc, _, ds := newTestService(t)
		_, err := svc.Financials(context.Background(), ds.Identity("root@crmgate.local"), 0, 0)
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestAllTenants(t *testing.T) {
	t.Run("system admin fans out", func(t *testing.T) {
		svc, mock, ds := newTestService(t)
		for _, tenant := range ds.Tenants {
			mock.ExpectQuery(q("FROM clients c LEFT JOIN users u")).
				WithArgs(tenant.ID, tenant.ID).
				WillReturnRows(sqlmock.NewRows(clientTotalColumns).AddRow(100+tenant.ID, "Rep", 1, 1000, 1000, 0))
			mock.ExpectQuery(q("FROM deals d JOIN clients c")).
				WithArgs(tenant.ID, tenant.ID, sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows(dealTotalColumns))
		}

		summaries, err := svc.AllTenants(context.Background(), ds.Identity("root@crmgate.local"), 0)
		require.NoError(t, err)
		require.Len(t, summaries, len(ds.Tenants))
		for i, s := range summaries {
			assert.Equal(t, ds.Tenants[i].ID, s.TenantID)
			assert.Equal(t, 1, s.Totals.Clients)
		}
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tenant admin is refused", func(t *testing.T) {
		svc, _, ds := newTestService(t)
		_, err := svc.AllTenants(context.Background(), ds.Identity("hein@speccon.co.za"), 0)
		assert.True(t, apperror.IsPermissionDenied(err))
	})

	t.Run("one failing tenant fails the report", func(t *testing.T) {
		svc, mock, _ := newTestService(t)
		mock.ExpectQuery(q("FROM clients c LEFT JOIN users u")).WillReturnError(errors.New("replica gone"))

		_, err := svc.Snapshot(context.Background(), 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenant 1")
	})
}
