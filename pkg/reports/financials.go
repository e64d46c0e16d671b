package reports

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/rbac"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

var tracer = otel.Tracer("github.com/platinummonkey/crmgate/pkg/reports")

// Totals are the financial figures of one salesperson or one tenant.
// Money is in minor units.
type Totals struct {
	Clients        int   `json:"clients"`
	AnnualValue    int64 `json:"annualValue"`
	ForecastValue  int64 `json:"forecastValue"`
	CollectedValue int64 `json:"collectedValue"`
	WonDeals       int   `json:"wonDeals"`
	WonValue       int64 `json:"wonValue"`
	PipelineValue  int64 `json:"pipelineValue"`
}

func (t *Totals) add(o Totals) {
	t.Clients += o.Clients
	t.AnnualValue += o.AnnualValue
	t.ForecastValue += o.ForecastValue
	t.CollectedValue += o.CollectedValue
	t.WonDeals += o.WonDeals
	t.WonValue += o.WonValue
	t.PipelineValue += o.PipelineValue
}

// SalespersonTotals is one row of the per-salesperson breakdown
type SalespersonTotals struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Totals
}

// Summary is the financial report of one tenant for one financial year.
// Client figures are current values; deal figures count deals opened
// during the year.
type Summary struct {
	TenantID       int64                `json:"tenantId"`
	TenantName     string               `json:"tenantName"`
	CurrencySymbol string               `json:"currencySymbol"`
	FinancialYear  tenants.FinancialYear `json:"financialYear"`
	Totals         Totals               `json:"totals"`
	Salespeople    []SalespersonTotals  `json:"salespeople"`
	GeneratedAt    time.Time            `json:"generatedAt"`
}

// TenantSource looks up tenants
type TenantSource interface {
	GetByID(ctx context.Context, id int64) (*tenants.Tenant, error)
	All(ctx context.Context) ([]*tenants.Tenant, error)
}

// Service builds financial reports. Aggregates run on the read pool.
type Service struct {
	db      *sql.DB
	tenants TenantSource
	gate    *authz.Gate
	fanOut  int
	now     func() time.Time
}

// NewService creates a report service. fanOut bounds the number of tenants
// summarized at once for cross-tenant reports.
func NewService(db *sql.DB, tenants TenantSource, gate *authz.Gate, fanOut int) *Service {
	if fanOut < 1 {
		fanOut = 1
	}
	return &Service{db: db, tenants: tenants, gate: gate, fanOut: fanOut, now: time.Now}
}

// Financials returns the caller's view of a tenant's financial year. A
// zero year means the year containing today. Everyone but a system admin
// reports on their own tenant.
func (s *Service) Financials(ctx context.Context, id identity.Identity, tenantID int64, year int) (*Summary, error) {
	if tenantID == 0 {
		tenantID = id.Tenant()
	}
	if tenantID == 0 {
		return nil, apperror.Validation("tenantId is required")
	}

	sc, err := s.gate.Require(ctx, id, rbac.NewPermission(rbac.ResourceFinancialReport, rbac.ActionRead),
		&authz.Target{ID: tenantID, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, t, s.yearOf(t, year), sc)
}

// AllTenants returns one summary per tenant, ordered by tenant id. Only
// system admins hold a scope wide enough to ask.
func (s *Service) AllTenants(ctx context.Context, id identity.Identity, year int) ([]*Summary, error) {
	sc, err := s.gate.ListScope(ctx, id, rbac.ResourceFinancialReport)
	if err != nil {
		return nil, err
	}
	if !sc.AllTenants {
		return nil, apperror.PermissionDenied("cross-tenant reports require a system admin")
	}
	return s.fanOutTenants(ctx, year)
}

// Snapshot summarizes every tenant without a caller. It is meant for
// background jobs such as archiving.
func (s *Service) Snapshot(ctx context.Context, year int) ([]*Summary, error) {
	return s.fanOutTenants(ctx, year)
}

func (s *Service) fanOutTenants(ctx context.Context, year int) ([]*Summary, error) {
	all, err := s.tenants.All(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]*Summary, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for i, t := range all {
		g.Go(func() error {
			summary, err := s.summarize(gctx, t, s.yearOf(t, year), scope.Tenant(t.ID))
			if err != nil {
				return fmt.Errorf("tenant %d: %w", t.ID, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Service) yearOf(t *tenants.Tenant, year int) tenants.FinancialYear {
	if year == 0 {
		return t.FinancialYearOf(s.now())
	}
	return t.FinancialYearEnding(year)
}

func (s *Service) summarize(ctx context.Context, t *tenants.Tenant, fy tenants.FinancialYear, sc *scope.Scope) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "reports.summarize",
		trace.WithAttributes(
			attribute.Int64("tenant.id", t.ID),
			attribute.Int("financial_year", fy.Label),
		),
	)
	defer span.End()

	people := map[int64]*SalespersonTotals{}
	person := func(id int64, name string) *SalespersonTotals {
		p, ok := people[id]
		if !ok {
			p = &SalespersonTotals{UserID: id, DisplayName: name}
			people[id] = p
		}
		return p
	}

	if err := s.clientTotals(ctx, t.ID, sc, person); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client totals failed")
		return nil, err
	}
	if err := s.dealTotals(ctx, t.ID, fy, sc, person); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deal totals failed")
		return nil, err
	}

	summary := &Summary{
		TenantID:       t.ID,
		TenantName:     t.Name,
		CurrencySymbol: t.CurrencySymbol,
		FinancialYear:  fy,
		Salespeople:    make([]SalespersonTotals, 0, len(people)),
		GeneratedAt:    s.now().UTC(),
	}
	for _, p := range people {
		summary.Totals.add(p.Totals)
		summary.Salespeople = append(summary.Salespeople, *p)
	}
	sort.Slice(summary.Salespeople, func(i, j int) bool {
		return summary.Salespeople[i].UserID < summary.Salespeople[j].UserID
	})
	return summary, nil
}

func (s *Service) clientTotals(ctx context.Context, tenantID int64, sc *scope.Scope, person func(int64, string) *SalespersonTotals) error {
	var w postgres.Where
	w.And("c.tenant_id = " + w.Arg(tenantID))
	w.Scope(sc, "c.tenant_id", "c.assigned_sales_person_id")
	w.And("c.is_active")

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.assigned_sales_person_id, COALESCE(u.display_name, ''), COUNT(*),
		       COALESCE(SUM(c.annual_value), 0), COALESCE(SUM(c.forecast_value), 0), COALESCE(SUM(c.collected_value), 0)
		FROM clients c LEFT JOIN users u ON u.id = c.assigned_sales_person_id`+w.SQL()+`
		GROUP BY c.assigned_sales_person_id, u.display_name`, w.Args()...)
	if err != nil {
		return fmt.Errorf("failed to total clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		var t Totals
		if err := rows.Scan(&id, &name, &t.Clients, &t.AnnualValue, &t.ForecastValue, &t.CollectedValue); err != nil {
			return fmt.Errorf("failed to scan client totals: %w", err)
		}
		person(id, name).add(t)
	}
	return rows.Err()
}

func (s *Service) dealTotals(ctx context.Context, tenantID int64, fy tenants.FinancialYear, sc *scope.Scope, person func(int64, string) *SalespersonTotals) error {
	var w postgres.Where
	w.And("d.tenant_id = " + w.Arg(tenantID))
	w.Scope(sc, "d.tenant_id", "d.owner_id", "c.assigned_sales_person_id")
	w.And("d.created_at >= " + w.Arg(fy.Start))
	w.And("d.created_at < " + w.Arg(fy.End))

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.owner_id, COALESCE(u.display_name, ''),
		       COUNT(*) FILTER (WHERE d.stage = 'Won'),
		       COALESCE(SUM(d.value) FILTER (WHERE d.stage = 'Won'), 0),
		       COALESCE(SUM(d.value) FILTER (WHERE d.stage NOT IN ('Won', 'Lost')), 0)
		FROM deals d JOIN clients c ON c.id = d.client_id LEFT JOIN users u ON u.id = d.owner_id`+w.SQL()+`
		GROUP BY d.owner_id, u.display_name`, w.Args()...)
	if err != nil {
		return fmt.Errorf("failed to total deals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		var t Totals
		if err := rows.Scan(&id, &name, &t.WonDeals, &t.WonValue, &t.PipelineValue); err != nil {
			return fmt.Errorf("failed to scan deal totals: %w", err)
		}
		person(id, name).add(t)
	}
	return rows.Err()
}
