package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/reports"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/users"
)

// Login opens a session with an email and password
func (c *Client) Login(ctx context.Context, email, password string) (*identity.Session, error) {
	var session identity.Session
	err := c.Do(ctx, http.MethodPost, "/api/User/Login", nil, users.LoginRequest{Email: email, Password: password}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Refresh rotates a refresh token into a new session
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	var session identity.Session
	err := c.Do(ctx, http.MethodPost, "/api/User/Refresh", nil, users.RefreshRequest{RefreshToken: refreshToken}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CurrentUser returns the caller
func (c *Client) CurrentUser(ctx context.Context) (*users.User, error) {
	var user users.User
	if err := c.Do(ctx, http.MethodGet, "/api/User/GetCurrentUser", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns the users visible to the caller
func (c *Client) ListUsers(ctx context.Context, search string, p paging.Params) (paging.Page[*users.User], error) {
	q := pageQuery(p)
	if search != "" {
		q.Set("search", search)
	}
	return GetPage[*users.User](ctx, c, "/api/User/GetAll", q)
}

// ListTenants returns the tenants visible to the caller
func (c *Client) ListTenants(ctx context.Context, p paging.Params) (paging.Page[*tenants.Tenant], error) {
	return GetPage[*tenants.Tenant](ctx, c, "/api/Tenant/GetAll", pageQuery(p))
}

// ClientQuery narrows ListClients
type ClientQuery struct {
	Search          string
	Status          string
	IncludeInactive bool
	paging.Params
}

// ListClients returns the clients inside the caller's scope
func (c *Client) ListClients(ctx context.Context, query ClientQuery) (paging.Page[*crm.Client], error) {
	q := pageQuery(query.Params)
	if query.Search != "" {
		q.Set("search", query.Search)
	}
	if query.Status != "" {
		q.Set("status", query.Status)
	}
	if query.IncludeInactive {
		q.Set("includeInactive", "true")
	}
	return GetPage[*crm.Client](ctx, c, "/api/Client/GetAll", q)
}

// GetClient returns one client
func (c *Client) GetClient(ctx context.Context, id int64) (*crm.Client, error) {
	var client crm.Client
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/Client/GetById/%d", id), nil, nil, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

// ReassignClient moves a client to another salesperson
func (c *Client) ReassignClient(ctx context.Context, id, newOwnerID int64) (*crm.Client, error) {
	var client crm.Client
	req := crm.ReassignRequest{AssignedSalesPersonID: newOwnerID}
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/api/Client/Reassign/%d", id), nil, req, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

// ListDeals returns the deals inside the caller's scope
func (c *Client) ListDeals(ctx context.Context, stage string, p paging.Params) (paging.Page[*crm.Deal], error) {
	q := pageQuery(p)
	if stage != "" {
		q.Set("stage", stage)
	}
	return GetPage[*crm.Deal](ctx, c, "/api/Deal/GetAll", q)
}

// Financials returns one tenant's financial summary. A zero tenantID asks
// for the caller's own tenant and a zero year for the current one.
func (c *Client) Financials(ctx context.Context, tenantID int64, year int) (*reports.Summary, error) {
	q := url.Values{}
	if tenantID != 0 {
		q.Set("tenantId", fmt.Sprint(tenantID))
	}
	if year != 0 {
		q.Set("year", fmt.Sprint(year))
	}
	var summary reports.Summary
	if err := c.Do(ctx, http.MethodGet, "/api/Report/Financials", q, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// AllFinancials returns every tenant's summary. Only system admins may ask.
func (c *Client) AllFinancials(ctx context.Context, year int) ([]*reports.Summary, error) {
	q := url.Values{}
	if year != 0 {
		q.Set("year", fmt.Sprint(year))
	}
	page, err := GetPage[*reports.Summary](ctx, c, "/api/Report/Financials", q)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}
