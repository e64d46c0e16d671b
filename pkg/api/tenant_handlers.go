package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

func (s *Server) registerTenantRoutes(r *mux.Router) {
	r.HandleFunc("/Tenant/GetAll", s.authed(s.listTenants)).Methods(http.MethodGet)
	r.HandleFunc("/Tenant/GetById/{id}", s.authed(s.getTenant)).Methods(http.MethodGet)
	r.HandleFunc("/Tenant/Create", s.authed(s.createTenant)).Methods(http.MethodPost)
	r.HandleFunc("/Tenant/Update/{id}", s.authed(s.updateTenant)).Methods(http.MethodPut)
}

func (s *Server) listTenants(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	page, err := s.services.Tenants.List(r.Context(), id, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	tenantID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	tenant, err := s.services.Tenants.Get(r.Context(), id, tenantID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, tenant)
}

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req tenants.CreateTenantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	tenant, err := s.services.Tenants.Create(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, tenant)
}

func (s *Server) updateTenant(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	tenantID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req tenants.UpdateTenantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	tenant, err := s.services.Tenants.Update(r.Context(), id, tenantID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, tenant)
}
