package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
)

func (s *Server) registerClientRoutes(r *mux.Router) {
	r.HandleFunc("/Client/GetAll", s.authed(s.listClients)).Methods(http.MethodGet)
	r.HandleFunc("/Client/GetById/{id}", s.authed(s.getClient)).Methods(http.MethodGet)
	r.HandleFunc("/Client/Create", s.authed(s.createClient)).Methods(http.MethodPost)
	r.HandleFunc("/Client/Update/{id}", s.authed(s.updateClient)).Methods(http.MethodPut)
	r.HandleFunc("/Client/Reassign/{id}", s.authed(s.reassignClient)).Methods(http.MethodPost)
	r.HandleFunc("/Client/Delete/{id}", s.authed(s.deleteClient)).Methods(http.MethodDelete)
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	includeInactive, err := httputil.ParseQueryBool(r, "includeInactive", false)
	if err != nil {
		return err
	}
	filter := crm.ClientFilter{
		Search:          httputil.ParseQueryString(r, "search", ""),
		IncludeInactive: includeInactive,
	}
	if raw := httputil.ParseQueryString(r, "status", ""); raw != "" {
		if filter.Status, err = crm.ParseClientStatus(raw); err != nil {
			return err
		}
	}

	page, err := s.services.CRM.ListClients(r.Context(), id, filter, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	clientID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	client, err := s.services.CRM.GetClient(r.Context(), id, clientID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, client)
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req crm.CreateClientRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	client, err := s.services.CRM.CreateClient(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, client)
}

func (s *Server) updateClient(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	clientID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.UpdateClientRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	client, err := s.services.CRM.UpdateClient(r.Context(), id, clientID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, client)
}

func (s *Server) reassignClient(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	clientID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.ReassignRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	client, err := s.services.CRM.ReassignClient(r.Context(), id, clientID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, client)
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	clientID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	if err := s.services.CRM.DeleteClient(r.Context(), id, clientID); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "client deleted", nil)
}
