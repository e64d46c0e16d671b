package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
)

// Deals and tasks share the client routes' shape, including reassignment.

func (s *Server) registerDealRoutes(r *mux.Router) {
	r.HandleFunc("/Deal/GetAll", s.authed(s.listDeals)).Methods(http.MethodGet)
	r.HandleFunc("/Deal/GetById/{id}", s.authed(s.getDeal)).Methods(http.MethodGet)
	r.HandleFunc("/Deal/Create", s.authed(s.createDeal)).Methods(http.MethodPost)
	r.HandleFunc("/Deal/Update/{id}", s.authed(s.updateDeal)).Methods(http.MethodPut)
	r.HandleFunc("/Deal/Reassign/{id}", s.authed(s.reassignDeal)).Methods(http.MethodPost)
	r.HandleFunc("/Deal/Delete/{id}", s.authed(s.deleteDeal)).Methods(http.MethodDelete)
}

func (s *Server) registerTaskRoutes(r *mux.Router) {
	r.HandleFunc("/Task/GetAll", s.authed(s.listTasks)).Methods(http.MethodGet)
	r.HandleFunc("/Task/GetById/{id}", s.authed(s.getTask)).Methods(http.MethodGet)
	r.HandleFunc("/Task/Create", s.authed(s.createTask)).Methods(http.MethodPost)
	r.HandleFunc("/Task/Update/{id}", s.authed(s.updateTask)).Methods(http.MethodPut)
	r.HandleFunc("/Task/Reassign/{id}", s.authed(s.reassignTask)).Methods(http.MethodPost)
	r.HandleFunc("/Task/Delete/{id}", s.authed(s.deleteTask)).Methods(http.MethodDelete)
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	var filter crm.DealFilter
	if filter.ClientID, err = httputil.ParseQueryInt64(r, "clientId"); err != nil {
		return err
	}
	if raw := httputil.ParseQueryString(r, "stage", ""); raw != "" {
		if filter.Stage, err = crm.ParseDealStage(raw); err != nil {
			return err
		}
	}

	page, err := s.services.CRM.ListDeals(r.Context(), id, filter, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	dealID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	deal, err := s.services.CRM.GetDeal(r.Context(), id, dealID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, deal)
}

func (s *Server) createDeal(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req crm.CreateDealRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	deal, err := s.services.CRM.CreateDeal(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, deal)
}

func (s *Server) updateDeal(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	dealID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.UpdateDealRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	deal, err := s.services.CRM.UpdateDeal(r.Context(), id, dealID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, deal)
}

func (s *Server) reassignDeal(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	dealID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.ReassignRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	deal, err := s.services.CRM.ReassignDeal(r.Context(), id, dealID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, deal)
}

func (s *Server) deleteDeal(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	dealID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	if err := s.services.CRM.DeleteDeal(r.Context(), id, dealID); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "deal deleted", nil)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	var filter crm.TaskFilter
	if filter.ClientID, err = httputil.ParseQueryInt64(r, "clientId"); err != nil {
		return err
	}
	if filter.OpenOnly, err = httputil.ParseQueryBool(r, "openOnly", false); err != nil {
		return err
	}

	page, err := s.services.CRM.ListTasks(r.Context(), id, filter, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	taskID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	task, err := s.services.CRM.GetTask(r.Context(), id, taskID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, task)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req crm.CreateTaskRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	task, err := s.services.CRM.CreateTask(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	taskID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.UpdateTaskRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	task, err := s.services.CRM.UpdateTask(r.Context(), id, taskID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, task)
}

func (s *Server) reassignTask(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	taskID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.ReassignRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	task, err := s.services.CRM.ReassignTask(r.Context(), id, taskID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	taskID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	if err := s.services.CRM.DeleteTask(r.Context(), id, taskID); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "task deleted", nil)
}
