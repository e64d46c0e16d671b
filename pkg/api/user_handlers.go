package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/users"
)

func (s *Server) registerUserRoutes(r *mux.Router) {
	r.HandleFunc("/User/GetCurrentUser", s.authed(s.getCurrentUser)).Methods(http.MethodGet)
	r.HandleFunc("/User/ChangePassword", s.authed(s.changePassword)).Methods(http.MethodPost)
	r.HandleFunc("/User/GetAll", s.authed(s.listUsers)).Methods(http.MethodGet)
	r.HandleFunc("/User/GetById/{id}", s.authed(s.getUser)).Methods(http.MethodGet)
	r.HandleFunc("/User/Create", s.authed(s.createUser)).Methods(http.MethodPost)
	r.HandleFunc("/User/Update/{id}", s.authed(s.updateUser)).Methods(http.MethodPut)
	r.HandleFunc("/User/Delete/{id}", s.authed(s.deleteUser)).Methods(http.MethodDelete)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req users.LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	session, err := s.services.Auth.Login(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req users.RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	session, err := s.services.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	user, err := s.services.Users.Current(r.Context(), id)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, user)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req users.ChangePasswordRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if err := s.services.Auth.ChangePassword(r.Context(), id, req); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "password changed", nil)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	activeOnly, err := httputil.ParseQueryBool(r, "activeOnly", false)
	if err != nil {
		return err
	}
	filter := users.ListFilter{
		Search:     httputil.ParseQueryString(r, "search", ""),
		ActiveOnly: activeOnly,
	}
	page, err := s.services.Users.List(r.Context(), id, filter, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	userID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	user, err := s.services.Users.Get(r.Context(), id, userID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, user)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req users.CreateUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	user, err := s.services.Users.Create(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	userID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req users.UpdateUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	user, err := s.services.Users.Update(r.Context(), id, userID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	userID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	if err := s.services.Users.Delete(r.Context(), id, userID); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "user deleted", nil)
}
