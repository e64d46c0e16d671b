package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
)

func (s *Server) registerInteractionRoutes(r *mux.Router) {
	r.HandleFunc("/Interaction/GetByClient/{clientId}", s.authed(s.listInteractions)).Methods(http.MethodGet)
	r.HandleFunc("/Interaction/Create", s.authed(s.createInteraction)).Methods(http.MethodPost)
}

func (s *Server) registerMessageRoutes(r *mux.Router) {
	r.HandleFunc("/Message/GetAll", s.authed(s.listMessages)).Methods(http.MethodGet)
	r.HandleFunc("/Message/GetById/{id}", s.authed(s.getMessage)).Methods(http.MethodGet)
	r.HandleFunc("/Message/Create", s.authed(s.createMessage)).Methods(http.MethodPost)
}

func (s *Server) registerProductRoutes(r *mux.Router) {
	r.HandleFunc("/Product/GetAll", s.authed(s.listProducts)).Methods(http.MethodGet)
	r.HandleFunc("/Product/GetById/{id}", s.authed(s.getProduct)).Methods(http.MethodGet)
	r.HandleFunc("/Product/Create", s.authed(s.createProduct)).Methods(http.MethodPost)
	r.HandleFunc("/Product/Update/{id}", s.authed(s.updateProduct)).Methods(http.MethodPut)
	r.HandleFunc("/Product/Delete/{id}", s.authed(s.deleteProduct)).Methods(http.MethodDelete)
}

func (s *Server) listInteractions(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	clientID, err := httputil.ParsePathInt64(r, "clientId")
	if err != nil {
		return err
	}
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	page, err := s.services.CRM.ListInteractionsByClient(r.Context(), id, clientID, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) createInteraction(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req crm.CreateInteractionRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	interaction, err := s.services.CRM.CreateInteraction(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, interaction)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	var filter crm.MessageFilter
	if filter.ClientID, err = httputil.ParseQueryInt64(r, "clientId"); err != nil {
		return err
	}
	page, err := s.services.CRM.ListMessages(r.Context(), id, filter, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	messageID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	message, err := s.services.CRM.GetMessage(r.Context(), id, messageID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, message)
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req crm.CreateMessageRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	message, err := s.services.CRM.CreateMessage(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, message)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	p, err := paging.FromRequest(r)
	if err != nil {
		return err
	}
	page, err := s.services.CRM.ListProducts(r.Context(), id, p)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, page.ToResult())
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	productID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	product, err := s.services.CRM.GetProduct(r.Context(), id, productID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, product)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	var req crm.CreateProductRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	product, err := s.services.CRM.CreateProduct(r.Context(), id, req)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, product)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	productID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	var req crm.UpdateProductRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	product, err := s.services.CRM.UpdateProduct(r.Context(), id, productID, req)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	productID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return err
	}
	if err := s.services.CRM.DeleteProduct(r.Context(), id, productID); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "product deleted", nil)
}
