package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
)

func (s *Server) registerReportRoutes(r *mux.Router) {
	r.HandleFunc("/Report/Financials", s.authed(s.financials)).Methods(http.MethodGet)
}

// financials serves one tenant's summary. A system admin who names no
// tenant gets a paged list with every tenant instead.
func (s *Server) financials(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	tenantID, err := httputil.ParseQueryInt64(r, "tenantId")
	if err != nil {
		return err
	}
	year, err := httputil.ParseQueryInt(r, "year", 0)
	if err != nil {
		return err
	}

	if tenantID == nil && id.IsSystemAdmin {
		summaries, err := s.services.Reports.AllTenants(r.Context(), id, year)
		if err != nil {
			return err
		}
		return httputil.WriteSuccess(w, paging.FromSlice(summaries).ToResult())
	}

	var tid int64
	if tenantID != nil {
		tid = *tenantID
	}
	summary, err := s.services.Reports.Financials(r.Context(), id, tid, year)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, summary)
}
