package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/middleware"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/reports"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/users"
)

// Services are the domain services the API exposes
type Services struct {
	Auth    *users.AuthService
	Users   *users.Service
	Tenants *tenants.Service
	CRM     *crm.Service
	Reports *reports.Service
}

// Options configure the middleware stack. Zero values disable the
// corresponding layer.
type Options struct {
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	Audit          audit.Logger
	APILimiter     middleware.Limiter
	LoginLimiter   middleware.Limiter
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Server represents our API server
type Server struct {
	services Services
	router   *mux.Router
	auth     *middleware.AuthMiddleware
	opts     Options
}

// NewServer creates a new API server
func NewServer(services Services, resolver middleware.IdentityResolver, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		services: services,
		router:   mux.NewRouter(),
		auth:     middleware.NewAuthMiddleware(resolver, false),
		opts:     opts,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, r, apperror.NotFound("no route for %s %s", r.Method, r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Credential endpoints are public and carry their own stricter limit
	login := s.limited(s.opts.LoginLimiter, "login")
	s.router.Handle("/api/User/Login", login(http.HandlerFunc(s.login))).Methods(http.MethodPost)
	s.router.Handle("/api/User/Refresh", login(http.HandlerFunc(s.refresh))).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Handler)
	api.Use(s.limited(s.opts.APILimiter, "api"))

	s.registerUserRoutes(api)
	s.registerTenantRoutes(api)
	s.registerClientRoutes(api)
	s.registerDealRoutes(api)
	s.registerTaskRoutes(api)
	s.registerInteractionRoutes(api)
	s.registerMessageRoutes(api)
	s.registerProductRoutes(api)
	s.registerReportRoutes(api)
}

func (s *Server) limited(limiter middleware.Limiter, name string) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.NewRateLimitMiddleware(limiter, name, s.opts.Metrics).Handler
}

// ServeHTTP implements http.Handler without the middleware stack
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped in the full middleware stack and
// OpenTelemetry server instrumentation
func (s *Server) Handler() http.Handler {
	stack := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.opts.Logger),
	}
	if s.opts.Metrics != nil {
		stack = append(stack, observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}
	if len(s.opts.AllowedOrigins) > 0 {
		stack = append(stack, httputil.CORSMiddleware(s.opts.AllowedOrigins))
	}
	if s.opts.Audit != nil {
		stack = append(stack, httputil.AuditMiddleware(s.opts.Audit))
	}
	stack = append(stack, httputil.TimeoutMiddleware(s.opts.RequestTimeout))
	if s.opts.MaxBodyBytes > 0 {
		stack = append(stack, httputil.MaxBytesMiddleware(s.opts.MaxBodyBytes))
	}
	stack = append(stack, httputil.ContentTypeMiddleware)

	return otelhttp.NewHandler(httputil.Chain(stack...)(s.router), "crmgate.api")
}

// identityHandler is a handler for an authenticated caller. A returned
// error is written as the error envelope.
type identityHandler func(w http.ResponseWriter, r *http.Request, id identity.Identity) error

func (s *Server) authed(h identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := middleware.RequireIdentity(r)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		if err := h(w, r, id); err != nil {
			httputil.WriteAppError(w, r, err)
		}
	}
}
