// Package api exposes the contract store, the fiscal analysis and the rule
// administration over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/drafts"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/rules"
)

// Dependencies wires the server. Repo, Engine, Contracts and Drafts are required.
type Dependencies struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Contracts *contracts.Service
	Drafts    *drafts.Service
	Metrics   *metrics.Collector

	// PackRules are merged under the stored rules on every reload
	PackRules []*domain.RuleConfig
	Version   string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.CORSOrigins))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	if deps.Metrics != nil {
		router.Use(MetricsMiddleware(deps.Metrics))
	}
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// No tenant required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Share links; the token grants access
	router.Get("/drafts/shared/{token}", handler.GetSharedDraft)
	router.Post("/drafts/shared/{token}/approve", handler.ApproveSharedDraft)
	router.Post("/drafts/shared/{token}/reject", handler.RejectSharedDraft)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/analyze", handler.Analyze)

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", handler.ListContracts)
			r.Post("/", handler.CreateContract)
			r.Get("/export.csv", handler.ExportContracts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.GetContract)
				r.Put("/", handler.UpdateContract)
				r.Delete("/", handler.DeleteContract)
				r.Get("/analysis", handler.ContractAnalysis)
				r.Get("/history", handler.ContractHistory)
			})
		})

		r.Get("/drafts", handler.ListDrafts)
		r.Post("/drafts", handler.CreateDraft)
		r.Get("/drafts/{id}", handler.GetDraft)
		r.Put("/drafts/{id}", handler.UpdateDraft)
		r.Delete("/drafts/{id}", handler.DeleteDraft)
		r.Post("/drafts/{id}/submit", handler.SubmitDraft)
		r.Post("/drafts/{id}/approve", handler.ApproveDraft)
		r.Post("/drafts/{id}/reject", handler.RejectDraft)

		r.Get("/dashboard", handler.Dashboard)

		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
		r.Delete("/rules/{id}", handler.DeleteRule)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
