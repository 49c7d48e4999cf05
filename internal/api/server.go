// Package api implements the HTTP surface of the InfluenceGen gateway.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"influencegen/internal/auth"
	"influencegen/internal/callbackauth"
	"influencegen/internal/callbacks"
	"influencegen/internal/config"
	"influencegen/internal/events"
	"influencegen/internal/log"
	"influencegen/internal/metrics"
	"influencegen/internal/params"
	"influencegen/internal/store"
	"influencegen/internal/webhooks"
)

type Server struct {
	Config     config.Config
	Store      store.Store
	Params     params.Store
	Broker     events.Broker
	Callbacks  *callbackauth.Authenticator
	Processor  *callbacks.Processor
	Dispatcher *webhooks.Dispatcher
	Auth       *auth.Verifier

	limiter *clientLimiter
	checks  map[string]func(context.Context) error
	logger  zerolog.Logger
}

// NewServer wires the request handlers around the given backends. ps should
// already be cached if reads are expensive.
func NewServer(cfg config.Config, st store.Store, ps params.Store, broker events.Broker) *Server {
	metrics.RegisterDefault()
	if broker == nil {
		broker = events.NewMemory()
	}
	s := &Server{
		Config: cfg,
		Store:  st,
		Params: ps,
		Broker: broker,
		Callbacks: callbackauth.New(ps,
			callbackauth.WithNamespace(cfg.Namespace),
			callbackauth.WithSystem(cfg.System),
			callbackauth.WithDiagnosticPrefix(cfg.Callback.DiagnosticPrefix),
			callbackauth.WithObserver(func(o callbackauth.Outcome) {
				metrics.CallbackAuth.WithLabelValues(string(o)).Inc()
			}),
		),
		Processor:  callbacks.NewProcessor(st, broker),
		Dispatcher: webhooks.NewDispatcher(st, ps, cfg.Namespace),
		Auth:       auth.NewVerifier(cfg.Auth),
		limiter:    newClientLimiter(cfg.Callback.RateRPS, cfg.Callback.RateBurst),
		checks:     map[string]func(context.Context) error{},
		logger:     log.WithComponent("api"),
	}
	if p, ok := st.(interface{ Ping(context.Context) error }); ok {
		s.checks["store"] = p.Ping
	}
	return s
}

// AddReadinessCheck registers fn to be consulted by /readyz.
func (s *Server) AddReadinessCheck(name string, fn func(context.Context) error) {
	s.checks[name] = fn
}

// CallbackPath is where the orchestration service posts results,
// "/influence_gen/n8n/ai_callback" by default.
func (s *Server) CallbackPath() string {
	return "/" + s.Config.Namespace + "/" + strings.ToLower(s.Config.System) + "/ai_callback"
}

// Routes returns the root handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.recoverer, s.accessLog)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/debug/info", s.DebugHandler)
	r.Get("/openapi.yaml", s.OpenAPIHandler)
	r.Get("/docs", s.DocsHandler)

	r.With(s.rateLimit, s.requireCallbackAuth).Post(s.CallbackPath(), s.CallbackHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Route("/ai/generation-requests", func(r chi.Router) {
			r.Post("/", s.CreateGenerationHandler)
			r.Get("/", s.ListGenerationsHandler)
			r.Get("/{id}", s.GetGenerationHandler)
			r.Get("/{id}/ws", s.GenerationStreamHandler)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/params", s.ListParamsHandler)
			r.Get("/params/{key}", s.GetParamHandler)
			r.Put("/params/{key}", s.PutParamHandler)
			r.Delete("/params/{key}", s.DeleteParamHandler)
			r.Get("/audit", s.AuditHandler)
			r.Get("/deliveries", s.DeliveriesHandler)
		})
	})
	return r
}
