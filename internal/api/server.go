package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/api/handler"
	mw "github.com/edvin/dealersites/internal/api/middleware"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Deps are the services behind the API. Search is nil when no registrar
// is configured.
type Deps struct {
	Onboarding     handler.OnboardingService
	Dealers        handler.DealerCreator
	Domains        handler.DomainService
	Search         handler.DomainSearcher
	Registration   handler.DomainRegistrar
	Routes         handler.RouteLookup
	StreamInterval time.Duration
	APIKeyHashes   []string
	ReadyChecks    map[string]Check
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.deps.APIKeyHashes))

		dealer := handler.NewDealer(s.deps.Dealers, s.deps.Domains)
		r.Post("/dealers", dealer.Create)
		r.Post("/dealers/{dealerID}/subdomain", dealer.EnsureSubdomain)
		r.Get("/dealers/{dealerID}/domains", dealer.ListDomains)
		r.Put("/dealers/{dealerID}/domains/{id}/primary", dealer.SetPrimary)

		onboarding := handler.NewOnboarding(s.deps.Onboarding)
		r.Post("/dealers/{dealerID}/onboardings", onboarding.Create)
		r.Get("/onboardings/{id}", onboarding.Get)
		r.Post("/onboardings/{id}/analyze", onboarding.Analyze)
		r.Post("/onboardings/{id}/route", onboarding.SelectRoute)
		r.Post("/onboardings/{id}/configuration", onboarding.Configure)
		r.Get("/onboardings/{id}/propagation", onboarding.Propagation)
		r.Post("/onboardings/{id}/propagation/check", onboarding.CheckPropagation)
		r.Post("/onboardings/{id}/propagation/auto", onboarding.StartAutoCheck)
		r.Delete("/onboardings/{id}/propagation/auto", onboarding.StopAutoCheck)
		r.Post("/onboardings/{id}/deploy", onboarding.Deploy)

		stream := handler.NewPropagationStream(s.deps.Onboarding, s.deps.StreamInterval)
		r.Get("/onboardings/{id}/propagation/stream", stream.Stream)

		registration := handler.NewRegistration(s.deps.Search, s.deps.Registration)
		r.Get("/domain-search", registration.Search)
		r.Post("/domain-registrations", registration.Register)

		routes := handler.NewRoute(s.deps.Routes)
		r.Get("/route", routes.Lookup)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	for name, check := range s.deps.ReadyChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
