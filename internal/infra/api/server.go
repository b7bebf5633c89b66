package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"genhub/internal/config"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/infra/metrics"
	"genhub/internal/usecase"
)

// ProviderCatalog is the read/manage surface of the gateway exposed over HTTP.
type ProviderCatalog interface {
	Providers() []model.ProviderID
	ListModels(ctx context.Context, provider model.ProviderID) ([]string, error)
	ListAllModels(ctx context.Context) []usecase.ProviderModels
	LoadedModels(ctx context.Context, provider model.ProviderID) ([]adapter.LoadedModel, error)
	UnloadModel(ctx context.Context, provider model.ProviderID, modelName string) error
}

type Deps struct {
	Jobs          usecase.JobTrackerUseCase
	Credentials   usecase.CredentialUseCase
	Results       usecase.ResultUseCase
	Conversations usecase.ConversationUseCase
	Providers     ProviderCatalog
	// Events streams job events to browsers; nil disables /api/events.
	Events  http.Handler
	Limiter LoginLimiter
	// Ready reports dependency health for /health; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	jobs      usecase.JobTrackerUseCase
	creds     usecase.CredentialUseCase
	results   usecase.ResultUseCase
	convs     usecase.ConversationUseCase
	providers ProviderCatalog
	events    http.Handler
	limiter   LoginLimiter
	ready     func(ctx context.Context) error
	auth      *AuthManager
	timeout   time.Duration
	log       *zerolog.Logger
}

func NewServer(d Deps, srv config.ServerConfig, auth config.AuthConfig, logger *zerolog.Logger) *Server {
	return &Server{
		jobs:      d.Jobs,
		creds:     d.Credentials,
		results:   d.Results,
		convs:     d.Conversations,
		providers: d.Providers,
		events:    d.Events,
		limiter:   d.Limiter,
		ready:     d.Ready,
		auth:      NewAuthManager(auth),
		timeout:   srv.RequestTimeout,
		log:       logger,
	}
}

// Handler builds the router. The event stream sits outside the request
// timeout; everything else under /api requires a session.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Tracing(), RequestLog(s.log), Recover(s.log))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Error: "method not allowed"})
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(Timeout(10*time.Second)).Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require)
			if s.events != nil {
				r.Method(http.MethodGet, "/events", s.events)
			}

			r.Group(func(r chi.Router) {
				if s.timeout > 0 {
					r.Use(Timeout(s.timeout))
				}
				s.jobRoutes(r)
				s.credentialRoutes(r)
				s.resultRoutes(r)
				s.conversationRoutes(r)
				s.providerRoutes(r)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, envelope{Error: err.Error()})
			return
		}
	}
	success(w, http.StatusOK, map[string]string{"status": "ok"})
}
