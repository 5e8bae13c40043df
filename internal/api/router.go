package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kestrand/maintchat/internal/api/handler"
	custommiddleware "github.com/kestrand/maintchat/internal/api/middleware"
	"github.com/kestrand/maintchat/internal/api/response"
	"github.com/kestrand/maintchat/internal/config"
	"github.com/kestrand/maintchat/internal/health"
	"github.com/kestrand/maintchat/internal/repository/redis"
	"github.com/kestrand/maintchat/internal/security"
	"github.com/kestrand/maintchat/internal/service"
	"github.com/rs/zerolog"
)

// Deps carries the wired components the router serves
type Deps struct {
	Chat    *service.ChatService
	Health  *health.Reporter
	Limiter *redis.RateLimiter
	JWT     *security.JWTManager
}

// NewRouter creates and configures the HTTP router. The service exposes
// a single method-routed entry point: POST for queries, GET for session
// state or liveness, DELETE for session reset.
func NewRouter(cfg *config.Config, deps Deps, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.SecurityHeaders(cfg.Security.Headers))

	// CORS: explicit configured lists, preflight passed through so the
	// entry point answers 204 itself.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     cfg.CORS.AllowedOrigins,
		AllowedMethods:     cfg.CORS.AllowedMethods,
		AllowedHeaders:     cfg.CORS.AllowedHeaders,
		ExposedHeaders:     []string{"X-Request-ID"},
		AllowCredentials:   true,
		MaxAge:             cfg.CORS.MaxAge,
		OptionsPassthrough: true,
	}))

	chatHandler := handler.NewChatHandler(deps.Chat)
	healthHandler := handler.NewHealthHandler(deps.Health)

	mutating := func(r chi.Router) chi.Router {
		if deps.JWT != nil {
			r = r.With(custommiddleware.NewAuthMiddleware(deps.JWT).Authenticate)
		}
		if deps.Limiter != nil {
			r = r.With(custommiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
		}
		return r
	}

	mutating(r).Post("/", chatHandler.Query)
	mutating(r).Delete("/", chatHandler.Reset)
	r.Options("/", chatHandler.Preflight)

	// GET disambiguates by query parameter: session state when a
	// sessionId is present, liveness probe otherwise.
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("sessionId") != "" {
			chatHandler.State(w, req)
			return
		}
		healthHandler.Check(w, req)
	})

	r.MethodNotAllowed(response.MethodNotAllowed)

	return r
}
