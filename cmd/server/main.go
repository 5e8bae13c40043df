package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kestrand/maintchat/internal/agent"
	"github.com/kestrand/maintchat/internal/agent/gemini"
	"github.com/kestrand/maintchat/internal/agent/openai"
	"github.com/kestrand/maintchat/internal/api"
	"github.com/kestrand/maintchat/internal/config"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/kestrand/maintchat/internal/health"
	"github.com/kestrand/maintchat/internal/index"
	"github.com/kestrand/maintchat/internal/normalize"
	"github.com/kestrand/maintchat/internal/repository/memory"
	"github.com/kestrand/maintchat/internal/repository/redis"
	"github.com/kestrand/maintchat/internal/repository/sqlite"
	"github.com/kestrand/maintchat/internal/security"
	"github.com/kestrand/maintchat/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment")
	}

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("provider", cfg.Agent.DefaultProvider).
		Str("session_backend", cfg.Session.Backend).
		Msg("Starting maintenance assistant server")

	// Session store
	var redisClient *redis.Client
	store, cleanup, err := buildStore(cfg, &redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer cleanup()

	// Agent provider and gateway
	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize agent provider")
	}
	gateway := agent.NewGateway(provider, agent.GatewayConfig{
		Budget:      cfg.Agent.Timeout,
		MaxAttempts: cfg.Agent.MaxAttempts,
		BaseDelay:   cfg.Agent.RetryBaseDelay,
		Jitter:      cfg.Agent.RetryJitter,
	}, log.Logger)

	// Normalizer with configurable insufficiency detection
	detector := normalize.NewIndicatorDetector(cfg.Query.InsufficiencyPhrases)
	normalizer := normalize.New(detector, log.Logger)

	// Health reporter
	indexClient := index.NewClient(cfg.Index.StatusURL, cfg.Index.ProbeTimeout)
	reporter := health.NewReporter(gateway, indexClient, store, cfg.Index.StaleAfter, cfg.Index.ProbeTimeout, log.Logger)

	chatService := service.NewChatService(store, gateway, normalizer, cfg.Query.MaxLength, log.Logger)

	deps := api.Deps{
		Chat:   chatService,
		Health: reporter,
	}
	if cfg.Security.JWTSecret != "" {
		deps.JWT = security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	}
	limiter, closeLimiter := buildLimiter(cfg, redisClient)
	defer closeLimiter()
	deps.Limiter = limiter

	router := api.NewRouter(cfg, deps, log.Logger)

	// Idle session sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepIdleSessions(sweepCtx, store, cfg.Session.SweepInterval)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func buildStore(cfg *config.Config, redisClient **redis.Client) (domain.SessionStore, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		*redisClient = client
		return redis.NewSessionStore(client, cfg.Session.IdleExpiry), func() { client.Close() }, nil
	case "sqlite":
		store, err := sqlite.NewStore(cfg.Session.SQLitePath, cfg.Session.IdleExpiry)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "memory", "":
		return memory.NewStore(cfg.Session.IdleExpiry), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend: %s", cfg.Session.Backend)
	}
}

// buildLimiter wires the rate limiter when enabled. It reuses the
// session backend's redis client when there is one and dials its own
// otherwise, so limiting does not depend on the session backend choice.
func buildLimiter(cfg *config.Config, existing *redis.Client) (*redis.RateLimiter, func()) {
	if !cfg.Security.RateLimit.Enabled {
		return nil, func() {}
	}

	client := existing
	cleanup := func() {}
	if client == nil {
		c, err := redis.NewClient(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Rate limiting enabled but redis is unreachable, continuing without it")
			return nil, func() {}
		}
		client = c
		cleanup = func() { c.Close() }
	}

	return redis.NewRateLimiter(client,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst), cleanup
}

func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.Agent.DefaultProvider {
	case "gemini":
		p := gemini.NewProvider(cfg.Agent.Gemini.APIKey, cfg.Agent.Gemini.Model)
		if !p.IsConfigured() {
			return nil, fmt.Errorf("gemini provider requires GEMINI_API_KEY")
		}
		return p, nil
	case "openai":
		p := openai.NewProvider(cfg.Agent.OpenAI.APIKey, cfg.Agent.OpenAI.Model)
		if !p.IsConfigured() {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown agent provider: %s", cfg.Agent.DefaultProvider)
	}
}

func sweepIdleSessions(ctx context.Context, store domain.SessionStore, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.ExpireIdle(ctx, now)
			if err != nil {
				log.Error().Err(err).Msg("idle session sweep failed")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("expired idle sessions")
			}
		}
	}
}
