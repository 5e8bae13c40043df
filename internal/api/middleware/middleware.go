package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kestrand/maintchat/internal/api/response"
	"github.com/kestrand/maintchat/internal/domain"
	"github.com/kestrand/maintchat/internal/repository/redis"
	"github.com/kestrand/maintchat/internal/security"
	"github.com/rs/zerolog"
)

// Logger logs one line per request with the correlation id
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("correlation_id", chimiddleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

// SecurityHeaders adds the configured hardening header set to every
// response, and echoes the correlation id for client-side log joins.
func SecurityHeaders(headers map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware handles bearer-token authentication. It is wired only
// when a JWT secret is configured.
type AuthMiddleware struct {
	jwtManager *security.JWTManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *security.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// Authenticate validates the bearer token
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.JSON(w, http.StatusUnauthorized,
				domain.NewEnvelope(domain.NewInputError("missing authorization header"), chimiddleware.GetReqID(r.Context())))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.JSON(w, http.StatusUnauthorized,
				domain.NewEnvelope(domain.NewInputError("invalid authorization header format"), chimiddleware.GetReqID(r.Context())))
			return
		}

		if _, err := m.jwtManager.ValidateToken(parts[1]); err != nil {
			response.JSON(w, http.StatusUnauthorized,
				domain.NewEnvelope(domain.NewInputError("invalid or expired token"), chimiddleware.GetReqID(r.Context())))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware handles rate limiting keyed by client IP
type RateLimitMiddleware struct {
	rateLimiter *redis.RateLimiter
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(rateLimiter *redis.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter}
}

// Limit applies rate limiting based on the request's real IP
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetTime, err := m.rateLimiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			// If the rate limiter fails, allow the request.
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", resetTime.UTC().Format(time.RFC3339))

		if !allowed {
			response.JSON(w, http.StatusTooManyRequests,
				domain.NewEnvelope(
					domain.NewTransientError("rate limit exceeded").WithSuggestion("wait a moment and try again"),
					chimiddleware.GetReqID(r.Context())))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// RealIP middleware rewrites RemoteAddr when forwarding headers
	// are present, possibly to a bare address without a port.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
