/**
 * @description
 * This file contains custom middleware for the HTTP router: bearer token
 * authentication, a role guard, and the daily per-user rate limiter.
 * The authenticated principal is carried through the request context for
 * handlers to read.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - internal/app, internal/domain: Token validation, principal model, limiter.
 */

package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/domain"
)

// principalContextKey is a custom type for the context key to avoid collisions.
type principalContextKey string

const principalKey principalContextKey = "principal"

// principalFrom reads the authenticated principal from the request context.
// The second return is false only when the auth middleware did not run.
func principalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

// AuthMiddleware validates the bearer token on every request and stores the
// resolved principal in the context. Requests without a valid token get a
// 401 UNAUTHENTICATED envelope.
func AuthMiddleware(service *app.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
				return
			}

			principal, err := service.Authenticate(r.Context(), tokenString)
			if err != nil {
				respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Jeton invalide ou expiré", nil)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles rejects principals whose role is not in the allowed set. It
// must run after AuthMiddleware.
func RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, CodeInsufficientPermissions, "Votre rôle ne permet pas cette opération", nil)
		})
	}
}

// RateLimitMiddleware enforces the daily per-user quota. The counter resets
// at midnight UTC. When the limiter backend is unreachable the request is
// allowed through so that a Redis outage does not take the API down.
func RateLimitMiddleware(limiter app.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := principalFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
				return
			}

			decision, err := limiter.Consume(r.Context(), principal.ID.String(), time.Now())
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable, allowing request\" user_id=%s err=%v", principal.ID, err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

			if !decision.Allowed {
				respondError(w, http.StatusTooManyRequests, CodeRateLimitExceeded,
					"Limite de requêtes quotidienne atteinte", map[string]interface{}{
						"max_requests":  decision.Limit,
						"current_count": decision.Count,
						"reset_date":    decision.Reset.Format(time.RFC3339),
					})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
