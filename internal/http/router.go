package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/neofi/eventledger/internal/auth"
	"github.com/neofi/eventledger/internal/config"
	httperrors "github.com/neofi/eventledger/internal/http/errors"
	"github.com/neofi/eventledger/internal/http/ratelimit"
	"github.com/neofi/eventledger/internal/ledger"
	"github.com/neofi/eventledger/internal/metrics"
	"github.com/neofi/eventledger/internal/store"
)

// NewRouter wires all HTTP routes for the JSON API.
func NewRouter(cfg *config.Config, st *store.Store, ledgerService *ledger.Service, authService *auth.Service) http.Handler {
	r := chi.NewRouter()

	// Credential endpoints: 5 requests per second, burst of 10 per IP.
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			httperrors.LogWarn(r, "readiness check failed", err)
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	authHandler := NewAuthHandler(authService)
	eventHandler := NewEventHandler(ledgerService)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
	})

	r.Route("/api/events", func(r chi.Router) {
		r.Use(authService.RequireToken)
		r.Post("/", eventHandler.Create)
		r.Get("/", eventHandler.List)
		r.Get("/{id}", eventHandler.Get)
		r.Put("/{id}", eventHandler.Update)
		r.Delete("/{id}", eventHandler.Delete)
		r.Post("/{id}/share", eventHandler.Share)
		r.Get("/{id}/history", eventHandler.History)
		r.Get("/{id}/history/{version}", eventHandler.GetVersion)
		r.Get("/{id}/diff/{v1}/{v2}", eventHandler.Diff)
	})

	return r
}
