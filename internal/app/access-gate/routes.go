// Package accessgate собирает приложение и регистрирует маршруты.
package accessgate

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/access-gate/internal/config"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/access/reconcile"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/access/status"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/billing/checkout"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/access-gate/internal/http/handlers/health"
	"github.com/magabrotheeeer/access-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/access-gate/internal/paymentprovider"
	accessservice "github.com/magabrotheeeer/access-gate/internal/services/access"
	authservice "github.com/magabrotheeeer/access-gate/internal/services/auth"
	webhookservice "github.com/magabrotheeeer/access-gate/internal/services/webhook"
	"github.com/magabrotheeeer/access-gate/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	cfg *config.Config,
	db *repository.Storage,
	authService *authservice.Service,
	accessService *accessservice.Service,
	webhookService *webhookservice.Service,
	providerClient *paymentprovider.Client,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	checkoutOpts := checkout.Options{
		PriceID:    cfg.Stripe.PriceID,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/login", login.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/auth/me", me.New(logger, authService).ServeHTTP)
			r.Get("/access/status", status.New(logger, accessService).ServeHTTP)
			r.Post("/access/reconcile", reconcile.New(logger, accessService).ServeHTTP)
			r.Post("/billing/checkout", checkout.New(logger, providerClient, db, checkoutOpts).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации)
		r.Post("/billing/webhook", webhook.New(logger, webhookService).ServeHTTP)
	})

	healthHandler := health.New(logger, db, cfg.Env, Version)
	r.Get("/health", healthHandler.Health)
	r.Get("/version", healthHandler.Version)

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
