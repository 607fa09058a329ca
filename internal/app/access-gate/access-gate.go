package accessgate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/access-gate/internal/cache"
	"github.com/magabrotheeeer/access-gate/internal/config"
	"github.com/magabrotheeeer/access-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/access-gate/internal/lib/sl"
	"github.com/magabrotheeeer/access-gate/internal/migrations"
	"github.com/magabrotheeeer/access-gate/internal/paymentprovider"
	"github.com/magabrotheeeer/access-gate/internal/rabbitmq"
	accessservice "github.com/magabrotheeeer/access-gate/internal/services/access"
	authservice "github.com/magabrotheeeer/access-gate/internal/services/auth"
	webhookservice "github.com/magabrotheeeer/access-gate/internal/services/webhook"
	"github.com/magabrotheeeer/access-gate/internal/storage/repository"
)

// Version версия приложения, отдается в /version и /health.
const Version = "1.0.0"

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	if err = repository.CheckDatabaseReady(db); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	var publisher webhookservice.Publisher
	if cfg.RabbitURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitURL, 5, 3*time.Second)
		if err != nil {
			return nil, err
		}
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.DefaultQueues())
		if err != nil {
			return nil, err
		}
		publisher = rabbitmq.NewPublisher(ch)
	} else {
		logger.Warn("rabbit_url is empty, access change events will not be published")
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	authService := authservice.NewService(db, jwtMaker)
	accessService := accessservice.NewService(db, cacheRedis, logger)

	webhookSecret := cfg.Stripe.WebhookSecret
	if cfg.Stripe.AllowUnverifiedWebhooks {
		webhookSecret = ""
	}
	webhookService := webhookservice.New(db, cacheRedis, publisher, logger, webhookSecret)

	providerClient := paymentprovider.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.APITimeout)

	router := chi.NewRouter()

	RegisterRoutes(router, logger, cfg, db, authService, accessService, webhookService, providerClient)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", sl.Err(closeErr))
		}
		return err
	}
}
