package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/swiftdrop/swiftdrop-backend/api/routes"
	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/geo"
	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/push"
	"github.com/swiftdrop/swiftdrop-backend/internal/auth"
	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	"github.com/swiftdrop/swiftdrop-backend/internal/locations"
	"github.com/swiftdrop/swiftdrop-backend/internal/notify"
	"github.com/swiftdrop/swiftdrop-backend/internal/reviews"
	"github.com/swiftdrop/swiftdrop-backend/internal/seed"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/internal/verifications"
	stripewebhook "github.com/swiftdrop/swiftdrop-backend/internal/webhooks/stripe"
	"github.com/swiftdrop/swiftdrop-backend/pkg/auth/session"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
	"github.com/swiftdrop/swiftdrop-backend/pkg/metrics"
	"github.com/swiftdrop/swiftdrop-backend/pkg/redis"
	"github.com/swiftdrop/swiftdrop-backend/pkg/storage/memory"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	registry := prometheus.NewRegistry()
	store := docstore.New(docstore.WithRecorder(metrics.NewStoreMetrics(registry)))

	var closers []func() error

	// Sessions live in redis when configured; the process-local store covers
	// single-instance deployments and development.
	var sessionStore session.Store
	var sessionKeyer session.Keyer
	var redisPinger redis.Pinger
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		closers = append(closers, redisClient.Close)
		sessionStore = redisClient
		sessionKeyer = redisClient
		redisPinger = redisClient
	} else {
		memoryStore := session.NewMemoryStore()
		sessionStore = memoryStore
		sessionKeyer = memoryStore
	}

	sessions, err := session.NewManager(sessionStore, sessionKeyer, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	profiles := users.NewRepository(store)

	var seeder *seed.Seeder
	if cfg.Seed.Demo {
		seeder, err = seed.New(store, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create seeder", err)
			os.Exit(1)
		}
	}

	authParams := auth.ServiceParams{
		Accounts:    auth.NewAccountsRepository(store),
		Profiles:    profiles,
		Sessions:    sessions,
		OTP:         auth.NewOTPRegistry(),
		Logger:      logg,
		AppConfig:   cfg.App,
		JWTConfig:   cfg.JWT,
		PasswordCfg: cfg.Password,
	}
	if seeder != nil {
		authParams.Seeder = seeder
	}
	authService, err := auth.NewService(authParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	deliveryRepo := deliveries.NewRepository(store)
	deliveryService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:     deliveryRepo,
		Profiles: profiles,
		Bucket:   memory.NewBucket("swiftdrop-proofs"),
		Geocoder: geo.NewSim(cfg.Geo),
		Logger:   logg,
		Payments: cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	locationService, err := locations.NewService(store)
	if err != nil {
		logg.Error(context.Background(), "failed to create location service", err)
		os.Exit(1)
	}
	reviewService, err := reviews.NewService(store, deliveryRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create review service", err)
		os.Exit(1)
	}
	verificationService, err := verifications.NewService(store, profiles)
	if err != nil {
		logg.Error(context.Background(), "failed to create verification service", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Deliveries: deliveryRepo,
		Users:      profiles,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook relay", err)
		os.Exit(1)
	}

	if cfg.Push.Enabled {
		consumer, err := notify.Start(store, profiles, push.NewLogAdapter(logg), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to start notification consumer", err)
			os.Exit(1)
		}
		closers = append(closers, func() error {
			consumer.Close()
			return nil
		})
	}

	router := routes.NewRouter(routes.Deps{
		Config:        cfg,
		Logger:        logg,
		Redis:         redisPinger,
		Sessions:      sessions,
		Auth:          authService,
		Deliveries:    deliveryService,
		Locations:     locationService,
		Reviews:       reviewService,
		Verifications: verificationService,
		StripeWebhook: webhookService,
		Metrics:       registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "error draining http server", err)
		}
	}

	var closeErr error
	for _, closeFn := range closers {
		closeErr = multierr.Append(closeErr, closeFn())
	}
	if closeErr != nil {
		logg.Error(ctx, "error closing dependencies", closeErr)
		os.Exit(1)
	}
}
