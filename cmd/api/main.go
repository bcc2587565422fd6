package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rflexhq/license-server/api/routes"
	"github.com/rflexhq/license-server/internal/activations"
	"github.com/rflexhq/license-server/internal/licenses"
	"github.com/rflexhq/license-server/internal/plans"
	"github.com/rflexhq/license-server/internal/repo"
	"github.com/rflexhq/license-server/internal/revocations"
	"github.com/rflexhq/license-server/internal/validation"
	"github.com/rflexhq/license-server/pkg/config"
	"github.com/rflexhq/license-server/pkg/db"
	"github.com/rflexhq/license-server/pkg/logger"
	"github.com/rflexhq/license-server/pkg/metrics"
	"github.com/rflexhq/license-server/pkg/migrate"
	"github.com/rflexhq/license-server/pkg/redis"
	"github.com/rflexhq/license-server/pkg/signing"
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

	privateKey, err := cfg.Signing.PrivateKey()
	if err != nil {
		logg.Error(context.Background(), "failed to load signing key", err)
		os.Exit(1)
	}
	publicKey, err := cfg.Signing.PublicKey()
	if err != nil {
		logg.Error(context.Background(), "failed to load verification key", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	signer, err := signing.NewSigner(privateKey)
	if err != nil {
		logg.Error(context.Background(), "failed to create signer", err)
		os.Exit(1)
	}

	validationMetrics := metrics.NewValidationMetrics(prometheus.DefaultRegisterer)
	base := repo.NewBase(dbClient.DB())

	revocationService, err := revocations.NewService(revocations.NewRepository(base), redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create revocation service", err)
		os.Exit(1)
	}

	activationService, err := activations.NewService(activations.NewRepository(base), base)
	if err != nil {
		logg.Error(context.Background(), "failed to create activation service", err)
		os.Exit(1)
	}

	planService, err := plans.NewService(plans.NewRepository(base))
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	licenseService, err := licenses.NewService(licenses.NewRepository(base), planService, revocationService, signer, validationMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create license service", err)
		os.Exit(1)
	}

	validationService, err := validation.NewService(
		publicKey,
		revocationService,
		activationService,
		validation.NewLogRepository(base),
		validationMetrics,
		logg,
		cfg.DeviceToken,
		cfg.Validation.GracePeriod(),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create validation service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting license server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			licenseService,
			validationService,
			activationService,
			revocationService,
			planService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "license server stopped unexpectedly", err)
		os.Exit(1)
	}
}
