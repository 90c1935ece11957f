package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"imagegen/docs"
	"imagegen/internal/auth"
	"imagegen/internal/config"
	"imagegen/internal/database"
	"imagegen/internal/database/migration"
	"imagegen/internal/guard"
	handlers "imagegen/internal/http/handler"
	"imagegen/internal/http/middleware"
	"imagegen/internal/httpclient"
	"imagegen/internal/logger"
	"imagegen/internal/metrics"
	"imagegen/internal/otel"
	"imagegen/internal/redis"
	"imagegen/internal/repository/postgres"
	"imagegen/internal/service"
	"imagegen/internal/storage"
	"imagegen/internal/webhook"
)

// @title Image Generation API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log := logger.New(cfg.Env, cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		fatal(log, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		fatal(log, "failed to initialize tracing", err)
	}

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		fatal(log, "failed to migrate database", err)
	}

	// Private bucket, reached only with the service credential
	objStore, err := storage.NewMinIO(cfg.Storage)
	if err != nil {
		fatal(log, "failed to initialize object storage", err)
	}

	var inFlight guard.InFlightGuard = guard.NewMemory()
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			fatal(log, "failed to connect to redis", err)
		}
		defer rdb.Close()
		// A crashed run frees its slot once every stage could have timed out.
		lease := cfg.Webhook.Timeout() + cfg.Copy.FetchTimeout() + cfg.Copy.UploadTimeout() + time.Minute
		inFlight = guard.NewRedis(rdb, lease)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics, err := metrics.NewPipeline(reg)
	if err != nil {
		fatal(log, "failed to register pipeline metrics", err)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		fatal(log, "failed to register http metrics", err)
	}

	// Initialize repositories and services
	imageRepo := postgres.NewImagePostgres(db)
	userRepo := postgres.NewUserPostgres(db)

	signer := service.NewURLSigner(objStore, nil)
	sourceClient := httpclient.NewPublic(cfg.Copy.FetchTimeout())
	if cfg.Copy.AllowPrivateSources {
		log.Warn("source_private_addresses_allowed")
		sourceClient = httpclient.New(cfg.Copy.FetchTimeout())
	}
	copier := service.NewSecureCopyService(objStore, sourceClient, service.CopyOptions{
		FetchTimeout:  cfg.Copy.FetchTimeout(),
		UploadTimeout: cfg.Copy.UploadTimeout(),
		MaxBytes:      cfg.Copy.MaxSourceBytes,
	})
	history := service.NewHistoryService(imageRepo, objStore, signer, cfg.Storage.SignedURLTTL(), log)
	generations := service.NewGenerationService(service.GenerationDeps{
		Generator: webhook.NewClient(httpclient.New(cfg.Webhook.Timeout()), cfg.Webhook.URL, cfg.Webhook.Timeout()),
		Copier:    copier,
		Signer:    signer,
		History:   history,
		Guard:     inFlight,
		Metrics:   pipelineMetrics,
		Log:       log,
	}, service.GenerationOptions{
		SignedURLTTL: cfg.Storage.SignedURLTTL(),
		WaitNotice:   cfg.Webhook.WaitNotice(),
	})

	tokens, err := auth.NewTokens(cfg.Auth)
	if err != nil {
		fatal(log, "failed to initialize tokens", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Generation requests hold the connection while the webhook works.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Webhook.Timeout() + cfg.Copy.FetchTimeout() + cfg.Copy.UploadTimeout(),
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// Metrics sit outside the logger, which resolves returned errors to their final status
	app.Use(promMiddleware.Handler())
	app.Use(middleware.Logger(log))

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:              db,
		Gatherer:        reg,
		Authenticator:   auth.NewAuthenticator(tokens, userRepo),
		Accounts:        auth.NewAccounts(userRepo, tokens),
		SecureCopy:      copier,
		Generations:     generations,
		History:         history,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("server_starting", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := app.Listen(addr); err != nil {
			fatal(log, "failed to start server", err)
		}
	}()

	<-ctx.Done()
	log.Info("server_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logger.Err(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", logger.Err(err))
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, logger.Err(err))
	os.Exit(1)
}
