package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/brightdesk/crm-backend/internal/assistant"
	authhandler "github.com/brightdesk/crm-backend/internal/auth/handler"
	"github.com/brightdesk/crm-backend/internal/auth/jwt"
	authservice "github.com/brightdesk/crm-backend/internal/auth/service"
	"github.com/brightdesk/crm-backend/internal/crm/consumers"
	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/handler"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/internal/crm/service"
	"github.com/brightdesk/crm-backend/internal/fx"
	"github.com/brightdesk/crm-backend/internal/schema"
	"github.com/brightdesk/crm-backend/internal/storage"
	"github.com/brightdesk/crm-backend/pkg/cache"
	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/database"
	"github.com/brightdesk/crm-backend/pkg/httputil"
	"github.com/brightdesk/crm-backend/pkg/i18n"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/messaging"
	"github.com/brightdesk/crm-backend/pkg/metrics"
)

const serviceName = "crm-api"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting CRM API")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// RabbitMQ is optional: without it events are dropped and other
	// instances pick up schema changes when their capability cache expires.
	var publisher messaging.EventPublisher = messaging.NopPublisher{}
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		p, err := messaging.NewPublisher(rmq, cfg.RabbitMQ.Exchange, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		publisher = p
	}

	var shared fx.SharedStore
	var rdb *cache.Redis
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(&cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		shared = rdb
	}

	probe := schema.NewProbe(db, cfg.Schema.CapsTTL, log)

	if cfg.Schema.AutoUpgrade {
		report := schema.NewUpgrader(db, probe, publisher, log).Run(ctx)
		if len(report.Failed) > 0 {
			log.Warn().Strs("failed", report.Failed).Msg("schema upgrade incomplete, affected features stay gated")
		}
	}

	if rmq != nil {
		schemaConsumer, err := consumers.NewSchemaEventConsumer(rmq, cfg.RabbitMQ.Exchange, probe, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create schema event consumer")
		}
		if err := schemaConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start schema event consumer")
		}
	}

	files, err := storage.NewLocal(cfg.Uploads.Dir, cfg.Uploads.MaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload storage")
	}
	rates := fx.NewProvider(&cfg.FX, shared, log)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	pipelineRepo := repository.NewPipelineRepository(db)
	dealRepo := repository.NewDealRepository(db)
	clientRepo := repository.NewClientRepository(db)
	productRepo := repository.NewProductRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	// Services
	roles := service.NewRoleResolver(probe, userRepo, domain.Role(cfg.Schema.RoleFallback), log)
	dealService := service.NewDealService(service.DealDeps{
		Caps:      probe,
		Tx:        db,
		Roles:     roles,
		Deals:     dealRepo,
		Pipelines: pipelineRepo,
		Clients:   clientRepo,
		Products:  productRepo,
		Users:     userRepo,
		Tenants:   tenantRepo,
		Files:     files,
		Publisher: publisher,
	}, log)
	forecastService := service.NewForecastService(probe, roles, pipelineRepo, dealRepo, tenantRepo, rates, log)
	dashboardService := service.NewDashboardService(probe, roles, dealRepo, pipelineRepo, taskRepo, invoiceRepo, rates, log)
	pipelineService := service.NewPipelineService(db, roles, pipelineRepo, log)
	clientService := service.NewClientService(probe, roles, clientRepo, log)
	productService := service.NewProductService(probe, roles, productRepo, log)
	userService := service.NewUserService(probe, db, roles, userRepo, publisher, log)
	settingsService := service.NewSettingsService(probe, roles, tenantRepo, pipelineRepo, subscriptionRepo, log)
	invoiceService := service.NewInvoiceService(probe, roles, invoiceRepo, clientRepo, dealRepo, log)
	taskService := service.NewTaskService(probe, roles, taskRepo, dealRepo, userRepo, log)
	exportService := service.NewExportService(probe, roles, clientRepo, invoiceRepo)
	assistantService := assistant.New(cfg.Inference, roles, log)

	jwtManager := jwt.NewManager(&cfg.JWT)
	authService := authservice.NewAuthService(authservice.Deps{
		Tx:            db,
		Caps:          probe,
		Tenants:       tenantRepo,
		Users:         userRepo,
		Pipelines:     pipelineRepo,
		Subscriptions: subscriptionRepo,
	}, jwtManager, publisher, log)

	// Handlers
	authHandler := authhandler.NewAuthHandler(authService, log)
	crm := &handler.Handlers{
		Deals:     handler.NewDealHandler(dealService, cfg.Uploads.MaxBytes, log),
		Reports:   handler.NewReportHandler(forecastService, dashboardService),
		Pipelines: handler.NewPipelineHandler(pipelineService),
		Clients:   handler.NewClientHandler(clientService),
		Products:  handler.NewProductHandler(productService),
		Users:     handler.NewUserHandler(userService),
		Settings:  handler.NewSettingsHandler(settingsService),
		Invoices:  handler.NewInvoiceHandler(invoiceService),
		Tasks:     handler.NewTaskHandler(taskService),
		Exports:   handler.NewExportHandler(exportService, log),
		Assistant: handler.NewAssistantHandler(assistantService),
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			health["redis"] = rdb.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, health)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(authhandler.Authenticate(jwtManager, log))
			crm.Routes(r)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
