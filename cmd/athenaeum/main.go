package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/athenaeum-app/athenaeum/internal/app"
	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/blog"
	"github.com/athenaeum-app/athenaeum/internal/catalog"
	catalogrest "github.com/athenaeum-app/athenaeum/internal/catalog/rest"
	"github.com/athenaeum-app/athenaeum/internal/groups"
	"github.com/athenaeum-app/athenaeum/internal/observability"
	"github.com/athenaeum-app/athenaeum/internal/platform/cache"
	"github.com/athenaeum-app/athenaeum/internal/platform/db"
	"github.com/athenaeum-app/athenaeum/internal/shared"
	"github.com/athenaeum-app/athenaeum/internal/social"
	"github.com/athenaeum-app/athenaeum/internal/users"
	"github.com/athenaeum-app/athenaeum/internal/view"
	"github.com/athenaeum-app/athenaeum/jobs"
	"github.com/athenaeum-app/athenaeum/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "athenaeum_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	permStore := authz.NewPGStore(pool)
	grants := authz.NewCachedStore(permStore, redisClient, cfg.AuthzCacheTTL, logger)
	gate := authz.NewGate(grants)
	metrics := observability.NewMetrics()

	observe := func(allowed bool, reason authz.DenyReason) {
		metrics.AuthzDecision(allowed, string(reason))
	}
	guard := authz.Middleware{Gate: gate, Logger: logger, LoginURL: "/auth/login", Observe: observe}
	apiGuard := authz.Middleware{Gate: gate, Logger: logger, JSON: true, Observe: observe}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	tokenIssuer := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, auditLogger)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, grants)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager, guard, grants, auditLogger)

	groupsRepo := groups.NewRepository(pool)
	groupsService := groups.NewService(groupsRepo, grants)
	groupsHandler := groups.NewHandler(logger, groupsService, templates, csrfManager, guard, auditLogger)

	permissionsHandler := authz.NewPermissionsHandler(logger, permStore, templates, csrfManager, guard)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService, templates, csrfManager, guard, auditLogger)

	bearer := auth.Bearer{Tokens: tokenIssuer, Logger: logger}
	catalogAPIHandler := catalogrest.NewHandler(logger, catalogService, bearer, apiGuard, idempotencyStore)

	blogRepo := blog.NewRepository(pool)
	blogService := blog.NewService(blogRepo)
	blogHandler := blog.NewHandler(logger, blogService, templates, csrfManager, guard)

	socialRepo := social.NewRepository(pool)
	socialService := social.NewService(socialRepo)
	socialHandler := social.NewHandler(logger, authService, socialService, tokenIssuer, apiGuard, grants)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler, err := report.NewHandler(logger, reportClient, catalogService, apiGuard)
	if err != nil {
		logger.Error("init report handler", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, apiGuard, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthzStore:     grants,

		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		GroupsHandler:      groupsHandler,
		PermissionsHandler: permissionsHandler,
		CatalogHandler:     catalogHandler,
		CatalogAPIHandler:  catalogAPIHandler,
		BlogHandler:        blogHandler,
		SocialHandler:      socialHandler,
		ReportHandler:      reportHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
