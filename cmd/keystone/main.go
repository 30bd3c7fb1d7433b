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
	"github.com/redis/go-redis/v9"

	"github.com/keystone-erp/keystone-erp/internal/app"
	"github.com/keystone-erp/keystone-erp/internal/assignments"
	"github.com/keystone-erp/keystone-erp/internal/auth"
	"github.com/keystone-erp/keystone-erp/internal/authz"
	"github.com/keystone-erp/keystone-erp/internal/observability"
	"github.com/keystone-erp/keystone-erp/internal/platform/db"
	"github.com/keystone-erp/keystone-erp/internal/roles"
	"github.com/keystone-erp/keystone-erp/internal/shared"
	"github.com/keystone-erp/keystone-erp/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "keystone_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	registry, err := authz.NewDefaultRegistry()
	if err != nil {
		logger.Error("build permission registry", slog.Any("error", err))
		os.Exit(1)
	}

	decisionCache := authz.NewDecisionCache(redisClient, cfg.DecisionCacheTTL, logger)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, registry, decisionCache, logger)

	assignmentsRepo := assignments.NewRepository(dbpool)
	assignmentsService := assignments.NewService(assignmentsRepo, decisionCache, authz.SystemClock, logger)

	engine := authz.NewEngine(registry, assignmentsService, rolesService, decisionCache, authz.SystemClock, logger)
	guard := authz.Guard{Engine: engine, Logger: logger, Audit: auditLogger, Observer: metrics}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	rolesHandler := roles.NewHandler(logger, rolesService, engine, guard)
	assignmentsHandler := assignments.NewHandler(logger, assignmentsService, guard)
	permissionsHandler := authz.NewPermissionsHandler(registry, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		AssignmentsHandler: assignmentsHandler,
		PermissionsHandler: permissionsHandler,
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
