package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edupoint/rewards-api/api/swagger"
	"github.com/edupoint/rewards-api/internal/handler"
	internalmiddleware "github.com/edupoint/rewards-api/internal/middleware"
	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/repository"
	"github.com/edupoint/rewards-api/internal/service"
	"github.com/edupoint/rewards-api/pkg/cache"
	"github.com/edupoint/rewards-api/pkg/config"
	"github.com/edupoint/rewards-api/pkg/database"
	"github.com/edupoint/rewards-api/pkg/logger"
	corsmiddleware "github.com/edupoint/rewards-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edupoint/rewards-api/pkg/middleware/requestid"
)

// @title Rewards API
// @version 1.0.0
// @description XP and Atoms reward ledger for the school platform
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, duplicate detection falls back to the database constraint", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	ruleRepo := repository.NewRewardRuleRepository(db)
	appliedRepo := repository.NewAppliedRewardRepository(db)
	levelRepo := repository.NewLevelRepository(db)
	storeRepo := repository.NewStoreRepository(db)
	idemRepo := repository.NewIdempotencyRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "rewards-api",
	})
	ledgerSvc := service.NewLedgerService(ledgerRepo, metricsSvc, validate, logr, service.LedgerConfig{
		MaxPageSize: cfg.Ledger.MaxPageSize,
	})
	levelSvc := service.NewLevelService(levelRepo, validate, logr)
	ruleSvc := service.NewRewardRuleService(ruleRepo, validate, logr)
	rewardSvc := service.NewRewardService(ruleRepo, appliedRepo, ledgerRepo, levelSvc, idemRepo, metricsSvc, validate, logr, service.RewardConfig{
		MaxBatchSize:      cfg.Rewards.MaxBatchSize,
		IdempotencyTTL:    cfg.Rewards.IdempotencyTTL,
		IdempotencyWindow: cfg.Rewards.IdempotencyWindow,
	})
	storeSvc := service.NewStoreService(db, storeRepo, ledgerRepo, metricsSvc, validate, logr, service.StoreConfig{
		MaxItemsPerOrder:   cfg.Store.MaxItemsPerOrder,
		MaxQuantityPerItem: cfg.Store.MaxQuantityPerItem,
	})
	statementSvc := service.NewStatementService(ledgerRepo, logr)
	reconcileSvc := service.NewReconciliationService(ledgerRepo, ledgerSvc, metricsSvc, logr, service.ReconciliationConfig{
		Interval:  cfg.Ledger.ReconcileInterval,
		BatchSize: cfg.Ledger.ReconcileBatchSize,
		Workers:   cfg.Ledger.ReconcileWorkers,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc, statementSvc)
	rewardHandler := handler.NewRewardHandler(rewardSvc, ruleSvc)
	levelHandler := handler.NewLevelHandler(levelSvc)
	storeHandler := handler.NewStoreHandler(storeSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	staff := internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin))
	admin := internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin))
	selfOrStaff := internalmiddleware.RBAC(internalmiddleware.RoleSelf, string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin))
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(userRepo, action, resource)
	}

	secured.GET("/students/:studentId/balances", selfOrStaff, ledgerHandler.Balances)
	secured.GET("/students/:studentId/summary", selfOrStaff, ledgerHandler.Summary)
	secured.GET("/students/:studentId/transactions", selfOrStaff, ledgerHandler.Transactions)
	secured.GET("/students/:studentId/statement", selfOrStaff, ledgerHandler.Statement)
	secured.POST("/ledger/adjustments", admin, audit(models.AuditActionAdjustment, "ledger"), ledgerHandler.Adjust)
	secured.POST("/ledger/reconcile/:studentId", admin, ledgerHandler.Reconcile)
	secured.POST("/ledger/reconciliation", admin, func(c *gin.Context) {
		reconcileSvc.Sweep(c.Request.Context())
		c.JSON(http.StatusAccepted, gin.H{"status": "sweep enqueued"})
	})

	secured.POST("/rewards/apply", staff, rewardHandler.Apply)
	secured.GET("/rewards/applications", staff, rewardHandler.Applications)
	secured.GET("/rewards/rules", rewardHandler.ListRules)
	secured.GET("/rewards/rules/:id", rewardHandler.GetRule)
	secured.POST("/rewards/rules", admin, audit(models.AuditActionRuleChange, "reward_rules"), rewardHandler.CreateRule)
	secured.PUT("/rewards/rules/:id", admin, audit(models.AuditActionRuleChange, "reward_rules"), rewardHandler.UpdateRule)
	secured.DELETE("/rewards/rules/:id", admin, audit(models.AuditActionRuleChange, "reward_rules"), rewardHandler.DeactivateRule)

	secured.GET("/levels", levelHandler.List)
	secured.GET("/levels/resolve", levelHandler.Resolve)
	secured.PUT("/levels", admin, audit(models.AuditActionLevelReplace, "levels"), levelHandler.Replace)

	secured.GET("/store/products", storeHandler.ListProducts)
	secured.POST("/store/products", admin, storeHandler.CreateProduct)
	secured.PUT("/store/products/:id", admin, storeHandler.UpdateProduct)
	secured.POST("/store/products/:id/restock", admin, audit(models.AuditActionRestock, "store_products"), storeHandler.Restock)
	secured.GET("/store/products/:id/movements", staff, storeHandler.Movements)
	secured.POST("/store/orders", storeHandler.CreateOrder)
	secured.GET("/store/orders", staff, storeHandler.ListOrders)
	secured.GET("/store/orders/:id", staff, storeHandler.GetOrder)
	secured.PATCH("/store/orders/:id/status", staff, storeHandler.UpdateOrderStatus)
	secured.PATCH("/store/orders/:id/payment-status", admin, storeHandler.UpdatePaymentStatus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
