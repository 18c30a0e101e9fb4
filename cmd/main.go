package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/payouts/clients"
	"github.com/joy095/payouts/config"
	"github.com/joy095/payouts/config/db"
	redisclient "github.com/joy095/payouts/config/redis"
	"github.com/joy095/payouts/controllers/payout_batch_controller"
	"github.com/joy095/payouts/logger"
	middleware "github.com/joy095/payouts/middlewares"
	"github.com/joy095/payouts/middlewares/cors"
	logger_middleware "github.com/joy095/payouts/middlewares/logger"
	"github.com/joy095/payouts/models/payout_batch_models"
	"github.com/joy095/payouts/models/vendor_models"
	"github.com/joy095/payouts/routes"
	"github.com/joy095/payouts/services/payout_batch_service"
	"github.com/joy095/payouts/utils/mail"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	logger.InitLoggers(cfg.LogDir)

	if cfg.JWTSecret == "" {
		logger.ErrorLogger.Fatal("JWT_SECRET not set")
	}

	ctx := context.Background()

	var (
		store     payout_batch_models.Store
		directory vendor_models.Directory
		pool      *pgxpool.Pool
	)
	switch cfg.Payout.Store {
	case "memory":
		logger.WarnLogger.Warn("PAYOUT_STORE=memory: the ledger starts empty and nothing survives a restart")
		store = payout_batch_models.NewMemoryStore()
		directory = vendor_models.NewStaticDirectory()
	default:
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close(pool)

		if err := payout_batch_models.EnsureSchema(ctx, pool); err != nil {
			logger.ErrorLogger.Fatalf("Failed to apply payout schema: %v", err)
		}
		store = payout_batch_models.NewPgStore(pool)
		directory = vendor_models.NewPgDirectory(pool)
	}

	rdb, err := redisclient.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisclient.CloseRedis(rdb)

	numbers, err := payout_batch_service.NewNumbering(rdb, cfg.Payout.NodeID)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to initialize numbering: %v", err)
	}

	deps := payout_batch_service.Dependencies{
		Store:      store,
		Directory:  directory,
		Numbers:    numbers,
		Settlement: settlementClient(cfg),
		Options: payout_batch_service.Options{
			MinThreshold:          cfg.Payout.MinThreshold,
			Currency:              cfg.Payout.Currency,
			DemoMode:              cfg.Payout.DemoMode,
			SettlementTimeout:     cfg.Payout.SettlementTimeout,
			SettlementConcurrency: cfg.Payout.SettlementConcurrency,
			StaleProcessingAfter:  cfg.Payout.StaleProcessingAfter,
		},
	}
	if cfg.Payout.ReportEmail != "" {
		mailer, err := mail.NewBatchReportMailer(cfg.SMTP, cfg.Payout.ReportEmail)
		if err != nil {
			logger.ErrorLogger.Fatalf("Failed to configure batch report mailer: %v", err)
		}
		deps.Notifier = mailer
	}

	service, err := payout_batch_service.NewService(deps)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to initialize payout service: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.CorsMiddleware())
	r.Use(logger_middleware.GinLogger())

	routes.RegisterPayoutBatchRoutes(r, payout_batch_controller.NewPayoutBatchController(service, directory), routes.RouteOptions{
		JWTSecret:     []byte(cfg.JWTSecret),
		AdminRoles:    cfg.Payout.AdminRoles,
		Limits:        middleware.NewRateLimits(rdb),
		MutationLimit: cfg.RateLimitMutations,
	})

	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"message": "ok from payout service", "store": cfg.Payout.Store, "demo_mode": cfg.Payout.DemoMode}
		if pool != nil {
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := pool.Ping(pingCtx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"message": "database unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.InfoLogger.Infof("Payout service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorLogger.Fatalf("Server failed to listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoLogger.Info("Shutting down payout service...")

	// In-flight batch processing may still be settling.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Payout.SettlementTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}
	logger.InfoLogger.Info("Payout service exited gracefully.")
}

func settlementClient(cfg *config.Config) clients.SettlementClientWrapper {
	switch cfg.Payout.SettlementProvider {
	case "cashfree":
		logger.InfoLogger.Infof("Settling live payouts through Cashfree at %s", cfg.Cashfree.BaseURL)
		return clients.NewCashfreePayoutClient(cfg.Cashfree.ClientID, cfg.Cashfree.ClientSecret, cfg.Cashfree.BaseURL)
	case "razorpay":
		logger.InfoLogger.Info("Settling live payouts through Razorpay Route transfers")
		return clients.NewRazorpayClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	default:
		return clients.NewDemoSettlementClient()
	}
}
