package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"

	"github.com/ledger-service/ledger_service/internal/api/routes"
	"github.com/ledger-service/ledger_service/internal/domain/services/engine"
	"github.com/ledger-service/ledger_service/internal/domain/services/referral"
	"github.com/ledger-service/ledger_service/internal/domain/services/roi"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/config"
	"github.com/ledger-service/ledger_service/internal/infrastructure/database"
	infrarepos "github.com/ledger-service/ledger_service/internal/infrastructure/repositories"
	"github.com/ledger-service/ledger_service/internal/workers/roi_worker"
	"github.com/ledger-service/ledger_service/internal/workers/settlement_recovery"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close database connection", "error", err)
		}
	}()

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisClient.Close()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Repositories
	lockTimeout := time.Duration(cfg.Engine.LockTimeoutMS) * time.Millisecond
	store := infrarepos.NewSettlementStore(db, lockTimeout, log)
	ledgerRepo := infrarepos.NewLedgerRepository(db)
	walletRepo := infrarepos.NewWalletRepository(db)
	investmentRepo := infrarepos.NewInvestmentRepository(db)
	referralRepo := infrarepos.NewReferralRepository(db)
	referralConfigRepo := infrarepos.NewReferralConfigRepository(db)
	milestoneRepo := infrarepos.NewMilestoneRepository(db)

	// Services
	engineService := engine.NewService(
		store, ledgerRepo, walletRepo, redisClient,
		time.Duration(cfg.Engine.BalanceCacheTTL)*time.Second, log,
	)
	referralService := referral.NewService(
		referralRepo, referralConfigRepo, milestoneRepo, ledgerRepo,
		engineService, log,
	)
	roiService := roi.NewService(
		investmentRepo, engineService, referralService,
		redislock.New(redisClient.Client()),
		time.Duration(cfg.ROI.LockTTL)*time.Second,
		cfg.ROI.BatchSize, log,
	)

	// Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roiWorker := roi_worker.NewWorker(
		roiService, time.Duration(cfg.ROI.TickInterval)*time.Second, log)
	go roiWorker.Start(ctx)
	log.Info("ROI worker started")

	var recoveryWorker *settlement_recovery.Worker
	if cfg.Recovery.Enabled {
		recoveryWorker = settlement_recovery.NewWorker(engineService, cfg.Recovery, log)
		if err := recoveryWorker.Start(); err != nil {
			log.Fatal("Failed to start settlement recovery worker", "error", err)
		}
	} else {
		log.Info("Settlement recovery worker disabled in configuration")
	}

	// Export database pool stats
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
				metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
				metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
			}
		}
	}()

	// HTTP server
	router := routes.SetupRoutes(&routes.Dependencies{
		Engine:   engineService,
		ROI:      roiService,
		Referral: referralService,
		DB:       db,
		Cache:    redisClient,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("Starting server", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	roiWorker.Stop()
	if recoveryWorker != nil {
		recoveryWorker.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}
