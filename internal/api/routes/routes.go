package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledger-service/ledger_service/internal/api/handlers"
	"github.com/ledger-service/ledger_service/internal/api/middleware"
	"github.com/ledger-service/ledger_service/internal/domain/services/engine"
	"github.com/ledger-service/ledger_service/internal/domain/services/referral"
	"github.com/ledger-service/ledger_service/internal/domain/services/roi"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// Dependencies carries everything the router needs
type Dependencies struct {
	Engine   *engine.Service
	ROI      *roi.Service
	Referral *referral.Service
	DB       *sqlx.DB
	Cache    cache.RedisClient
	Logger   *logger.Logger
}

// SetupRoutes configures all application routes
func SetupRoutes(deps *Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))

	healthHandlers := handlers.NewHealthHandlers(deps.DB, deps.Cache)
	ledgerHandlers := handlers.NewLedgerHandlers(deps.Engine, deps.Logger)
	investmentHandlers := handlers.NewInvestmentHandlers(deps.ROI, deps.Logger)
	referralHandlers := handlers.NewReferralHandlers(deps.Referral, deps.Logger)

	router.GET("/health", healthHandlers.Health)
	router.GET("/ready", healthHandlers.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", ledgerHandlers.SubmitEvent)
		v1.GET("/entries/:entry_id", ledgerHandlers.GetEntry)
		v1.POST("/entries/:entry_id/reverse", ledgerHandlers.ReverseEntry)

		v1.GET("/users/:user_id/balances/:currency", ledgerHandlers.GetBalance)
		v1.GET("/users/:user_id/ledger", ledgerHandlers.GetLedger)

		v1.POST("/investments", investmentHandlers.PurchaseInvestment)
		v1.GET("/investments/:investment_id", investmentHandlers.GetInvestment)
		v1.GET("/users/:user_id/investments", investmentHandlers.ListInvestments)
		v1.POST("/roi/tick", investmentHandlers.TriggerTick)

		v1.POST("/referrals", referralHandlers.RegisterReferral)
		v1.GET("/users/:user_id/referral", referralHandlers.GetProfile)
		v1.GET("/users/:user_id/referral/stats", referralHandlers.GetStats)
		v1.POST("/users/:user_id/referral/invalidate", referralHandlers.InvalidateUser)
	}

	return router
}
