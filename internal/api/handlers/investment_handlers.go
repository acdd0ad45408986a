package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/services/roi"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// InvestmentHandlers exposes plan purchases and the ROI scheduler
type InvestmentHandlers struct {
	roiService *roi.Service
	logger     *logger.Logger
}

// NewInvestmentHandlers creates a new InvestmentHandlers instance
func NewInvestmentHandlers(roiService *roi.Service, log *logger.Logger) *InvestmentHandlers {
	return &InvestmentHandlers{roiService: roiService, logger: log}
}

// PurchaseInvestmentRequest is the payload for buying a plan
type PurchaseInvestmentRequest struct {
	UserID       string `json:"user_id" binding:"required,uuid"`
	PlanRef      string `json:"plan_ref" binding:"required"`
	Principal    string `json:"principal" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	Cadence      string `json:"cadence" binding:"required"`
	Rate         string `json:"rate" binding:"required"`
	PeriodsTotal int    `json:"periods_total" binding:"required,gt=0"`
	Reference    string `json:"reference" binding:"required"`
}

// PurchaseInvestment handles POST /investments
func (h *InvestmentHandlers) PurchaseInvestment(c *gin.Context) {
	ctx := c.Request.Context()

	var req PurchaseInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil || !principal.IsPositive() {
		respondBadRequest(c, "invalid principal")
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil || !rate.IsPositive() {
		respondBadRequest(c, "invalid rate")
		return
	}
	cadence := entities.Cadence(req.Cadence)
	if err := cadence.Validate(); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	userID, err := parseUUID(req.UserID)
	if err != nil {
		respondBadRequest(c, "invalid user_id")
		return
	}

	investment, err := h.roiService.PurchaseInvestment(ctx, &roi.PurchaseRequest{
		UserID:       userID,
		PlanRef:      req.PlanRef,
		Principal:    principal,
		Currency:     entities.Currency(req.Currency),
		Cadence:      cadence,
		Rate:         rate,
		PeriodsTotal: req.PeriodsTotal,
		Reference:    req.Reference,
	})
	if err != nil {
		if !apperrors.IsDuplicateReference(err) {
			h.logger.Warn("investment purchase failed",
				"user_id", req.UserID, "error", err, "request_id", getRequestID(c))
		}
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, investment)
}

// GetInvestment handles GET /investments/:investment_id
func (h *InvestmentHandlers) GetInvestment(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := parseUUIDParam(c, "investment_id")
	if !ok {
		return
	}

	investment, err := h.roiService.GetInvestment(ctx, id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, investment)
}

// ListInvestments handles GET /users/:user_id/investments
func (h *InvestmentHandlers) ListInvestments(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	investments, err := h.roiService.ListInvestments(ctx, userID,
		queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if investments == nil {
		investments = []*entities.Investment{}
	}
	respondSuccess(c, http.StatusOK, investments)
}

// TriggerTick handles POST /roi/tick, the manual catch-up trigger.
// Safe to call any number of times.
func (h *InvestmentHandlers) TriggerTick(c *gin.Context) {
	ctx := c.Request.Context()

	credited, err := h.roiService.Tick(ctx, time.Now())
	if err != nil {
		h.logger.Error("manual roi tick failed", "error", err)
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"periods_credited": credited})
}
